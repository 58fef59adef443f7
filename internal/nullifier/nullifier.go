// Package nullifier derives single-use tags for (commitment, policy scope)
// pairs and records which of them have been consumed.
package nullifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"zerotrust/internal/nullifier/metrics"
	"zerotrust/pkg/domain"
	dErrors "zerotrust/pkg/domain-errors"
	"zerotrust/pkg/requestcontext"
)

// MinKeySize is the smallest accepted nullifier key, in bytes.
const MinKeySize = 32

const derivationTag = "zerotrust/nullifier/v1"

// Deriver computes nullifiers with a keyed hash. Without the key, a nullifier
// cannot be linked back to its commitment, and nullifiers for the same
// commitment under different scopes are unlinkable to one another.
type Deriver struct {
	key []byte
}

func NewDeriver(key []byte) (*Deriver, error) {
	if len(key) < MinKeySize {
		return nil, errors.New("nullifier key must be at least 32 bytes")
	}
	return &Deriver{key: append([]byte(nil), key...)}, nil
}

// Compute is deterministic in (commitment, scope).
func (d *Deriver) Compute(commitment domain.CommitmentID, scope domain.PolicyScopeID) domain.NullifierValue {
	m := hmac.New(sha256.New, d.key)
	m.Write([]byte(derivationTag))
	for _, part := range []string{string(commitment), string(scope)} {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(part)))
		m.Write(n[:])
		m.Write([]byte(part))
	}
	return domain.NullifierValue(hex.EncodeToString(m.Sum(nil)))
}

// Registration is the outcome of TryRegister.
type Registration int

const (
	Accepted Registration = iota + 1
	AlreadyConsumed
)

func (r Registration) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case AlreadyConsumed:
		return "already_consumed"
	}
	return "unknown"
}

// Store inserts a value unless present. Insert must be atomic across all
// callers sharing the store: for concurrent inserts of one value exactly one
// returns true.
type Store interface {
	Insert(ctx context.Context, value domain.NullifierValue, at time.Time) (bool, error)
}

// Registry is the replay guard.
type Registry struct {
	deriver *Deriver
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func NewRegistry(deriver *Deriver, store Store, opts ...Option) (*Registry, error) {
	if deriver == nil {
		return nil, errors.New("nullifier deriver is required")
	}
	if store == nil {
		return nil, errors.New("nullifier store is required")
	}
	r := &Registry{deriver: deriver, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Registry) Compute(commitment domain.CommitmentID, scope domain.PolicyScopeID) domain.NullifierValue {
	return r.deriver.Compute(commitment, scope)
}

// TryRegister consumes value. A storage error leaves the outcome unknown and
// is returned as unavailable; callers must not treat it as Accepted.
func (r *Registry) TryRegister(ctx context.Context, value domain.NullifierValue) (Registration, error) {
	inserted, err := r.store.Insert(ctx, value, requestcontext.Now(ctx).UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "nullifier registration failed", "error", err)
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "nullifier registry unavailable")
	}
	if !inserted {
		if r.metrics != nil {
			r.metrics.IncrementReplays()
		}
		return AlreadyConsumed, nil
	}
	if r.metrics != nil {
		r.metrics.IncrementAccepted()
	}
	return Accepted, nil
}
