package proofsystem

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zerotrust/internal/attestation/canonical"
	dErrors "zerotrust/pkg/domain-errors"
	"zerotrust/pkg/platform/circuit"
)

// DefaultVerifyTimeout bounds a single proof verification.
const DefaultVerifyTimeout = 120 * time.Second

// ErrBackendUnavailable is returned while the breaker is open.
var ErrBackendUnavailable = dErrors.New(dErrors.CodeUnavailable, "proof backend unavailable")

// Guard wraps a System with a per-call timeout and a circuit breaker.
// Backend failures and timeouts trip the breaker. Proofs that simply
// do not verify are not failures.
type Guard struct {
	inner   System
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type GuardOption func(*Guard)

func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) GuardOption {
	return func(g *Guard) {
		if b != nil {
			g.breaker = b
		}
	}
}

func WithLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGuard(inner System, opts ...GuardOption) *Guard {
	g := &Guard{
		inner:   inner,
		timeout: DefaultVerifyTimeout,
		breaker: circuit.New("proof-backend"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Name() string { return g.inner.Name() }

func (g *Guard) Commit(ctx context.Context, entries []canonical.Entry, blinding []byte) ([]byte, error) {
	return g.inner.Commit(ctx, entries, blinding)
}

type verifyResult struct {
	ok  bool
	err error
}

// VerifyProof runs the backend under the timeout. The call returns when the
// deadline passes even if the backend ignores its context.
func (g *Guard) VerifyProof(ctx context.Context, in PublicInputs, proof []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !g.breaker.Allow() {
		return false, ErrBackendUnavailable
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan verifyResult, 1)
	go func() {
		ok, err := g.inner.VerifyProof(callCtx, in, proof)
		done <- verifyResult{ok: ok, err: err}
	}()

	var res verifyResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = verifyResult{err: callCtx.Err()}
	}

	if res.err != nil {
		if ctx.Err() != nil {
			// caller went away; not the backend's fault
			return false, ctx.Err()
		}
		if errors.Is(res.err, context.DeadlineExceeded) {
			res.err = dErrors.Wrap(res.err, dErrors.CodeTimeout, "proof verification timed out")
		}
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "proof backend circuit opened",
				"backend", g.inner.Name(),
				"error", res.err,
			)
		}
		return false, res.err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "proof backend circuit closed", "backend", g.inner.Name())
	}
	return res.ok, nil
}
