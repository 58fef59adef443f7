package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"zerotrust/internal/audit/metrics"
	"zerotrust/pkg/domain"
	dErrors "zerotrust/pkg/domain-errors"
	"zerotrust/pkg/platform/sentinel"
	"zerotrust/pkg/platform/tx"
	"zerotrust/pkg/requestcontext"
)

const defaultAppendRetries = 5

// Store persists audit records. Insert must fail with sentinel.ErrConflict
// when the sequence number is already taken; Last returns sentinel.ErrNotFound
// on an empty chain.
type Store interface {
	Last(ctx context.Context) (*Record, error)
	Insert(ctx context.Context, r *Record) error
	Range(ctx context.Context, from, to uint64) ([]*Record, error)
}

// VerdictNotifier is called in the same unit of work as the append.
type VerdictNotifier interface {
	VerdictRecorded(ctx context.Context, r *Record) error
}

// Trail is the append-only hash chain of verification verdicts. Appends are
// serialized in-process; a conflicting writer in another process surfaces as
// sentinel.ErrConflict from the store and the append is retried on the new head.
type Trail struct {
	store    Store
	hasher   Hasher
	genesis  []byte
	txRunner tx.Runner
	notifier VerdictNotifier
	signer   *Signer
	retries  uint64
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu         sync.Mutex
	head       *Record
	headLoaded bool

	suspended     atomic.Bool
	suspendReason atomic.Pointer[string]
}

type Option func(*Trail)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) {
		t.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trail) {
		t.metrics = m
	}
}

func WithTxRunner(r tx.Runner) Option {
	return func(t *Trail) {
		t.txRunner = r
	}
}

func WithNotifier(n VerdictNotifier) Option {
	return func(t *Trail) {
		t.notifier = n
	}
}

// WithSigner enables signed checkpoints on export.
func WithSigner(s *Signer) Option {
	return func(t *Trail) {
		t.signer = s
	}
}

func WithAppendRetries(n uint64) Option {
	return func(t *Trail) {
		t.retries = n
	}
}

func New(store Store, hasher Hasher, opts ...Option) (*Trail, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if hasher == nil {
		return nil, errors.New("audit hasher is required")
	}
	t := &Trail{
		store:    store,
		hasher:   hasher,
		genesis:  Genesis(hasher),
		txRunner: tx.NopRunner{},
		retries:  defaultAppendRetries,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Trail) Algorithm() string { return t.hasher.Algorithm() }

// Suspended reports whether appends are halted and why.
func (t *Trail) Suspended() (bool, string) {
	if !t.suspended.Load() {
		return false, ""
	}
	if r := t.suspendReason.Load(); r != nil {
		return true, *r
	}
	return true, ""
}

func (t *Trail) suspend(ctx context.Context, reason string) {
	t.suspendReason.Store(&reason)
	if t.suspended.CompareAndSwap(false, true) {
		t.logger.ErrorContext(ctx, "CRITICAL: audit chain integrity violation, appends suspended",
			"reason", reason,
			"algorithm", t.hasher.Algorithm(),
		)
		if t.metrics != nil {
			t.metrics.IncrementChainBreaks()
			t.metrics.SetSuspended(true)
		}
	}
}

// Append adds a record for e after the current head and returns it.
func (t *Trail) Append(ctx context.Context, e Entry) (*Record, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}
	if halted, reason := t.Suspended(); halted {
		return nil, dErrors.New(dErrors.CodeAuditSuspended, "audit trail suspended: "+reason)
	}
	start := time.Now()
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)

	t.mu.Lock()
	defer t.mu.Unlock()

	// landed is set once the record is stored but the notification is
	// still outstanding, so retries only redeliver it.
	var landed *Record
	op := func() (*Record, error) {
		if landed != nil {
			if err := t.notifier.VerdictRecorded(ctx, landed); err != nil {
				return nil, err
			}
			return landed, nil
		}
		if err := t.loadHead(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		rec, err := t.next(e)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		err = t.txRunner.RunInTx(ctx, func(ctx context.Context) error {
			if err := t.store.Insert(ctx, rec); err != nil {
				return err
			}
			if t.notifier != nil {
				return t.notifier.VerdictRecorded(ctx, rec)
			}
			return nil
		})
		if err == nil {
			t.head = rec
			return rec, nil
		}
		t.headLoaded = false
		if errors.Is(err, sentinel.ErrConflict) {
			t.logger.WarnContext(ctx, "audit head moved, retrying append", "seq", rec.Seq)
			return nil, err
		}
		// Without a rollback the insert may have landed before the failure.
		if t.persisted(ctx, rec) {
			t.head, t.headLoaded = rec, true
			if t.notifier == nil {
				return rec, nil
			}
			landed = rec
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(5*time.Millisecond),
		backoff.WithMaxInterval(200*time.Millisecond),
	)
	rec, err := backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(b, t.retries), ctx))
	if err != nil && landed != nil {
		t.logger.ErrorContext(ctx, "audit record stored but verdict notification failed",
			"seq", landed.Seq,
			"record_id", landed.RecordID,
			"error", err,
		)
		rec, err = landed, nil
	}
	if t.metrics != nil {
		t.metrics.ObserveAppend(start)
	}
	if err != nil {
		if t.metrics != nil {
			t.metrics.IncrementAppendFailures()
		}
		if _, coded := dErrors.CodeOf(err); coded {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to append audit record")
	}
	if t.metrics != nil {
		t.metrics.IncrementAppends()
	}
	return rec, nil
}

func validateEntry(e Entry) error {
	if e.ScopeID == "" {
		return dErrors.New(dErrors.CodeValidation, "audit entry scope is required")
	}
	if e.Nullifier == "" {
		return dErrors.New(dErrors.CodeValidation, "audit entry nullifier is required")
	}
	if _, err := domain.ParseOutcome(string(e.Outcome)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "audit entry outcome is invalid")
	}
	return nil
}

func (t *Trail) next(e Entry) (*Record, error) {
	rec := &Record{
		RecordID:  domain.NewRecordID(),
		ScopeID:   e.ScopeID,
		Nullifier: e.Nullifier,
		Outcome:   e.Outcome,
		Timestamp: e.Timestamp,
		PrevHash:  t.genesis,
	}
	if t.head != nil {
		rec.Seq = t.head.Seq + 1
		rec.PrevHash = t.head.RecordHash
	}
	h, err := ComputeHash(t.hasher, rec)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash audit record")
	}
	rec.RecordHash = h
	return rec, nil
}

// loadHead refreshes the cached head from the store and checks that it is
// internally consistent before anything is chained onto it. Caller holds mu.
func (t *Trail) loadHead(ctx context.Context) error {
	if t.headLoaded {
		return nil
	}
	last, err := t.store.Last(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		t.head = nil
		t.headLoaded = true
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load audit head")
	}
	want, err := ComputeHash(t.hasher, last)
	if err != nil || !bytes.Equal(want, last.RecordHash) {
		reason := fmt.Sprintf("head record %d does not match its hash", last.Seq)
		t.suspend(ctx, reason)
		return dErrors.New(dErrors.CodeIntegrityViolation, reason)
	}
	if prev := t.head; prev != nil && last.Seq == prev.Seq+1 && !bytes.Equal(last.PrevHash, prev.RecordHash) {
		reason := fmt.Sprintf("record %d does not link to record %d", last.Seq, prev.Seq)
		t.suspend(ctx, reason)
		return dErrors.New(dErrors.CodeIntegrityViolation, reason)
	}
	t.head = last
	t.headLoaded = true
	return nil
}

// Head returns the chain length and the hash of its last record (the genesis
// hash when empty).
func (t *Trail) Head(ctx context.Context) (uint64, []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.headLoaded = false
	if err := t.loadHead(ctx); err != nil {
		return 0, nil, err
	}
	if t.head == nil {
		return 0, t.genesis, nil
	}
	return t.head.Seq + 1, t.head.RecordHash, nil
}

// Range returns records with from <= seq <= to.
func (t *Trail) Range(ctx context.Context, from, to uint64) ([]*Record, error) {
	if from > to {
		return nil, dErrors.New(dErrors.CodeValidation, "range start must not exceed range end")
	}
	records, err := t.store.Range(ctx, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read audit records")
	}
	if len(records) == 0 || uint64(len(records))-1 != to-from {
		return nil, dErrors.New(dErrors.CodeNotFound, "range extends beyond the audit chain")
	}
	return records, nil
}

func (t *Trail) anchor(ctx context.Context, from uint64) ([]byte, error) {
	if from == 0 {
		return t.genesis, nil
	}
	prev, err := t.Range(ctx, from-1, from-1)
	if err != nil {
		return nil, err
	}
	return prev[0].RecordHash, nil
}

// VerifyChain recomputes every link in [from, to]. A break suspends appends
// and is reported as (false, nil); errors are reserved for read failures.
func (t *Trail) VerifyChain(ctx context.Context, from, to uint64) (bool, error) {
	anchor, err := t.anchor(ctx, from)
	if err != nil {
		return false, err
	}
	records, err := t.Range(ctx, from, to)
	if err != nil {
		return false, err
	}
	if err := VerifyRecords(t.hasher, anchor, records); err != nil {
		t.suspend(ctx, err.Error())
		return false, nil
	}
	return true, nil
}

// persisted reports whether rec is the stored head.
func (t *Trail) persisted(ctx context.Context, rec *Record) bool {
	last, err := t.store.Last(ctx)
	return err == nil && last.RecordID == rec.RecordID
}

// Audit verifies the entire chain. It returns CodeIntegrityViolation on a
// break, after which appends stay suspended until Reconcile succeeds.
func (t *Trail) Audit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.auditLocked(ctx)
}

// auditLocked re-reads the head and verifies every record up to it. t.mu
// must be held so no append can chain onto the records being checked.
func (t *Trail) auditLocked(ctx context.Context) error {
	t.headLoaded = false
	if err := t.loadHead(ctx); err != nil {
		return err
	}
	if t.head == nil {
		return nil
	}
	records, err := t.Range(ctx, 0, t.head.Seq)
	if err != nil {
		return err
	}
	if err := VerifyRecords(t.hasher, t.genesis, records); err != nil {
		t.suspend(ctx, err.Error())
		return dErrors.New(dErrors.CodeIntegrityViolation, err.Error())
	}
	return nil
}

// Reconcile lifts a suspension once the full chain verifies again, for
// example after an operator restored a tampered row from backup. The trail
// stays suspended while it verifies.
func (t *Trail) Reconcile(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.auditLocked(ctx); err != nil {
		return err
	}
	if !t.suspended.Load() {
		return nil
	}
	t.suspendReason.Store(nil)
	t.suspended.Store(false)
	if t.metrics != nil {
		t.metrics.SetSuspended(false)
	}
	t.logger.InfoContext(ctx, "audit chain reconciled, appends resumed")
	return nil
}

// Export is a verifiable slice of the chain. Anchor is the record hash
// preceding From; Checkpoint, when present, is a COSE_Sign1 envelope over
// the chain head at export time.
type Export struct {
	Algorithm  string
	From       uint64
	To         uint64
	Anchor     []byte
	Records    []*Record
	Checkpoint []byte
}

func (t *Trail) Export(ctx context.Context, from, to uint64) (*Export, error) {
	anchor, err := t.anchor(ctx, from)
	if err != nil {
		return nil, err
	}
	records, err := t.Range(ctx, from, to)
	if err != nil {
		return nil, err
	}
	exp := &Export{
		Algorithm: t.hasher.Algorithm(),
		From:      from,
		To:        to,
		Anchor:    anchor,
		Records:   records,
	}
	if t.signer != nil {
		size, tail, err := t.Head(ctx)
		if err != nil {
			return nil, err
		}
		cp, err := t.signer.Sign(Checkpoint{
			Algorithm: t.hasher.Algorithm(),
			Size:      size,
			TailHash:  tail,
			IssuedAt:  requestcontext.Now(ctx).Unix(),
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign checkpoint")
		}
		exp.Checkpoint = cp
	}
	return exp, nil
}
