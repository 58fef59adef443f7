// Package orchestrator runs the attestation engine's operations end to end.
// A verification moves Received -> Verified -> NullifierChecked ->
// PolicyEvaluated -> Audited -> Completed, or exits to Rejected with a
// stable reason code. Nothing is appended to the audit chain for a rejected
// request.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	attestation "zerotrust/internal/attestation/models"
	attestationsvc "zerotrust/internal/attestation/service"
	"zerotrust/internal/audit"
	"zerotrust/internal/disclosure"
	"zerotrust/internal/nullifier"
	"zerotrust/internal/orchestrator/metrics"
	policy "zerotrust/internal/policy/models"
	"zerotrust/pkg/domain"
	dErrors "zerotrust/pkg/domain-errors"
	"zerotrust/pkg/requestcontext"
)

// DefaultMaxProofSize bounds proof blobs accepted from callers.
const DefaultMaxProofSize = 1 << 20

type Attestations interface {
	Issue(ctx context.Context, req attestationsvc.IssueRequest) (*attestationsvc.IssueResult, error)
	Lookup(ctx context.Context, rawID string) (*attestation.Commitment, error)
	Revoke(ctx context.Context, rawID, reason string) (*attestation.Commitment, error)
}

type Verifier interface {
	Verify(ctx context.Context, req disclosure.Request) (*disclosure.Disclosure, error)
}

type Nullifiers interface {
	Compute(commitment domain.CommitmentID, scope domain.PolicyScopeID) domain.NullifierValue
	TryRegister(ctx context.Context, value domain.NullifierValue) (nullifier.Registration, error)
}

type Policies interface {
	Resolve(ctx context.Context, scope domain.PolicyScopeID) (*policy.Policy, error)
	List(ctx context.Context) ([]*policy.Policy, error)
}

type Trail interface {
	Append(ctx context.Context, e audit.Entry) (*audit.Record, error)
	Suspended() (bool, string)
	VerifyChain(ctx context.Context, from, to uint64) (bool, error)
	Export(ctx context.Context, from, to uint64) (*audit.Export, error)
	Head(ctx context.Context) (uint64, []byte, error)
}

// VerifyRequest is a disclosure presented against a policy scope.
type VerifyRequest struct {
	CommitmentID  string
	PolicyScopeID string
	Revealed      []attestation.RawAttribute
	Proof         []byte
}

// Verdict is returned for a Completed request.
type Verdict struct {
	RecordID      domain.RecordID
	Seq           uint64
	PolicyScopeID domain.PolicyScopeID
	Nullifier     domain.NullifierValue
	Outcome       domain.Outcome
	RecordHash    []byte
	Timestamp     time.Time
	States        []State
}

type Engine struct {
	attestations Attestations
	verifier     Verifier
	nullifiers   Nullifiers
	policies     Policies
	trail        Trail
	maxProofSize int
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

func WithMaxProofSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxProofSize = n
		}
	}
}

func New(attestations Attestations, verifier Verifier, nullifiers Nullifiers, policies Policies, trail Trail, opts ...Option) (*Engine, error) {
	switch {
	case attestations == nil:
		return nil, errors.New("attestation service is required")
	case verifier == nil:
		return nil, errors.New("disclosure verifier is required")
	case nullifiers == nil:
		return nil, errors.New("nullifier registry is required")
	case policies == nil:
		return nil, errors.New("policy service is required")
	case trail == nil:
		return nil, errors.New("audit trail is required")
	}
	e := &Engine{
		attestations: attestations,
		verifier:     verifier,
		nullifiers:   nullifiers,
		policies:     policies,
		trail:        trail,
		maxProofSize: DefaultMaxProofSize,
		logger:       slog.Default(),
		tracer:       otel.Tracer("zerotrust/orchestrator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Issue(ctx context.Context, req attestationsvc.IssueRequest) (*attestationsvc.IssueResult, error) {
	ctx, span := e.tracer.Start(ctx, "orchestrator.Issue")
	defer span.End()
	res, err := e.attestations.Issue(ctx, req)
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("commitment_id", string(res.Commitment.ID)))
	return res, nil
}

func (e *Engine) Lookup(ctx context.Context, rawID string) (*attestation.Commitment, error) {
	return e.attestations.Lookup(ctx, rawID)
}

func (e *Engine) Revoke(ctx context.Context, rawID, reason string) (*attestation.Commitment, error) {
	ctx, span := e.tracer.Start(ctx, "orchestrator.Revoke")
	defer span.End()
	c, err := e.attestations.Revoke(ctx, rawID, reason)
	if err != nil {
		spanError(span, err)
	}
	return c, err
}

func (e *Engine) Policies(ctx context.Context) ([]*policy.Policy, error) {
	return e.policies.List(ctx)
}

func (e *Engine) Policy(ctx context.Context, scope domain.PolicyScopeID) (*policy.Policy, error) {
	return e.policies.Resolve(ctx, scope)
}

// Verify discloses, checks and evaluates one request. Before the nullifier is
// consumed the caller may cancel freely; after that the request runs to
// completion on a detached context.
func (e *Engine) Verify(ctx context.Context, req VerifyRequest) (*Verdict, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "orchestrator.Verify")
	defer span.End()

	lc := newLifecycle()
	verdict, err := e.verify(ctx, lc, req)
	e.metrics.ObserveVerify(time.Since(start))
	if err != nil {
		code, _ := dErrors.CodeOf(err)
		e.metrics.IncrementRejection(string(code), lc.state.String())
		lc.reject(err)
		spanError(span, err)
		e.logger.InfoContext(ctx, "verification rejected",
			"request_id", requestcontext.RequestID(ctx),
			"policy_scope_id", req.PolicyScopeID,
			"reason", code,
		)
		return nil, err
	}
	verdict.States = lc.history
	span.SetAttributes(
		attribute.String("policy_scope_id", string(verdict.PolicyScopeID)),
		attribute.String("outcome", string(verdict.Outcome)),
		attribute.Int64("audit_seq", int64(verdict.Seq)),
	)
	e.metrics.IncrementOutcome(string(verdict.Outcome), string(verdict.PolicyScopeID))
	return verdict, nil
}

func (e *Engine) verify(ctx context.Context, lc *lifecycle, req VerifyRequest) (*Verdict, error) {
	commitmentID, err := domain.ParseCommitmentID(req.CommitmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid commitment_id")
	}
	scope, err := domain.ParsePolicyScopeID(req.PolicyScopeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid policy_scope_id")
	}
	if len(req.Proof) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "proof is required")
	}
	if len(req.Proof) > e.maxProofSize {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("proof exceeds %d bytes", e.maxProofSize))
	}

	pol, err := e.policies.Resolve(ctx, scope)
	if err != nil {
		return nil, err
	}

	disc, err := e.stage(ctx, "orchestrator.disclosure", func(ctx context.Context) (*disclosure.Disclosure, error) {
		return e.verifier.Verify(ctx, disclosure.Request{
			CommitmentID: commitmentID,
			Revealed:     req.Revealed,
			Proof:        req.Proof,
		})
	})
	if err != nil {
		return nil, err
	}
	if err := lc.advance(StateVerified); err != nil {
		return nil, err
	}

	// Consuming a nullifier we cannot audit would burn it silently.
	if halted, _ := e.trail.Suspended(); halted {
		return nil, dErrors.New(dErrors.CodeAuditSuspended, "verifications are suspended pending audit reconciliation")
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled before nullifier registration")
	}

	value := e.nullifiers.Compute(commitmentID, scope)
	reg, err := e.nullifiers.TryRegister(ctx, value)
	if err != nil {
		return nil, err
	}
	if reg == nullifier.AlreadyConsumed {
		return nil, dErrors.New(dErrors.CodeAlreadyConsumed, "disclosure already used for this policy scope")
	}
	if err := lc.advance(StateNullifierChecked); err != nil {
		return nil, e.unaudited(ctx, value, err)
	}

	// From here on the request must finish regardless of the caller.
	ctx = context.WithoutCancel(ctx)

	outcome := pol.Evaluate(disc.Revealed)
	if err := lc.advance(StatePolicyEvaluated); err != nil {
		return nil, e.unaudited(ctx, value, err)
	}

	rec, err := e.trail.Append(ctx, audit.Entry{
		ScopeID:   scope,
		Nullifier: value,
		Outcome:   outcome,
		Timestamp: requestcontext.Now(ctx),
	})
	if err != nil {
		return nil, e.unaudited(ctx, value, err)
	}
	if err := lc.advance(StateAudited); err != nil {
		return nil, e.unaudited(ctx, value, err)
	}
	if err := lc.advance(StateCompleted); err != nil {
		return nil, err
	}

	return &Verdict{
		RecordID:      rec.RecordID,
		Seq:           rec.Seq,
		PolicyScopeID: scope,
		Nullifier:     value,
		Outcome:       outcome,
		RecordHash:    rec.RecordHash,
		Timestamp:     rec.Timestamp,
	}, nil
}

// unaudited reports a consumed nullifier whose verdict was not recorded.
func (e *Engine) unaudited(ctx context.Context, value domain.NullifierValue, cause error) error {
	e.metrics.IncrementUnauditedBurned()
	e.logger.ErrorContext(ctx, "CRITICAL: nullifier consumed without audit record",
		"request_id", requestcontext.RequestID(ctx),
		"nullifier", value,
		"error", cause,
	)
	return dErrors.Wrap(cause, dErrors.CodeInternal, "verdict could not be recorded")
}

func (e *Engine) stage(ctx context.Context, name string, fn func(context.Context) (*disclosure.Disclosure, error)) (*disclosure.Disclosure, error) {
	ctx, span := e.tracer.Start(ctx, name)
	defer span.End()
	d, err := fn(ctx)
	if err != nil {
		spanError(span, err)
	}
	return d, err
}

// ExportAudit returns records [from, to] with their anchor and a checkpoint.
func (e *Engine) ExportAudit(ctx context.Context, from, to uint64) (*audit.Export, error) {
	ctx, span := e.tracer.Start(ctx, "orchestrator.ExportAudit")
	defer span.End()
	exp, err := e.trail.Export(ctx, from, to)
	if err != nil {
		spanError(span, err)
	}
	return exp, err
}

func (e *Engine) VerifyChain(ctx context.Context, from, to uint64) (bool, error) {
	return e.trail.VerifyChain(ctx, from, to)
}

// AuditHead returns the chain length and tail hash.
func (e *Engine) AuditHead(ctx context.Context) (uint64, []byte, error) {
	return e.trail.Head(ctx)
}

func spanError(span trace.Span, err error) {
	span.RecordError(err)
	if code, ok := dErrors.CodeOf(err); ok {
		span.SetStatus(codes.Error, string(code))
		return
	}
	span.SetStatus(codes.Error, "internal")
}
