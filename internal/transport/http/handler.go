package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	attestation "zerotrust/internal/attestation/models"
	attestationsvc "zerotrust/internal/attestation/service"
	"zerotrust/internal/audit"
	"zerotrust/internal/orchestrator"
	policy "zerotrust/internal/policy/models"
	"zerotrust/pkg/domain"
	dErrors "zerotrust/pkg/domain-errors"
	"zerotrust/pkg/platform/httputil"
	"zerotrust/pkg/requestcontext"
)

// Engine is the slice of the orchestrator exposed over HTTP.
type Engine interface {
	Issue(ctx context.Context, req attestationsvc.IssueRequest) (*attestationsvc.IssueResult, error)
	Lookup(ctx context.Context, rawID string) (*attestation.Commitment, error)
	Revoke(ctx context.Context, rawID, reason string) (*attestation.Commitment, error)
	Verify(ctx context.Context, req orchestrator.VerifyRequest) (*orchestrator.Verdict, error)
	Policies(ctx context.Context) ([]*policy.Policy, error)
	Policy(ctx context.Context, scope domain.PolicyScopeID) (*policy.Policy, error)
	ExportAudit(ctx context.Context, from, to uint64) (*audit.Export, error)
	AuditHead(ctx context.Context) (uint64, []byte, error)
}

// Handler wires engine operations to HTTP endpoints.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

func New(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// Register mounts engine endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/attest", h.HandleIssue)
	r.Post("/verify", h.HandleVerify)
	r.Get("/commitments/{id}", h.HandleLookup)
	r.Post("/commitments/{id}/revoke", h.HandleRevoke)
	r.Get("/policies", h.HandleListPolicies)
	r.Get("/policies/*", h.HandleGetPolicy)
	r.Get("/audit/head", h.HandleAuditHead)
	r.Get("/audit/{range}", h.HandleExportAudit)
}

// HandleIssue handles POST /attest.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.engine.Issue(ctx, req.domain())
	if err != nil {
		h.logger.ErrorContext(ctx, "commitment issuance failed",
			"request_id", requestID,
			"issuer_id", req.IssuerID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "commitment issued",
		"request_id", requestID,
		"issuer_id", req.IssuerID,
		"commitment_id", result.Commitment.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromIssueResult(result))
}

// HandleVerify handles POST /verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	verdict, err := h.engine.Verify(ctx, req.domain())
	if err != nil {
		// Rejections are logged by the engine with their reason.
		if code, _ := dErrors.CodeOf(err); code.Class() == dErrors.ClassInfrastructure {
			h.logger.ErrorContext(ctx, "verification failed",
				"request_id", requestID,
				"policy_scope_id", req.PolicyScopeID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "verification completed",
		"request_id", requestID,
		"policy_scope_id", verdict.PolicyScopeID,
		"outcome", verdict.Outcome,
		"audit_seq", verdict.Seq,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromVerdict(verdict))
}

// HandleLookup handles GET /commitments/{id}.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.engine.Lookup(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromCommitment(c))
}

// HandleRevoke handles POST /commitments/{id}/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.engine.Revoke(ctx, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "commitment revocation failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "commitment revoked",
		"request_id", requestID,
		"commitment_id", c.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, FromCommitment(c))
}

// HandleListPolicies handles GET /policies.
func (h *Handler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.engine.Policies(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lo.Map(policies, func(p *policy.Policy, _ int) *PolicyResponse {
		return FromPolicy(p)
	}))
}

// HandleGetPolicy handles GET /policies/{scope}, where scope may contain '/'.
func (h *Handler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	scope, err := domain.ParsePolicyScopeID(chi.URLParam(r, "*"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.engine.Policy(r.Context(), scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPolicy(p))
}

// HandleAuditHead handles GET /audit/head.
func (h *Handler) HandleAuditHead(w http.ResponseWriter, r *http.Request) {
	size, tail, err := h.engine.AuditHead(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromHead(size, tail))
}

// HandleExportAudit handles GET /audit/{from}-{to}.
func (h *Handler) HandleExportAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	from, to, err := parseRange(chi.URLParam(r, "range"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	exp, err := h.engine.ExportAudit(ctx, from, to)
	if err != nil {
		h.logger.WarnContext(ctx, "audit export failed",
			"request_id", requestID,
			"from", from,
			"to", to,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit range exported",
		"request_id", requestID,
		"from", from,
		"to", to,
		"signed", len(exp.Checkpoint) > 0,
	)
	httputil.WriteJSON(w, http.StatusOK, exp.Document())
}

func parseRange(s string) (uint64, uint64, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, dErrors.New(dErrors.CodeValidation, "range must be <from>-<to>")
	}
	from, err := strconv.ParseUint(lo, 10, 64)
	if err != nil {
		return 0, 0, dErrors.New(dErrors.CodeValidation, "range start must be a non-negative integer")
	}
	to, err := strconv.ParseUint(hi, 10, 64)
	if err != nil {
		return 0, 0, dErrors.New(dErrors.CodeValidation, "range end must be a non-negative integer")
	}
	if from > to {
		return 0, 0, dErrors.New(dErrors.CodeValidation, "range start must not exceed end")
	}
	return from, to, nil
}
