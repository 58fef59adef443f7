package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	attestation "zerotrust/internal/attestation/models"
	"zerotrust/internal/policy/metrics"
	"zerotrust/internal/policy/models"
	"zerotrust/pkg/domain"
	dErrors "zerotrust/pkg/domain-errors"
	"zerotrust/pkg/platform/sentinel"
	"zerotrust/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, p *models.Policy) error
	FindByScope(ctx context.Context, scope domain.PolicyScopeID) (*models.Policy, error)
	List(ctx context.Context) ([]*models.Policy, error)
}

// Service publishes and resolves policies. A scope is bound to one
// definition forever; new rules need a new scope identifier.
type Service struct {
	store   Store
	schema  *attestation.Schema
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithSchema(schema *attestation.Schema) Option {
	return func(s *Service) {
		s.schema = schema
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("policy store is required")
	}
	s := &Service{store: store, schema: attestation.DefaultSchema(), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Publish validates and stores doc. Publishing an identical definition again
// returns the stored policy; a different definition for a taken scope is a conflict.
func (s *Service) Publish(ctx context.Context, doc models.Document) (*models.Policy, error) {
	p, err := models.NewPolicy(doc, s.schema, requestcontext.Now(ctx))
	if err != nil {
		s.rejected(dErrors.CodeMalformedPolicy)
		return nil, dErrors.Wrap(err, dErrors.CodeMalformedPolicy, "malformed policy: "+err.Error())
	}

	err = s.store.Create(ctx, p)
	if errors.Is(err, sentinel.ErrConflict) {
		existing, findErr := s.store.FindByScope(ctx, p.ScopeID)
		if findErr != nil {
			return nil, dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load existing policy")
		}
		if bytes.Equal(existing.Hash, p.Hash) {
			return existing, nil
		}
		s.rejected(dErrors.CodePolicyConflict)
		return nil, dErrors.New(dErrors.CodePolicyConflict, "scope already bound to a different policy")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store policy")
	}

	s.logger.InfoContext(ctx, "policy published",
		"policy_scope_id", p.ScopeID,
		"jurisdiction", p.Jurisdiction,
	)
	if s.metrics != nil {
		s.metrics.IncrementPublished()
	}
	return p, nil
}

// PublishAll publishes docs in order and stops at the first failure.
func (s *Service) PublishAll(ctx context.Context, docs []models.Document) error {
	for _, doc := range docs {
		if _, err := s.Publish(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the policy bound to scope.
func (s *Service) Resolve(ctx context.Context, scope domain.PolicyScopeID) (*models.Policy, error) {
	p, err := s.store.FindByScope(ctx, scope)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnknownPolicyScope, "unknown policy scope")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Policy, error) {
	policies, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list policies")
	}
	return policies, nil
}

// Evaluate resolves scope and applies it to attrs.
func (s *Service) Evaluate(ctx context.Context, scope domain.PolicyScopeID, attrs attestation.AttributeSet) (domain.Outcome, error) {
	p, err := s.Resolve(ctx, scope)
	if err != nil {
		return "", err
	}
	return p.Evaluate(attrs), nil
}

func (s *Service) rejected(code dErrors.Code) {
	if s.metrics != nil {
		s.metrics.IncrementRejected(string(code))
	}
}
