package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/twmb/franz-go/pkg/kgo"

	attestationmetrics "zerotrust/internal/attestation/metrics"
	attestation "zerotrust/internal/attestation/models"
	attestationsvc "zerotrust/internal/attestation/service"
	attestationstore "zerotrust/internal/attestation/store"
	"zerotrust/internal/audit"
	auditmetrics "zerotrust/internal/audit/metrics"
	auditstore "zerotrust/internal/audit/store"
	"zerotrust/internal/disclosure"
	"zerotrust/internal/notify"
	notifymetrics "zerotrust/internal/notify/metrics"
	"zerotrust/internal/notify/outbox"
	"zerotrust/internal/notify/publisher"
	"zerotrust/internal/nullifier"
	nullifiermetrics "zerotrust/internal/nullifier/metrics"
	nullifierstore "zerotrust/internal/nullifier/store"
	"zerotrust/internal/orchestrator"
	orchestratormetrics "zerotrust/internal/orchestrator/metrics"
	"zerotrust/internal/platform/config"
	"zerotrust/internal/platform/health"
	"zerotrust/internal/platform/kafka"
	"zerotrust/internal/platform/metrics"
	"zerotrust/internal/platform/postgres"
	"zerotrust/internal/platform/redis"
	"zerotrust/internal/policy/loader"
	policymetrics "zerotrust/internal/policy/metrics"
	policy "zerotrust/internal/policy/models"
	policysvc "zerotrust/internal/policy/service"
	policystore "zerotrust/internal/policy/store"
	"zerotrust/internal/proofsystem"
	httptransport "zerotrust/internal/transport/http"
	"zerotrust/pkg/platform/circuit"
	"zerotrust/pkg/platform/tx"
)

type app struct {
	router  http.Handler
	worker  *notify.Worker
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// closeOnError releases whatever build opened before it failed.
func (a *app) closeOnError(err *error) {
	if *err != nil {
		a.close()
	}
}

// stores groups the persistence choices. Without DATABASE_URL everything
// lives in memory and is lost on restart.
type stores struct {
	commitments attestationsvc.Store
	policies    policystore.Backend
	nullifiers  nullifier.Store
	audit       audit.Store
	outbox      notify.Outbox
	txRunner    tx.Runner
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer a.closeOnError(&err)
	var checks []health.Check

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if db != nil {
		a.closers = append(a.closers, func() { _ = db.Close() })
		checks = append(checks, health.Check{Name: "postgres", Probe: db.PingContext})
	}
	st := newStores(db, cfg)

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		checks = append(checks, health.Check{Name: "redis", Probe: rdb.Health})
		st.nullifiers = nullifierstore.NewRedis(rdb)
		log.InfoContext(ctx, "nullifier registry backed by redis")
	}

	if cfg.Engine.NullifierKeyDefaulted {
		log.WarnContext(ctx, "NULLIFIER_KEY not set, using the development key; nullifiers are predictable")
	}

	notifier, err := notify.NewNotifier(st.outbox, notify.WithLogger(log))
	if err != nil {
		return nil, err
	}

	breaker := circuit.New("proof-backend",
		circuit.WithFailureThreshold(cfg.Engine.ProofBreakerThreshold),
		circuit.WithCooldown(cfg.Engine.ProofBreakerCooldown),
	)
	proofs := proofsystem.NewGuard(proofsystem.NewSaltedHash(),
		proofsystem.WithTimeout(cfg.Engine.ProofVerifyTimeout),
		proofsystem.WithBreaker(breaker),
		proofsystem.WithLogger(log),
	)

	schema := attestation.DefaultSchema()
	attestations, err := attestationsvc.New(st.commitments, proofs,
		attestationsvc.WithLogger(log),
		attestationsvc.WithMetrics(attestationmetrics.New()),
		attestationsvc.WithNotifier(notifier),
		attestationsvc.WithTxRunner(st.txRunner),
		attestationsvc.WithSchema(schema),
		attestationsvc.WithDefaultValidity(cfg.Engine.AttestationValidity),
	)
	if err != nil {
		return nil, err
	}

	verifier, err := disclosure.New(st.commitments, proofs,
		disclosure.WithLogger(log),
		disclosure.WithSchema(schema),
	)
	if err != nil {
		return nil, err
	}

	deriver, err := nullifier.NewDeriver(cfg.Engine.NullifierKey)
	if err != nil {
		return nil, err
	}
	nullifiers, err := nullifier.NewRegistry(deriver, st.nullifiers,
		nullifier.WithLogger(log),
		nullifier.WithMetrics(nullifiermetrics.New()),
	)
	if err != nil {
		return nil, err
	}

	policies, err := buildPolicies(ctx, cfg, st.policies, schema, log)
	if err != nil {
		return nil, err
	}

	trail, err := buildTrail(ctx, cfg, st, notifier, log)
	if err != nil {
		return nil, err
	}
	checks = append(checks, health.Check{Name: "audit_chain", Probe: func(context.Context) error {
		if suspended, reason := trail.Suspended(); suspended {
			return fmt.Errorf("audit appends suspended: %s", reason)
		}
		return nil
	}})

	engine, err := orchestrator.New(attestations, verifier, nullifiers, policies, trail,
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(orchestratormetrics.New()),
		orchestrator.WithMaxProofSize(cfg.Engine.MaxProofSize),
	)
	if err != nil {
		return nil, err
	}

	pub, producer, err := buildPublisher(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if producer != nil {
		a.closers = append(a.closers, producer.Close)
		checks = append(checks, health.Check{Name: "kafka", Probe: producer.Ping})
	}
	a.worker, err = notify.NewWorker(st.outbox, pub,
		notify.WithWorkerLogger(log),
		notify.WithWorkerMetrics(notifymetrics.New()),
		notify.WithPollInterval(cfg.Outbox.PollInterval),
		notify.WithMaxAttempts(cfg.Outbox.MaxRetries),
		notify.WithBatchSize(cfg.Outbox.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	a.router = httptransport.NewRouter(
		httptransport.New(engine, log),
		log,
		metrics.New(),
		health.Handler(health.NewChecker(checks...)),
	)
	return a, nil
}

func openDatabase(ctx context.Context, cfg config.Config, log *slog.Logger) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		log.WarnContext(ctx, "DATABASE_URL not set, all state is kept in memory")
		return nil, nil
	}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newStores(db *sql.DB, cfg config.Config) *stores {
	if db == nil {
		return &stores{
			commitments: attestationstore.NewInMemory(),
			policies:    policystore.NewInMemory(),
			nullifiers:  nullifierstore.NewInMemory(),
			audit:       auditstore.NewInMemory(),
			outbox:      outbox.NewInMemory(),
			txRunner:    tx.NopRunner{},
		}
	}
	return &stores{
		commitments: attestationstore.NewPostgres(db),
		policies:    policystore.NewPostgres(db, attestation.DefaultSchema()),
		nullifiers:  nullifierstore.NewPostgres(db),
		audit:       auditstore.NewPostgres(db, cfg.Engine.ChainHashAlgorithm),
		outbox:      outbox.NewPostgres(db),
		txRunner:    tx.SQLRunner{DB: db},
	}
}

// buildPolicies publishes the baseline tiers and any configured policy files.
// Re-publishing an identical definition is a no-op, so restarts are safe.
func buildPolicies(ctx context.Context, cfg config.Config, backend policystore.Backend, schema *attestation.Schema, log *slog.Logger) (*policysvc.Service, error) {
	cached, err := policystore.NewCached(backend, cfg.Engine.PolicyCacheSize)
	if err != nil {
		return nil, err
	}
	svc, err := policysvc.New(cached,
		policysvc.WithLogger(log),
		policysvc.WithMetrics(policymetrics.New()),
		policysvc.WithSchema(schema),
	)
	if err != nil {
		return nil, err
	}
	docs := policy.Baseline()
	if cfg.Engine.PolicyStorePath != "" {
		l, err := loader.New()
		if err != nil {
			return nil, err
		}
		loaded, err := l.Load(cfg.Engine.PolicyStorePath)
		if err != nil {
			return nil, fmt.Errorf("load policies: %w", err)
		}
		docs = append(docs, loaded...)
	}
	if err := svc.PublishAll(ctx, docs); err != nil {
		return nil, fmt.Errorf("publish policies: %w", err)
	}
	log.InfoContext(ctx, "policies published", "count", len(docs))
	return svc, nil
}

func buildTrail(ctx context.Context, cfg config.Config, st *stores, notifier *notify.Notifier, log *slog.Logger) (*audit.Trail, error) {
	hasher, err := audit.NewHasher(cfg.Engine.ChainHashAlgorithm)
	if err != nil {
		return nil, err
	}
	signer, err := loadSigner(ctx, cfg.Engine.CheckpointSigningKey, log)
	if err != nil {
		return nil, err
	}
	trail, err := audit.New(st.audit, hasher,
		audit.WithLogger(log),
		audit.WithMetrics(auditmetrics.New()),
		audit.WithTxRunner(st.txRunner),
		audit.WithNotifier(notifier),
		audit.WithSigner(signer),
	)
	if err != nil {
		return nil, err
	}
	// A broken chain suspends appends but the process stays up so auditors
	// can still export and inspect it.
	if err := trail.Audit(ctx); err != nil {
		log.ErrorContext(ctx, "CRITICAL: audit chain failed startup verification", "error", err)
	}
	return trail, nil
}

func loadSigner(ctx context.Context, path string, log *slog.Logger) (*audit.Signer, error) {
	if path == "" {
		log.WarnContext(ctx, "CHECKPOINT_SIGNING_KEY_FILE not set, using an ephemeral checkpoint key")
		return audit.GenerateSigner()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint signing key: %w", err)
	}
	return audit.LoadSignerPEM(data)
}

func buildPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) (notify.Publisher, *kgo.Client, error) {
	client, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.InfoContext(ctx, "KAFKA_BROKERS not set, outbound events are logged")
		return publisher.NewLog(log), nil, nil
	}
	pub, err := publisher.NewKafka(client, cfg.Kafka.Topic)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return pub, client, nil
}
