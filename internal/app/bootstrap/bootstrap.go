package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	marketplaceservice "tiof/contexts/token-trading/marketplace-service"
	"tiof/contexts/token-trading/marketplace-service/adapters/memory"
	postgresadapter "tiof/contexts/token-trading/marketplace-service/adapters/postgres"
	"tiof/contexts/token-trading/marketplace-service/adapters/tokens"
	"tiof/contexts/token-trading/marketplace-service/application/workers"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/ports"
	"tiof/internal/platform/chain"
	"tiof/internal/platform/config"
	"tiof/internal/platform/db"
	"tiof/internal/platform/httpserver"
	"tiof/internal/platform/messaging"
	"tiof/internal/platform/metrics"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const shutdownTimeout = 10 * time.Second

// APIApp serves the marketplace and relays its outbox. The event bus is
// in-process, so the process that commits envelopes also publishes them.
type APIApp struct {
	server       *httpserver.Server
	stream       *httpserver.EventStream
	bus          *messaging.Bus
	relay        workers.OutboxRelay
	auditor      *workers.InvariantAuditor
	recorder     *metrics.Recorder
	postgres     *db.Postgres
	pollInterval time.Duration
	logger       *slog.Logger
}

// WorkerApp audits a shared postgres ledger out of band.
type WorkerApp struct {
	auditor      workers.InvariantAuditor
	postgres     *db.Postgres
	pollInterval time.Duration
	logger       *slog.Logger
}

type runtime struct {
	ledger   ports.LedgerRepository
	outbox   ports.OutboxRepository
	clock    ports.Clock
	ids      ports.IDGenerator
	postgres *db.Postgres
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	rt, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder()
	bus := messaging.NewBus(cfg.KafkaBrokers, logger)
	sandbox := chain.NewSandbox(logger)
	if err := seedSandbox(sandbox, cfg.SandboxSeedFile); err != nil {
		if rt.postgres != nil {
			_ = rt.postgres.Close()
		}
		return nil, err
	}
	settlement := tokens.SandboxSettlement{Chain: sandbox}
	escrow := entities.Address(cfg.EscrowAddress)

	module := marketplaceservice.NewModule(marketplaceservice.Dependencies{
		Ledger:      rt.ledger,
		Outbox:      rt.outbox,
		Settlement:  settlement,
		Balances:    settlement,
		Publisher:   bus,
		Escrow:      escrow,
		Clock:       rt.clock,
		IDGenerator: rt.ids,
		Observer:    recorder,
		Logger:      logger,
	})

	app := &APIApp{
		bus:          bus,
		relay:        module.Relay,
		recorder:     recorder,
		postgres:     rt.postgres,
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}
	app.auditor = custodyAuditor(cfg, module)
	if cfg.EnableEventStream {
		app.stream = httpserver.NewEventStream(logger)
	}
	app.server = httpserver.New(module, app.stream, recorder, logger, normalizeAddr(cfg.HTTPPort))
	return app, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if cfg.LedgerBackend != config.BackendPostgres {
		return nil, errors.New("worker requires the postgres ledger backend")
	}
	if !cfg.EnableInvariantAudit {
		return nil, errors.New("worker has nothing to run: ENABLE_INVARIANT_AUDIT is off")
	}

	rt, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Custody balances live with the API process's chain session, so the
	// out-of-band audit covers the ledger's own consistency only.
	return &WorkerApp{
		auditor: workers.InvariantAuditor{
			Ledger: rt.ledger,
			Escrow: entities.Address(cfg.EscrowAddress),
			Logger: logger,
		},
		postgres:     rt.postgres,
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}, nil
}

// seedSandbox applies the optional seed file. Without one the sandbox chain
// starts empty and only funds moved by tests exist.
func seedSandbox(sandbox *chain.Sandbox, path string) error {
	if path == "" {
		return nil
	}
	seed, err := chain.LoadSeedFile(path)
	if err != nil {
		return err
	}
	return sandbox.Apply(seed)
}

// custodyAuditor returns the auditor the api process runs. Escrow balances
// live on this process's chain, so the custody check runs here for every
// backend; the worker only re-checks a shared postgres ledger.
func custodyAuditor(cfg config.Config, module marketplaceservice.Module) *workers.InvariantAuditor {
	if !cfg.EnableInvariantAudit {
		return nil
	}
	auditor := module.Auditor
	return &auditor
}

func openLedger(ctx context.Context, cfg config.Config, logger *slog.Logger) (runtime, error) {
	admin := entities.Address(cfg.AdminAddress)
	if cfg.LedgerBackend == config.BackendMemory {
		store := memory.NewStore(admin, logger)
		return runtime{ledger: store, outbox: store, clock: store, ids: store}, nil
	}

	pg, err := db.Connect(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return runtime{}, err
	}
	repo := postgresadapter.NewRepository(pg.DB, logger)
	if err := repo.Migrate(ctx, admin); err != nil {
		_ = pg.Close()
		return runtime{}, err
	}
	return runtime{
		ledger:   repo,
		outbox:   repo,
		clock:    postgresadapter.SystemClock{},
		ids:      postgresadapter.UUIDGenerator{},
		postgres: pg,
	}, nil
}

func (a *APIApp) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	if a.stream != nil {
		if err := a.stream.Start(ctx, a.bus, workers.EventsTopic); err != nil {
			return err
		}
	}

	group.Go(func() error {
		return a.server.Start()
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return poll(ctx, a.pollInterval, func(ctx context.Context) error {
			sent, err := a.relay.RunOnce(ctx)
			a.recorder.ObserveRelay(sent)
			return err
		})
	})
	if a.auditor != nil {
		group.Go(func() error {
			return poll(ctx, a.pollInterval, func(ctx context.Context) error {
				return audit(ctx, *a.auditor, a.recorder)
			})
		})
	}

	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", a.pollInterval.String(),
		"event_stream", a.stream != nil,
		"invariant_audit", a.auditor != nil,
	)
	return group.Wait()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)
	return poll(ctx, w.pollInterval, func(ctx context.Context) error {
		return audit(ctx, w.auditor, nil)
	})
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

// poll runs step immediately and then on every tick until ctx is done.
// A failing step is retried on the next tick; only ctx ends the loop.
func poll(ctx context.Context, interval time.Duration, step func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		_ = step(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func audit(ctx context.Context, auditor workers.InvariantAuditor, recorder *metrics.Recorder) error {
	err := auditor.RunOnce(ctx)
	if recorder != nil && errors.Is(err, domainerrors.ErrRepositoryInvariantBroke) {
		recorder.ObserveAuditViolation()
	}
	return err
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
