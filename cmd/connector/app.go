package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/e-CODEX/connector-sub004/internal/admin"
	"github.com/e-CODEX/connector-sub004/internal/config"
	"github.com/e-CODEX/connector-sub004/internal/deduplication"
	"github.com/e-CODEX/connector-sub004/internal/evidence"
	"github.com/e-CODEX/connector-sub004/internal/link"
	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	"github.com/e-CODEX/connector-sub004/internal/persistence"
	"github.com/e-CODEX/connector-sub004/internal/pipeline"
	"github.com/e-CODEX/connector-sub004/internal/pmode"
	"github.com/e-CODEX/connector-sub004/internal/routing"
	"github.com/e-CODEX/connector-sub004/internal/transport"
	"github.com/e-CODEX/connector-sub004/pkg/bootstrap"
	"github.com/e-CODEX/connector-sub004/pkg/health"
	"github.com/e-CODEX/connector-sub004/pkg/logging"
	"github.com/e-CODEX/connector-sub004/pkg/metrics"
	"github.com/e-CODEX/connector-sub004/pkg/migrations"
	"github.com/e-CODEX/connector-sub004/pkg/retry"
	"github.com/e-CODEX/connector-sub004/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Config *config.Config
	Logger logger.Logger

	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	redisClient *redis.Client

	messages persistence.MessageRepository
	machine  *evidence.StateMachine

	linkManager *link.Manager
	tracker     *transport.Tracker

	outgoingPipeline *pipeline.Orchestrator
	incomingPipeline *pipeline.Orchestrator
	evidencePipeline *pipeline.Orchestrator
	submitter        *evidence.Submitter

	tracerProvider *tracing.TracerProvider
	server         *http.Server
	adminServer    *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("connector")
	}
	return &App{
		Config:      cfg,
		Logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initServices(ctx); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "connector")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPipelineMetrics()
	metrics.RegisterEvidenceMetrics()
	metrics.RegisterLinkMetrics()
	metrics.RegisterTransportMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initHTTPServers(); err != nil {
		return fmt.Errorf("failed to initialize HTTP servers: %w", err)
	}

	if err := a.activateDeclaredPartners(ctx); err != nil {
		return fmt.Errorf("failed to activate link partners: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.Config.Database.RunMigrations {
		path := a.Config.Database.MigrationsPath
		if path == "" {
			path = "migrations/postgres"
		}
		if err := migrations.RunPostgres(a.db, path); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redisClient = rdb

	return nil
}

func (a *App) initServices(_ context.Context) error {
	a.messages = persistence.NewMessageRepository(a.db)
	rules := routing.NewRepository(a.db)
	pmodes := pmode.NewRepository(a.db)
	transportRepo := transport.NewRepository(a.db)

	a.tracker = transport.NewTracker(transportRepo, a.Logger)
	a.machine = evidence.NewStateMachine(a.messages, a.Logger)

	verifier := pmode.NewVerifier(pmodes, a.Config, a.Logger)

	resolver, err := routing.NewResolver(rules, a.messages, a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create routing resolver: %w", err)
	}

	dedup := deduplication.NewService(a.redisClient, a.Config.Deduplication, a.Logger)

	scheduler := link.NewPullScheduler(a.Logger)
	a.linkManager = link.NewManager(scheduler, a.Logger)
	a.submitter = evidence.NewSubmitter(a.linkManager, a.Logger)

	containerBuilder := pipeline.NewPassthroughContainerBuilder(a.Logger)

	a.outgoingPipeline = pipeline.NewOutgoingPipeline(verifier, resolver, containerBuilder, a.messages, a.linkManager, a.Logger)
	a.incomingPipeline = pipeline.NewIncomingPipeline(dedup, verifier, resolver, a.messages, a.linkManager, a.Logger)
	a.evidencePipeline = pipeline.NewEvidencePipeline(a.messages, a.machine, resolver, a.linkManager, a.Logger)

	kafkaPlugin := link.NewKafkaPlugin(a.tracker, a, a.retryPolicy(), a.Logger)
	a.linkManager.RegisterPlugin(kafkaPlugin)

	for _, decl := range a.Config.Links {
		if err := a.linkManager.RegisterConfiguration(link.ConfigurationFromDeclaration(decl)); err != nil {
			return err
		}
	}

	if a.Config.Admin.Enabled {
		declared := make([]link.Partner, 0, len(a.Config.LinkPartners))
		for _, decl := range a.Config.LinkPartners {
			declared = append(declared, link.PartnerFromDeclaration(decl))
		}
		handler := admin.NewHandler(rules, a.linkManager, a.tracker, declared, a.Logger)
		router := admin.NewRouter(handler, a.Config.Admin, a.Logger)
		metrics.RegisterAdminMetrics()

		a.adminServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", a.Config.Admin.Port),
			Handler: router,
		}
	}

	return nil
}

func (a *App) retryPolicy() retry.Policy {
	policy := retry.DefaultPolicy()
	if a.Config.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = a.Config.Retry.MaxAttempts
	}
	if a.Config.Retry.InitialInterval > 0 {
		policy.InitialInterval = a.Config.Retry.InitialInterval
	}
	if a.Config.Retry.MaxInterval > 0 {
		policy.MaxInterval = a.Config.Retry.MaxInterval
	}
	if a.Config.Retry.Multiplier > 0 {
		policy.Multiplier = a.Config.Retry.Multiplier
	}
	if a.Config.Retry.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = a.Config.Retry.MaxElapsedTime
	}
	return policy
}

func (a *App) initHTTPServers() error {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewRedisChecker(a.redisClient))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}

	return nil
}

func (a *App) activateDeclaredPartners(ctx context.Context) error {
	for _, decl := range a.Config.LinkPartners {
		if !decl.Enabled {
			continue
		}
		partner := link.PartnerFromDeclaration(decl)
		if err := a.linkManager.ActivateLinkPartner(ctx, partner); err != nil {
			return fmt.Errorf("partner %q: %w", partner.Name, err)
		}
	}
	return nil
}

// HandleInbound routes a received message into the matching pipeline. Pulled
// and pushed messages from every link partner land here.
func (a *App) HandleInbound(ctx context.Context, msg *message.Message) error {
	ctx = logging.WithDomainID(ctx, msg.DomainOrDefault())

	if msg.IsEvidenceMessage() {
		return a.evidencePipeline.Process(ctx, msg)
	}

	if msg.Direction == message.DirectionBackendToGateway {
		return a.outgoingPipeline.Process(ctx, msg)
	}

	return a.processIncoming(ctx, msg)
}

// processIncoming runs a gateway business message to the backend and reports
// the outcome to the sending side as evidence.
func (a *App) processIncoming(ctx context.Context, msg *message.Message) error {
	if err := a.incomingPipeline.Process(ctx, msg); err != nil {
		a.reportDeliveryOutcome(ctx, msg, message.EvidenceNonDelivery, err.Error())
		return err
	}

	if msg.IsBusinessMessage() {
		a.reportDeliveryOutcome(ctx, msg, message.EvidenceDelivery, "")
	}
	return nil
}

// reportDeliveryOutcome records locally generated evidence on the business
// message and sends it back toward the gateway. Failures here are logged, not
// surfaced: the business message outcome already stands.
func (a *App) reportDeliveryOutcome(ctx context.Context, msg *message.Message, evidenceType message.EvidenceType, reason string) {
	if msg.ConnectorMessageID == "" || !msg.IsBusinessMessage() {
		return
	}

	confirmation, err := evidence.NewConfirmation(evidenceType, msg, reason)
	if err != nil {
		a.Logger.ErrorwCtx(ctx, "Failed to build evidence", "error", err)
		return
	}

	if _, err := a.machine.ApplyConfirmation(ctx, msg.ConnectorMessageID, confirmation); err != nil {
		if !evidence.IsIgnored(err) {
			a.Logger.ErrorwCtx(ctx, "Failed to apply locally generated evidence",
				"evidence_type", string(evidenceType),
				"error", err,
			)
		}
		return
	}

	if err := a.submitter.SubmitOppositeDirection(ctx, msg, confirmation); err != nil {
		a.Logger.ErrorwCtx(ctx, "Failed to submit evidence message",
			"evidence_type", string(evidenceType),
			"error", err,
		)
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if a.adminServer != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "Admin server starting", "port", a.Config.Admin.Port)
			if err := a.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("admin server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "connector")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down connector")

	timeoutCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(timeoutCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
		}
	}
	if a.adminServer != nil {
		if err := a.adminServer.Shutdown(timeoutCtx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown error: %w", err))
		}
	}

	if a.linkManager != nil {
		if err := a.linkManager.Shutdown(timeoutCtx); err != nil {
			errs = append(errs, fmt.Errorf("link manager shutdown error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(timeoutCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	errs = append(errs, a.dbConnector.ShutdownDatabases(a.redisClient, a.db)...)

	for _, err := range errs {
		a.Logger.ErrorwCtx(shutdownCtx, "Shutdown error", "error", err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown finished with %d errors", len(errs))
	}
	return nil
}
