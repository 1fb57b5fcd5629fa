// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/eventrelay/internal/auctions"
	auctionspostgres "github.com/bissquit/eventrelay/internal/auctions/postgres"
	"github.com/bissquit/eventrelay/internal/config"
	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/events"
	eventspostgres "github.com/bissquit/eventrelay/internal/events/postgres"
	"github.com/bissquit/eventrelay/internal/inbox"
	inboxpostgres "github.com/bissquit/eventrelay/internal/inbox/postgres"
	"github.com/bissquit/eventrelay/internal/jobs"
	"github.com/bissquit/eventrelay/internal/jobs/email"
	jobspostgres "github.com/bissquit/eventrelay/internal/jobs/postgres"
	"github.com/bissquit/eventrelay/internal/jobs/sms"
	"github.com/bissquit/eventrelay/internal/offers"
	offerspostgres "github.com/bissquit/eventrelay/internal/offers/postgres"
	"github.com/bissquit/eventrelay/internal/pkg/auth"
	"github.com/bissquit/eventrelay/internal/pkg/ctxlog"
	"github.com/bissquit/eventrelay/internal/pkg/httputil"
	"github.com/bissquit/eventrelay/internal/pkg/metrics"
	"github.com/bissquit/eventrelay/internal/pkg/postgres"
	"github.com/bissquit/eventrelay/internal/scanner"
	"github.com/bissquit/eventrelay/internal/scheduler"
	"github.com/bissquit/eventrelay/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Task names accepted by RunTask and the -once flag.
const (
	TaskDispatchEmail  = "dispatch_email"
	TaskDispatchSMS    = "dispatch_sms"
	TaskAuctionOutcome = "scan_auction_outcomes"
	TaskOfferExpiry    = "scan_offer_expiry"
)

const metricsInterval = 15 * time.Second

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	bgCancel      context.CancelFunc
	trigger       *jobs.Trigger
	scheduler     *scheduler.Scheduler
	jobsRepo      jobs.Repository
}

// pipeline holds the wired event pipeline shared by the HTTP server and
// one-off task runs.
type pipeline struct {
	emitter     *events.Emitter
	inbox       *inbox.Service
	offers      *offers.Service
	deadLetters *jobs.DeadLetterService
	trigger     *jobs.Trigger
	scheduler   *scheduler.Scheduler
	jobsRepo    jobs.Repository
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Database.Migrate {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	p, err := buildPipeline(cfg, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		trigger:   p.trigger,
		scheduler: p.scheduler,
		jobsRepo:  p.jobsRepo,
	}

	router, err := app.setupRouter(p)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func buildPipeline(cfg *config.Config, db *pgxpool.Pool) (*pipeline, error) {
	emailSender, err := email.NewSender(email.Config{
		Enabled:         cfg.Email.Enabled,
		SMTPHost:        cfg.Email.SMTPHost,
		SMTPPort:        cfg.Email.SMTPPort,
		SMTPUser:        cfg.Email.SMTPUser,
		SMTPPassword:    cfg.Email.SMTPPassword,
		FromAddress:     cfg.Email.FromAddress,
		MessageIDDomain: cfg.Email.MessageIDDomain,
		DialTimeout:     cfg.Email.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}
	if !cfg.Email.Enabled {
		slog.Warn("email sender is disabled: email jobs will be marked sent without delivery")
	}

	smsSender, err := sms.NewSender(sms.Config{
		Enabled:       cfg.SMS.Enabled,
		GatewayURL:    cfg.SMS.GatewayURL,
		APIToken:      cfg.SMS.APIToken,
		SenderID:      cfg.SMS.SenderID,
		RatePerSecond: cfg.SMS.RatePerSecond,
		Timeout:       cfg.SMS.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create sms sender: %w", err)
	}
	if !cfg.SMS.Enabled {
		slog.Warn("sms sender is disabled: sms jobs will be marked sent without delivery")
	}

	renderer, err := jobs.NewRenderer(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create job renderer: %w", err)
	}

	jobsRepo := jobspostgres.NewRepository(db)
	dispatcherConfig := jobs.DispatcherConfig{
		BatchSize:   cfg.Dispatcher.BatchSize,
		TickBudget:  cfg.Dispatcher.TickBudget,
		SendTimeout: cfg.Dispatcher.SendTimeout,
		StaleAfter:  cfg.Dispatcher.StaleAfter,
		Backoff:     jobs.DefaultBackoff,
	}
	emailDispatcher := jobs.NewDispatcher(dispatcherConfig, jobsRepo, emailSender)
	smsDispatcher := jobs.NewDispatcher(dispatcherConfig, jobsRepo, smsSender)
	trigger := jobs.NewTrigger(cfg.Dispatcher.TriggerTimeout, emailDispatcher, smsDispatcher)

	enqueuer := jobs.NewEnqueuer(jobsRepo, jobspostgres.NewContactDirectory(db), renderer, jobs.DefaultChannelPolicy())
	inboxService := inbox.NewService(inboxpostgres.NewRepository(db))
	emitter := events.NewEmitter(eventspostgres.NewRepository(db), inboxService, enqueuer, trigger)

	offersRepo := offerspostgres.NewRepository(db)
	scannerConfig := scanner.Config{
		MaxPerRun:  cfg.Scanner.MaxPerRun,
		TimeBudget: cfg.Scanner.TimeBudget,
	}
	auctionScanner := scanner.New[*auctions.Outcome](TaskAuctionOutcome, scannerConfig,
		auctions.NewSource(auctionspostgres.NewRepository(db), cfg.Scanner.MaxLosersEmit), emitter)
	offerScanner := scanner.New[*domain.Offer](TaskOfferExpiry, scannerConfig,
		offers.NewExpirySource(offersRepo), emitter)

	sched, err := scheduler.New(
		dispatchTask(TaskDispatchEmail, cfg.Dispatcher, emailDispatcher),
		dispatchTask(TaskDispatchSMS, cfg.Dispatcher, smsDispatcher),
		scanTask(cfg.Scanner, auctionScanner),
		scanTask(cfg.Scanner, offerScanner),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &pipeline{
		emitter:     emitter,
		inbox:       inboxService,
		offers:      offers.NewServiceWithTTL(offersRepo, emitter, cfg.Offers.TTL),
		deadLetters: jobs.NewDeadLetterService(jobsRepo, trigger),
		trigger:     trigger,
		scheduler:   sched,
		jobsRepo:    jobsRepo,
	}, nil
}

func dispatchTask(name string, cfg config.DispatcherConfig, d *jobs.Dispatcher) scheduler.Task {
	return scheduler.Task{
		Name:     name,
		Interval: cfg.Interval,
		// Claiming stops at TickBudget; in-flight sends still resolve.
		Timeout: cfg.TickBudget + cfg.SendTimeout,
		Run: func(ctx context.Context) error {
			stats, err := d.Tick(ctx)
			if err != nil {
				return err
			}
			if stats.Claimed > 0 || stats.Requeued > 0 {
				slog.Info("dispatch tick finished",
					"kind", d.Kind(),
					"claimed", stats.Claimed,
					"sent", stats.Sent,
					"retried", stats.Retried,
					"failed", stats.Failed,
					"requeued", stats.Requeued,
				)
			}
			return nil
		},
	}
}

type namedRunner interface {
	Name() string
	Run(ctx context.Context) (scanner.RunStats, error)
}

func scanTask(cfg config.ScannerConfig, s namedRunner) scheduler.Task {
	return scheduler.Task{
		Name:     s.Name(),
		Interval: cfg.Interval,
		Timeout:  cfg.TimeBudget + 15*time.Second,
		Run: func(ctx context.Context) error {
			_, err := s.Run(ctx)
			return err
		},
	}
}

// Run starts the HTTP servers, the dispatch trigger and the scheduler.
func (a *App) Run() error {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	a.bgCancel = bgCancel

	go metrics.CollectDBPool(bgCtx, a.db, metricsInterval)
	go a.collectQueueMetrics(bgCtx)

	a.trigger.Start(bgCtx)
	a.scheduler.Start(bgCtx)

	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// RunTask runs one scheduled task once without starting any server. Nudges
// raised while it runs are dropped; the next run picks the jobs up.
func (a *App) RunTask(ctx context.Context, name string) error {
	a.logger.Info("running task once", "task", name)
	return a.scheduler.RunOnce(ctx, name)
}

// Tasks returns the names accepted by RunTask.
func (a *App) Tasks() []string {
	return a.scheduler.Names()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.scheduler.Stop()
	a.trigger.Stop()
	if a.bgCancel != nil {
		a.bgCancel()
	}

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

// Close releases the database pool. Use it instead of Shutdown after RunTask.
func (a *App) Close() {
	a.db.Close()
}

func (a *App) collectQueueMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := a.jobsRepo.Stats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			jobs.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter(p *pipeline) (*chi.Mux, error) {
	validator, err := auth.NewValidator(auth.Config{
		SecretKey: a.config.Auth.SecretKey,
		Issuer:    a.config.Auth.Issuer,
		Leeway:    a.config.Auth.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("create token validator: %w", err)
	}

	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	eventsHandler := events.NewHandler(p.emitter)
	inboxHandler := inbox.NewHandler(p.inbox)
	offersHandler := offers.NewHandler(p.offers)
	jobsHandler := jobs.NewHandler(p.deadLetters)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(validator))

			eventsHandler.RegisterRoutes(r)
			inboxHandler.RegisterRoutes(r)
			offersHandler.RegisterRoutes(r)

			r.Route("/admin", func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleOperator))
				eventsHandler.RegisterOperatorRoutes(r)
				jobsHandler.RegisterOperatorRoutes(r)
			})
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
