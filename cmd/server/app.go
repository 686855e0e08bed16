package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/broadcast"
	"github.com/phrazzld/tasker-api/internal/cache"
	"github.com/phrazzld/tasker-api/internal/config"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/events"
	"github.com/phrazzld/tasker-api/internal/job"
	"github.com/phrazzld/tasker-api/internal/notify"
	"github.com/phrazzld/tasker-api/internal/platform/metrics"
	"github.com/phrazzld/tasker-api/internal/platform/postgres"
	"github.com/phrazzld/tasker-api/internal/redact"
	"github.com/phrazzld/tasker-api/internal/service"
	"github.com/phrazzld/tasker-api/internal/service/auth"
	"github.com/phrazzld/tasker-api/internal/store"
	"github.com/redis/go-redis/v9"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client

	userStore store.UserStore
	taskStore store.TaskStore

	authService service.AuthService
	taskService service.TaskService

	mailer     notify.Mailer
	registry   *job.Registry
	runner     *job.Runner
	dispatcher job.Dispatcher
	emitter    *events.InMemoryEventEmitter
	hub        *broadcast.Hub
	metrics    *metrics.Metrics
}

// observable is implemented by dispatchers that report attempt outcomes.
type observable interface {
	SetObserver(job.Observer)
}

// newApplication creates a new application instance with all dependencies initialized.
// The database must already be connected and migrated. On error every resource,
// including db, has been released.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	app.userStore = postgres.NewPostgresUserStore(db, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	tokenStore := postgres.NewPostgresTokenStore(db, logger)

	var taskCache cache.TaskCache
	if cfg.Cache.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redis = client
		taskCache = cache.NewRedisCache(client, logger)
		logger.Info("Task cache enabled", "ttl_seconds", cfg.Cache.TTLSeconds)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.authService, err = service.NewAuthService(
		app.userStore,
		tokenStore,
		jwtService,
		auth.NewBcryptHasher(cfg.Auth.BCryptCost),
		logger,
		service.WithTransactions(db),
	)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	app.mailer, err = notify.NewMailer(cfg.Mail, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}

	if err := app.setupJobs(); err != nil {
		app.cleanup()
		return nil, err
	}

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(notify.NewTaskCreatedNotifier(app.userStore, app.dispatcher, app.mailer, logger))
	if cfg.Broadcast.Enabled {
		app.hub = broadcast.NewHub(broadcast.ConfigFromConfig(cfg.Broadcast), logger)
		app.emitter.RegisterHandler(app.hub)
		logger.Info("Websocket broadcasting enabled")
	}

	app.taskService, err = service.NewTaskService(app.taskStore, taskCache, app.emitter, cfg.Cache.TTL(), logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// setupJobs builds the job registry, the database-backed runner and the
// dispatcher selected by the jobs driver. The runner always exists so that
// queued jobs can be drained from the command line.
func (app *application) setupJobs() error {
	app.registry = job.NewRegistry()
	notify.RegisterJobs(app.registry, app.mailer)

	app.runner = job.NewRunner(
		postgres.NewPostgresJobStore(app.db, app.logger),
		app.registry,
		job.RunnerConfigFromConfig(app.config.Jobs),
		app.logger,
	)
	app.runner.SetObserver(app.metrics)

	dispatcher, err := job.NewDispatcher(app.config.Jobs.Driver, app.runner, app.config.Jobs.MaxAttempts, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create job dispatcher: %w", err)
	}
	if o, ok := dispatcher.(observable); ok {
		o.SetObserver(app.metrics)
	}
	app.dispatcher = dispatcher
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	if app.config.Jobs.Driver == job.DriverDatabase {
		if err := app.runner.Start(); err != nil {
			app.cleanup()
			return fmt.Errorf("failed to start job runner: %w", err)
		}
		app.logger.Info("Job runner started", "workers", app.config.Jobs.WorkerCount)
	}

	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// processJobs runs every queued job to a final state.
func (app *application) processJobs(ctx context.Context) error {
	finished, err := app.runner.Drain(ctx)
	if err != nil {
		return fmt.Errorf("failed to process jobs: %w", err)
	}
	app.logger.Info("Queued jobs processed", "finished", finished)
	return nil
}

// sendTestEmail renders and delivers a sample task created email. An empty
// address gets a random one at example.com.
func (app *application) sendTestEmail(ctx context.Context, to string) error {
	if to == "" {
		to = fmt.Sprintf("test-%s@example.com", uuid.NewString()[:8])
	}

	due := domain.StartOfDay(time.Now().AddDate(0, 0, 7))
	task, err := domain.NewTask(
		uuid.New(),
		"Sample task",
		"This is a test notification from the Tasker API.",
		domain.TaskStatusPending,
		domain.TaskPriorityMedium,
		&due,
	)
	if err != nil {
		return fmt.Errorf("failed to build sample task: %w", err)
	}

	j := notify.NewSendTaskCreatedJob(*task, notify.Recipient{Name: "Test User", Email: to}, app.mailer)
	inline := job.NewSyncDispatcher(app.config.Jobs.MaxAttempts, app.logger)
	inline.SetObserver(app.metrics)
	if err := inline.Dispatch(ctx, j); err != nil {
		return fmt.Errorf("failed to send test email: %w", err)
	}

	app.logger.Info("Test email sent", "to", to, "mail_driver", app.config.Mail.Driver)
	return nil
}

// pruneTokens deletes access token records that are past their expiry.
func (app *application) pruneTokens(ctx context.Context) error {
	n, err := app.authService.PruneExpiredTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to prune tokens: %w", err)
	}
	app.logger.Info("Expired tokens pruned", "count", n)
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis client", "error", redact.Error(err))
		}
	}

	if app.db != nil {
		closeDatabase(app.db, app.logger)
	}

	app.logger.Info("Application shutdown completed")
}
