// Package main implements the entry point for the Tasker API server, which
// manages users' tasks over a JSON REST API and pushes task events to
// websocket subscribers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/phrazzld/tasker-api/internal/config"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
	"github.com/phrazzld/tasker-api/internal/platform/postgres"
	"github.com/phrazzld/tasker-api/internal/redact"
)

// options holds the one-shot commands selected on the command line. With none
// set the server runs.
type options struct {
	migrate       string
	processJobs   bool
	sendTestEmail bool
	testEmailTo   string
	pruneTokens   bool
}

func parseOptions(args []string) (options, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.migrate, "migrate", "", "Run a migration command (up|down|redo|reset|status|version) and exit")
	fs.BoolVar(&opts.processJobs, "process-jobs", false, "Process every queued job and exit")
	fs.BoolVar(&opts.sendTestEmail, "send-test-email", false, "Send a sample task created email and exit")
	fs.BoolVar(&opts.pruneTokens, "prune-tokens", false, "Delete expired access tokens and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.sendTestEmail {
		opts.testEmailTo = fs.Arg(0)
	}
	return opts, nil
}

func main() {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if err := run(context.Background(), opts); err != nil {
		log.Fatalf("tasker-api: %v", err)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"jobs_driver", cfg.Jobs.Driver,
		"mail_driver", cfg.Mail.Driver,
		"cache_enabled", cfg.Cache.Enabled,
		"broadcast_enabled", cfg.Broadcast.Enabled)

	db, err := openDatabase(ctx, cfg.Database, l)
	if err != nil {
		return err
	}

	if opts.migrate != "" {
		defer closeDatabase(db, l)
		return postgres.Migrate(ctx, db, opts.migrate, l)
	}

	if err := postgres.Migrate(ctx, db, "up", l); err != nil {
		closeDatabase(db, l)
		return err
	}

	app, err := newApplication(ctx, cfg, l, db)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	switch {
	case opts.processJobs:
		defer app.cleanup()
		return app.processJobs(ctx)
	case opts.sendTestEmail:
		defer app.cleanup()
		return app.sendTestEmail(ctx, opts.testEmailTo)
	case opts.pruneTokens:
		defer app.cleanup()
		return app.pruneTokens(ctx)
	}

	if err := app.Run(ctx); err != nil {
		l.Error("server stopped with error", slog.String("error", redact.Error(err)))
		return err
	}
	return nil
}
