package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/pscheid92/qapulse/internal/adapter/postgres"
	"github.com/pscheid92/qapulse/internal/app"
	"github.com/pscheid92/qapulse/internal/platform/logging"
)

const seedTimeout = 30 * time.Second

type options struct {
	databaseURL string
	username    string
	email       string
	password    string
	migrate     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database", os.Getenv("DATABASE_URL"), "PostgreSQL URL (or set DATABASE_URL env)")
	flag.StringVar(&opts.username, "username", envOr("ADMIN_USERNAME", "admin"), "Admin username (or set ADMIN_USERNAME env)")
	flag.StringVar(&opts.email, "email", envOr("ADMIN_EMAIL", "admin@example.com"), "Admin email (or set ADMIN_EMAIL env)")
	flag.StringVar(&opts.password, "password", os.Getenv("ADMIN_PASSWORD"), "Admin password (or set ADMIN_PASSWORD env)")
	flag.BoolVar(&opts.migrate, "migrate", true, "Apply pending migrations first")
	verbose := flag.Bool("verbose", false, "Verbose logging")
	flag.Parse()

	logLevel := "info"
	if *verbose {
		logLevel = "debug"
	}
	logging.InitLogger(logLevel, "text")

	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	err := run(ctx, opts)
	cancel()
	if err != nil {
		slog.Error("Seeding admin failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if opts.databaseURL == "" {
		return errors.New("database URL required (--database or DATABASE_URL env)")
	}

	pool, err := postgres.Connect(ctx, opts.databaseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	slog.Info("Connected to database", "url", sanitizeURL(opts.databaseURL))

	if opts.migrate {
		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	user, err := app.SeedAdmin(ctx, postgres.NewUserRepo(pool), opts.username, opts.email, opts.password)
	if err != nil {
		return err
	}

	slog.Info("Admin ready", "user_id", user.ID, "username", user.Username, "email", user.Email)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// sanitizeURL hides the password in a connection URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
