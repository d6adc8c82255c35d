package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"wellsync/internal/config"
	"wellsync/internal/live"
	"wellsync/internal/model"
	"wellsync/internal/provider"
	caldavprovider "wellsync/internal/provider/caldav"
	googleprovider "wellsync/internal/provider/google"
	"wellsync/internal/scheduler"
	"wellsync/internal/store/postgres"
	syncpkg "wellsync/internal/sync"
	transport "wellsync/internal/transport/http"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "wellsync",
		Usage: "Calendar synchronization and live-delivery service.",
		Commands: []*cli.Command{
			authCommand(),
			syncCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the sync API, scheduler, and live-event streams.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "wellsync.yaml", Usage: "Path to the YAML config file."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := setupLogger(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			db, err := postgres.Connect(ctx, os.Getenv("POSTGRES_DSN"))
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()

			mig := filepath.Join("migrations", "0001_init.sql")
			if err := db.RunMigration(ctx, mig); err != nil {
				return fmt.Errorf("migration: %w", err)
			}
			logger.Info("database ready")

			adapters, err := buildAdapters(ctx, logger, cfg)
			if err != nil {
				return err
			}
			if len(adapters) == 0 {
				logger.Warn("no provider adapters configured; syncs will fail until one is added")
			}

			store := postgres.NewStore(db)
			hub := live.NewHub(logger)
			go hub.Run(ctx)

			registry := syncpkg.NewStatusRegistry()
			orchestrator := syncpkg.NewOrchestrator(logger, store, adapters, registry, hub)
			resolver := syncpkg.NewResolver(logger, store, adapters, hub)

			sched := scheduler.New(logger, store, orchestrator, registry)
			if err := sched.Start(ctx, cfg.SyncCron); err != nil {
				return err
			}
			defer sched.Stop()

			deps := &transport.ServerDeps{
				Logger:       logger,
				Cfg:          cfg,
				DB:           db,
				Store:        store,
				Hub:          hub,
				Registry:     registry,
				Orchestrator: orchestrator,
				Resolver:     resolver,
				Now:          func() time.Time { return time.Now().UTC() },
			}

			srv := &http.Server{
				Addr:              cfg.Listen,
				Handler:           deps.Router(),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				// No write timeout: live streams stay open indefinitely.
				IdleTimeout: 60 * time.Second,
			}

			go func() {
				logger.Info("listening", "addr", cfg.Listen)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("http server failed", "error", err)
					cancel()
				}
			}()

			<-ctx.Done()
			shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel2()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one sync pass for a user and exit.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "wellsync.yaml", Usage: "Path to the YAML config file."},
			&cli.StringFlag{Name: "user", Required: true, Usage: "User id to sync."},
			&cli.StringFlag{Name: "provider", Required: true, Usage: "Provider to sync (google or caldav)."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := setupLogger(cfg.LogLevel)

			p := model.Provider(c.String("provider"))
			if !p.IsValid() {
				return fmt.Errorf("unknown provider %q", c.String("provider"))
			}

			db, err := postgres.Connect(c.Context, os.Getenv("POSTGRES_DSN"))
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()

			adapters, err := buildAdapters(c.Context, logger, cfg)
			if err != nil {
				return err
			}

			store := postgres.NewStore(db)
			hub := live.NewHub(logger)
			registry := syncpkg.NewStatusRegistry()
			orchestrator := syncpkg.NewOrchestrator(logger, store, adapters, registry, hub)

			if err := orchestrator.StartSync(c.Context, c.String("user"), p); err != nil {
				return fmt.Errorf("sync pass failed: %w", err)
			}
			logger.Info("sync pass finished")
			return nil
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			conf, err := googleprovider.GetOAuthConfigForAuthFlow(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := googleprovider.TokenFromWeb(conf, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			tokenFile := "token-" + accountName + ".json"

			if err := googleprovider.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func buildAdapters(ctx context.Context, logger *slog.Logger, cfg *config.Config) (map[model.Provider]provider.Adapter, error) {
	adapters := make(map[model.Provider]provider.Adapter)

	if cfg.Google != nil {
		ga, err := googleprovider.NewAdapter(ctx, logger,
			os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"), cfg.Google.Account)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters[model.ProviderGoogle] = ga
	}

	if cfg.CalDAV != nil {
		ca, err := caldavprovider.NewAdapter(logger, cfg.CalDAV.Endpoint,
			os.Getenv("CALDAV_USERNAME"), os.Getenv("CALDAV_PASSWORD"), cfg.CalDAV.CalendarName)
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav adapter: %w", err)
		}
		adapters[model.ProviderCalDAV] = ca
	}

	return adapters, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
