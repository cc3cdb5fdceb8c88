package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lifelog/internal/api"
	"lifelog/internal/assistant"
	"lifelog/internal/config"
	"lifelog/internal/metrics"
	"lifelog/internal/portability"
	"lifelog/internal/providers"
	"lifelog/internal/providers/registry"
	"lifelog/internal/ratelimit"
	"lifelog/internal/schema"
	"lifelog/internal/secrets"
	"lifelog/internal/settings"
	"lifelog/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:           "lifelog",
		Short:         "Personal life-logging assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var force bool
	importCmd := &cobra.Command{
		Use:   "import <backup.json>",
		Short: "Replace local data with a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args[0], force)
		},
	}
	importCmd.Flags().BoolVar(&force, "force", false, "import even if the file is not a recognized backup")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe()
			},
		},
		&cobra.Command{
			Use:   "export <backup.json>",
			Short: "Write all local data to a backup file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runExport(cmd.Context(), args[0])
			},
		},
		importCmd,
	)

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log.Level)
	log.Info().
		Str("provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Str("db_driver", cfg.DB.Driver).
		Msg("starting lifelog")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	var limiter assistant.Limiter
	if cfg.Redis.Addr != "" && cfg.Budget.TurnsPerDay > 0 {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		limiter = ratelimit.NewDailyBudget(rdb, cfg.Budget.TurnsPerDay)
		log.Info().Int64("turns_per_day", cfg.Budget.TurnsPerDay).Msg("turn budget enabled")
	}

	orch := assistant.New(assistant.Config{
		Store:         deps.store,
		Settings:      deps.settings,
		Registry:      deps.registry,
		BuildProvider: providerFactory(cfg),
		EnvAPIKey:     cfg.LLM.APIKey,
		DefaultModel:  cfg.LLM.Model,
		Limiter:       limiter,
		Metrics:       metrics.Global(),
		Logger:        log.Logger,
	})

	server := api.NewServer(orch, deps.store, deps.settings, deps.registry, deps.portability, log.Logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
	return nil
}

func runExport(ctx context.Context, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log.Level)

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	data, err := deps.portability.ExportJSON(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	log.Info().Str("path", path).Msg("backup written")
	return nil
}

func runImport(ctx context.Context, path string, force bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log.Level)

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := deps.portability.Import(ctx, data, force); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("backup imported")
	return nil
}

type deps struct {
	store       *storage.Store
	settings    *settings.Service
	registry    *schema.Registry
	portability *portability.Service
}

func (d *deps) close() {
	if d.store != nil {
		_ = d.store.Close()
	}
}

func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate, "migrations")
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	var box *secrets.Box
	if len(cfg.Secrets.Key) > 0 {
		box, err = secrets.NewBox(cfg.Secrets.Key)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("initialize secrets: %w", err)
		}
	}

	svc := settings.NewService(store, box, log.Logger)
	reg := schema.NewRegistry(svc.SchemaOverrides(ctx))

	return &deps{
		store:       store,
		settings:    svc,
		registry:    reg,
		portability: portability.NewService(store, svc, log.Logger),
	}, nil
}

func providerFactory(cfg *config.Config) assistant.ProviderFactory {
	httpClient := &http.Client{Timeout: cfg.HTTP.ClientTimeout}
	return func(apiKey string) (providers.Provider, error) {
		return registry.Build(registry.BuildOptions{
			Kind:        cfg.LLM.Provider,
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      apiKey,
			HTTPClient:  httpClient,
			MaxRetries:  cfg.HTTP.MaxRetries,
			BackoffBase: cfg.HTTP.BackoffBase,
		})
	}
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
