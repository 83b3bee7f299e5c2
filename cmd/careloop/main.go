package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/careloop/careloop/internal/config"
	"github.com/careloop/careloop/internal/domain/records"
	"github.com/careloop/careloop/internal/domain/rules"
	"github.com/careloop/careloop/internal/platform/auth"
	"github.com/careloop/careloop/internal/platform/db"
	"github.com/careloop/careloop/internal/platform/middleware"
	"github.com/careloop/careloop/internal/platform/notification"
	"github.com/careloop/careloop/internal/platform/telemetry"
	"github.com/careloop/careloop/internal/platform/webhook"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "careloop",
		Short: "Patient outreach rules engine",
	}

	rootCmd.AddCommand(evalCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)
	}
	return logger
}

// newStore builds the configured record store. The returned cleanup closes
// the database pool when one was opened.
func newStore(ctx context.Context, cfg *config.Config) (records.Store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return records.NewPGStore(pool), pool.Close, nil
	default:
		store, err := records.NewJSONStore(cfg.DataDir, cfg.EventsFile)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a rule over the record data and event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			rulePath, _ := cmd.Flags().GetString("rule")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			eventsPath, _ := cmd.Flags().GetString("events")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Store = config.StoreJSON
				cfg.DataDir = dataDir
			}
			if eventsPath != "" {
				cfg.EventsFile = eventsPath
			}
			logger := newLogger(cfg)

			var ruleJSON []byte
			if rulePath != "" {
				ruleJSON, err = os.ReadFile(rulePath)
			} else {
				ruleJSON, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("read rule: %w", err)
			}

			rule, err := rules.ParseRule(ruleJSON)
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, cleanup, err := newStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			svc := rules.NewService(store, logger)
			eval, err := svc.EvaluateAll(ctx, rule)
			if err != nil {
				return err
			}

			return printReport(os.Stdout, eval)
		},
	}
	cmd.Flags().String("rule", "", "Path to a JSON file containing a single rule object; reads stdin when omitted")
	cmd.Flags().String("data-dir", "", "Path to the record data directory (overrides DATA_DIR, forces the JSON store)")
	cmd.Flags().String("events", "", "Path to the events JSON file (overrides EVENTS_FILE)")
	return cmd
}

// printReport writes the human-readable evaluation report, dispatching each
// rendered message through the console transport stub.
func printReport(w io.Writer, eval *rules.Evaluation) error {
	dispatcher := notification.NewDispatcher(
		notification.NewConsoleSender(w),
		notification.NewConsoleSender(w),
		notification.NewConsoleSender(w),
	)

	fmt.Fprintln(w, "=== Evaluation Results ===")
	n := 0
	for _, res := range eval.Results {
		switch res.Outcome {
		case rules.OutcomeMatched:
			n++
			fmt.Fprintf(w, "\n[%d] ", n)
			if _, err := dispatcher.Dispatch(context.Background(), *res.Message); err != nil {
				return err
			}
		case rules.OutcomeSkipped:
			n++
			fmt.Fprintf(w, "\n[%d] SKIPPED (%s) for event %d (%s)\n", n, res.Reason, res.EventIndex, res.EventType)
		}
	}
	if n == 0 {
		fmt.Fprintln(w, "No actions triggered.")
	}

	sum := eval.Summary()
	fmt.Fprintf(w, "\nrun %s: %d matched, %d skipped, %d no-match\n",
		eval.RunID, sum[rules.OutcomeMatched], sum[rules.OutcomeSkipped], sum[rules.OutcomeNoMatch])
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	store, cleanup, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open record store")
	}
	defer cleanup()
	logger.Info().Str("store", cfg.Store).Msg("record store ready")

	svc := rules.NewService(store, logger)
	dispatcher := notification.NewDispatcher(
		notification.NewConsoleSender(os.Stdout),
		notification.NewConsoleSender(os.Stdout),
		notification.NewConsoleSender(os.Stdout),
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	metrics := telemetry.NewProvider()
	e.Use(metrics.Middleware())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", metrics.Handler())

	webhooks := webhook.NewManager(logger)

	api := e.Group("/api/v1")
	api.Use(auth.JWTMiddleware(cfg.AuthSecret))
	rules.NewHandler(svc, dispatcher).
		WithMetrics(metrics).
		WithNotifier(webhooks).
		RegisterRoutes(api)
	records.NewHandler(store).RegisterRoutes(api)
	webhook.NewHandler(webhooks).RegisterRoutes(api)

	logger.Info().Str("port", cfg.Port).Msg("starting server")
	if err := e.Start(":" + cfg.Port); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run record store migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %s\n", "VERSION", "NAME", "STATUS")
			for _, st := range statuses {
				status := "pending"
				if st.Applied {
					status = "applied"
				}
				fmt.Printf("%-10d %-40s %s\n", st.Version, st.Name, status)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}
