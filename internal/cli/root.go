package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/nakt/dify-workflow-api-executor/internal/batch"
	"github.com/nakt/dify-workflow-api-executor/internal/batch/health"
	"github.com/nakt/dify-workflow-api-executor/internal/batch/recovery"
	"github.com/nakt/dify-workflow-api-executor/internal/core/config"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/dify"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/input"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/ledger"
	redisclient "github.com/nakt/dify-workflow-api-executor/internal/infra/redis"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/sink"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/storage"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/storage/postgres"
)

// Exit codes
const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

var (
	cfgPath      string
	isDebug      bool
	inputPath    string
	outputPath   string
	ledgerPath   string
	retryMode    bool
	waitSeconds  float64
	validateOnly bool
	userTag      string
)

var rootCmd = &cobra.Command{
	Use:   "dify-executor",
	Short: "Run a Dify workflow once per CSV row",
	Long: `dify-executor reads rows from a CSV file, runs a Dify workflow for each row,
appends one JSON line per finished row to the output file and records failed
row ids so that a later --retry run only processes those.`,
	Args: cobra.NoArgs,
	Run:  runExecutor,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitError)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "output JSONL file")
	rootCmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "", "failure ledger file (default is <output>.retry)")

	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input CSV file with an id column")
	rootCmd.Flags().BoolVar(&retryMode, "retry", false, "process only rows recorded in the failure ledger")
	rootCmd.Flags().Float64VarP(&waitSeconds, "wait", "w", 0, "seconds to wait between rows")
	rootCmd.Flags().BoolVar(&validateOnly, "validate", false, "validate configuration and exit")
	rootCmd.Flags().StringVar(&userTag, "user", "", "caller identity sent with each request")
}

// loadConfig loads .env, the config file and flag overrides, then installs the logger.
func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		return nil, err
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	if userTag != "" {
		cfg.Dify.User = userTag
	}
	if ledgerPath != "" {
		cfg.Ledger.Path = ledgerPath
	}
	return cfg, nil
}

func runExecutor(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(exitError)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(exitError)
	}

	if validateOnly {
		slog.Info("Configuration is valid",
			"base_url", cfg.Dify.BaseURL,
			"workflow_id", cfg.Dify.WorkflowID,
			"api_key", cfg.MaskedAPIKey(),
			"user", cfg.Dify.User,
			"max_retries", cfg.Retry.MaxRetries,
			"initial_delay", cfg.Retry.InitialDelay,
			"max_delay", cfg.Retry.MaxDelay,
			"timeout", cfg.Dify.Timeout,
			"ledger_backend", cfg.Ledger.Backend,
		)
		return
	}

	if err := checkRunFlags(); err != nil {
		slog.Error("Invalid arguments", "error", err)
		_ = cmd.Usage()
		os.Exit(exitError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, cfg)
	stop()
	os.Exit(code)
}

// checkRunFlags validates the flags a batch run needs beyond configuration.
func checkRunFlags() error {
	if inputPath == "" || outputPath == "" {
		return fmt.Errorf("both --input and --output are required (unless --validate is specified)")
	}
	if waitSeconds < 0 {
		return fmt.Errorf("--wait must not be negative: %v", waitSeconds)
	}
	return nil
}

func execute(ctx context.Context, cfg *config.AppConfig) int {
	src, err := input.NewCSVSource(inputPath)
	if err != nil {
		slog.Error("Failed to open input", "error", err)
		return exitError
	}

	failures, closeLedger, err := openLedger(ctx, cfg, outputPath)
	if err != nil {
		slog.Error("Failed to open failure ledger", "error", err)
		return exitError
	}
	defer closeLedger()

	var db *postgres.DB
	if cfg.Database.URL != "" {
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			slog.Error("Failed to init db", "error", err)
			return exitError
		}
		defer func() {
			_ = db.Close()
		}()
		if err := postgres.Migrate(ctx, db); err != nil {
			slog.Error("Failed to migrate db", "error", err)
			return exitError
		}
	}

	client := dify.NewClient(dify.Config{
		BaseURL:    cfg.Dify.BaseURL,
		APIKey:     cfg.Dify.APIKey,
		WorkflowID: cfg.Dify.WorkflowID,
		Timeout:    cfg.Dify.Timeout,
	})
	defer func() {
		_ = client.Close()
	}()

	batchID := uuid.NewString()
	openSink := func(ctx context.Context) (storage.ResultSink, error) {
		out, err := sink.OpenJSONL(outputPath)
		if err != nil {
			return nil, err
		}
		if db == nil {
			return out, nil
		}
		return sink.Multi(out, postgres.NewResultRepo(db, batchID)), nil
	}

	proc := batch.NewProcessor(batch.Config{
		Source:   src,
		Invoker:  client,
		Strategy: recovery.NewBackoff(cfg.Retry.MaxRetries, cfg.Retry.InitialDelay, cfg.Retry.MaxDelay),
		OpenSink: openSink,
		Ledger:   failures,
		Progress: os.Stderr,
	})

	if cfg.Server.Port > 0 {
		srv := health.NewServer(health.NewMonitor(proc, failures), cfg.Server.Port)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				slog.Error("Error during health server shutdown", "error", err)
			}
		}()
	}

	slog.Info("Executor started",
		"input", inputPath,
		"output", outputPath,
		"ledger", failures.String(),
		"endpoint", client.Endpoint(),
		"retry", retryMode,
	)

	summary, err := proc.Run(ctx, batch.Request{
		RetryMode: retryMode,
		Wait:      time.Duration(waitSeconds * float64(time.Second)),
		User:      cfg.Dify.User,
		BatchID:   batchID,
	})

	stats := client.Stats()
	slog.Debug("Invoker stats",
		"success", stats.SuccessCount,
		"failure", stats.FailureCount,
		"avg_latency", stats.AvgLatency,
	)

	switch {
	case errors.Is(err, context.Canceled) || summary.Interrupted:
		slog.Warn("Interrupted, progress so far is saved", "output", outputPath)
		return exitInterrupted
	case err != nil:
		slog.Error("Batch failed", "error", err)
		return exitError
	case summary.Aborted:
		return exitError
	}
	return exitOK
}

// openLedger builds the configured failure ledger. The returned func releases it.
func openLedger(ctx context.Context, cfg *config.AppConfig, output string) (storage.FailureLedger, func(), error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendRedis:
		client, err := redisclient.NewClient(ctx, cfg.Ledger.Redis)
		if err != nil {
			return nil, nil, err
		}
		l := redisclient.NewRetryLedger(client, cfg.Ledger.Redis.Prefix, output)
		return l, func() { _ = client.Close() }, nil
	case config.LedgerBackendFile, "":
		path := cfg.Ledger.Path
		if path == "" {
			if output == "" {
				return nil, nil, fmt.Errorf("an output path or --ledger is required")
			}
			path = ledger.PathFor(output)
		}
		return ledger.NewFile(path), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Ledger.Backend)
	}
}
