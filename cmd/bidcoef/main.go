package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bidcoef/config"
	"bidcoef/database"
)

var (
	verbose    bool
	configPath string
	dbPath     string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bidcoef",
	Short: "BoQ matching and per-item coefficient optimization",
	Long: `bidcoef matches bill-of-quantities items against a price catalog and
solves for per-item coefficients that keep every stage within its forecast.

Input is a JSON bundle:
  {"project": "...", "documents": [...], "catalog": [...],
   "forecasts": [...], "overrides": [...]}`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			if err := os.Setenv(config.ConfigFileEnv, configPath); err != nil {
				return err
			}
		}

		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DatabasePath = dbPath
		}

		logger, err = newLogger(cfg.LogLevel, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func openHistory() (*database.DB, error) {
	db, err := database.NewDBWithConfig(cfg.DatabasePath, database.DBConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", cfg.DatabasePath, err)
	}
	return db, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (or set "+config.ConfigFileEnv+")")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Iteration history database (overrides DATABASE_PATH)")

	candidatesCmd.Flags().StringVar(&itemID, "item", "", "Work item ID (required)")
	_ = candidatesCmd.MarkFlagRequired("item")

	overrideCmd.Flags().StringVar(&itemID, "item", "", "Work item ID (required)")
	overrideCmd.Flags().StringVar(&entryID, "entry", "", "Catalog entry ID (required)")
	_ = overrideCmd.MarkFlagRequired("item")
	_ = overrideCmd.MarkFlagRequired("entry")

	optimizeCmd.Flags().IntVar(&iterationNumber, "iteration", 0, "Iteration number (default: next after history)")
	optimizeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Do not record the iteration in history")
	optimizeCmd.Flags().BoolVar(&compare, "compare", false, "Include coefficient changes against the previous iteration")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)

	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
