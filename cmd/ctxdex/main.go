// Command ctxdex serves tenant-scoped context retrieval over HTTP and MCP,
// and runs one-shot retrievals and bulk loads from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ctxdex/internal/config"
	logpkg "github.com/kailas-cloud/ctxdex/internal/logger"
	"github.com/kailas-cloud/ctxdex/internal/version"
)

var (
	envFlag    string
	tenantFlag string
)

var rootCmd = &cobra.Command{
	Use:           "ctxdex",
	Short:         "Hybrid context retrieval with a fallback cascade",
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFlag, "env", config.GetEnv(), "config environment (config/<env>.yaml)")
	rootCmd.PersistentFlags().StringVar(&tenantFlag, "tenant", os.Getenv("CTXDEX_TENANT"), "tenant scope")

	rootCmd.AddCommand(serveCmd, mcpCmd, retrieveCmd, placesCmd, loadCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// bootstrap loads config and logger, then builds the app. Callers must Close the app.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFlag)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(envFlag, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	logger.Info("Starting ctxdex",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", envFlag),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}
