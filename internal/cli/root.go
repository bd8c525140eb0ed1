// Package cli implements the cvctl command-line tool.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/app"
	"github.com/kailas-cloud/cvcontext/internal/config"
	"github.com/kailas-cloud/cvcontext/internal/logger"
	"github.com/kailas-cloud/cvcontext/internal/metrics"
	"github.com/kailas-cloud/cvcontext/internal/version"
)

const closeTimeout = 5 * time.Second

var (
	configPath string
	envName    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "cvctl",
	Short: "Resume context retrieval toolkit",
	Long: `cvctl runs the resume retrieval layer in-process: prewarm models,
query fragments, ingest resumes and measure cold versus warm latency.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (overrides --env lookup)")
	rootCmd.PersistentFlags().StringVar(&envName, "env", config.GetEnv(), "Environment name: local, dev, prod")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(prewarmCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(resetCmd)
}

// cmdContext holds the runtime shared by in-process commands.
type cmdContext struct {
	Runtime *app.Runtime
	Logger  *zap.Logger
}

// Close stops workers and closes store connections.
func (c *cmdContext) Close() {
	if err := c.Runtime.Close(closeTimeout); err != nil {
		c.Logger.Warn("Runtime close failed", zap.Error(err))
	}
	_ = c.Logger.Sync()
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath) //nolint:wrapcheck // already wrapped
	}
	return config.Load(envName) //nolint:wrapcheck // already wrapped
}

// initRuntime loads configuration and starts an in-process runtime.
func initRuntime(ctx context.Context) (*cmdContext, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logEnv := "cli"
	if envName == "test" {
		logEnv = envName
	}
	log, err := logger.NewLogger(logEnv, logger.Options{Level: logLevel})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()
	metrics.RegisterWorkerMetrics()

	rt := app.New(cfg, log)
	if err := rt.Start(ctx); err != nil {
		return nil, fmt.Errorf("start runtime: %w", err)
	}
	return &cmdContext{Runtime: rt, Logger: log}, nil
}
