package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bi-agent/internal/config"
)

var (
	cfg *config.Config

	pipelineFile  string
	executionFile string
)

var rootCmd = &cobra.Command{
	Use:   "bi-agent",
	Short: "Business intelligence over the deal pipeline and work order tracker",
	Long:  "Fetches the deal pipeline and work order collections, cleans and links them, and answers founder questions with computed metrics.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		applyFileOverrides(cfg)

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyFileOverrides points a collection at a local export when its flag
// is set.
func applyFileOverrides(c *config.Config) {
	if pipelineFile != "" {
		c.Sources.Pipeline = config.SourceConfig{Kind: config.SourceFile, Path: pipelineFile}
	}
	if executionFile != "" {
		c.Sources.Execution = config.SourceConfig{Kind: config.SourceFile, Path: executionFile}
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&pipelineFile, "pipeline-file", "", "read the deal pipeline from a CSV/XLSX export instead of the configured source")
	rootCmd.PersistentFlags().StringVar(&executionFile, "execution-file", "", "read work orders from a CSV/XLSX export instead of the configured source")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
