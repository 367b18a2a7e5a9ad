// chdtrend runs the NHANES CHD prevalence-trend pipeline.  The four
// stages are standalone subcommands and must run in order:
//
//	chdtrend fetch      download the raw survey files
//	chdtrend harmonize  map cycle-native variables onto the unified schema
//	chdtrend assemble   build the pooled 35-year cohort
//	chdtrend estimate   compute prevalence tables and trend tests
package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brookluers/chdtrend/internal/cohort"
	"github.com/brookluers/chdtrend/internal/config"
	"github.com/brookluers/chdtrend/internal/estimate"
	"github.com/brookluers/chdtrend/internal/fetch"
	"github.com/brookluers/chdtrend/internal/harmonize"
)

var (
	cfg     config.Config
	logger  *zap.Logger
	verbose bool

	// Optional path overrides; defaults come from the environment.
	dataDir   string
	outputDir string
)

var rootCmd = &cobra.Command{
	Use:           "chdtrend",
	Short:         "NHANES coronary heart disease prevalence trends, 1988-2023",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}
		if dataDir != "" {
			cfg.RawDir = filepath.Join(dataDir, "raw")
			cfg.ProcessedDir = filepath.Join(dataDir, "processed")
			cfg.CohortDir = filepath.Join(dataDir, "cohort")
		}

		zc := zap.NewDevelopmentConfig()
		if !verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		} else {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download raw survey files into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := fetch.New(cfg.BaseURL, cfg.RawDir,
			&http.Client{Timeout: cfg.FetchTimeout}, logger)
		return f.Run(cmd.Context())
	},
}

var harmonizeCmd = &cobra.Command{
	Use:   "harmonize",
	Short: "Map cycle-native variables onto the unified schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		h := harmonize.New(cfg.RawDir, logger)
		return h.Run(cfg.ProcessedDir)
	},
}

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Concatenate harmonized cycles into the pooled cohort",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cohort.Assemble(cfg.ProcessedDir, cfg.CohortDir, logger)
	},
}

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Compute survey-weighted prevalence tables and trend tests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return estimate.Run(cfg.CohortDir, cfg.OutputDir, logger)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the data directory root")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "override the output directory")
	rootCmd.AddCommand(fetchCmd, harmonizeCmd, assembleCmd, estimateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chdtrend: %v\n", err)
		os.Exit(1)
	}
}
