// Package config holds the pipeline's environment-driven settings.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config collects the directory layout and fetch settings shared by
// the pipeline stages.  Everything has a default; nothing is required
// on the command line.
type Config struct {
	// RawDir caches the downloaded survey files, one subdirectory
	// per cycle.
	RawDir string `env:"CHD_RAW_DIR" envDefault:"data/raw"`

	// ProcessedDir holds the per-cycle harmonized stage files.
	ProcessedDir string `env:"CHD_PROCESSED_DIR" envDefault:"data/processed"`

	// CohortDir is the assembled binary-column cohort.
	CohortDir string `env:"CHD_COHORT_DIR" envDefault:"data/cohort"`

	// OutputDir receives the emitted prevalence tables.
	OutputDir string `env:"CHD_OUTPUT_DIR" envDefault:"output"`

	// BaseURL is the survey archive root.
	BaseURL string `env:"CHD_NHANES_BASE" envDefault:"https://wwwn.cdc.gov"`

	// FetchTimeout bounds a single file download.
	FetchTimeout time.Duration `env:"CHD_FETCH_TIMEOUT" envDefault:"2m"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
