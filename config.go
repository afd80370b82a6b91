package watermark

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables which can be read from a YAML file.
//
//	skip: 2
//	workers: 4
//	jpeg_quality: 85
//	continue_on_error: true
//	staging_dir: /var/tmp
//	filter:
//	  dark_sum: 350
//	  tolerance: 40
type Config struct {
	Skip            int    `yaml:"skip"`
	Workers         int    `yaml:"workers"`
	JPEGQuality     int    `yaml:"jpeg_quality"`
	ContinueOnError bool   `yaml:"continue_on_error"`
	StagingDir      string `yaml:"staging_dir"`
	Filter          Filter `yaml:"filter"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		JPEGQuality: DefaultJPEGQuality,
		Filter: Filter{
			DarkSum:   DefaultDarkSum,
			Tolerance: DefaultTolerance,
		},
	}
}

// LoadConfig reads a YAML config file. Settings missing from the file keep
// their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings for values Run would reject or misinterpret.
func (c Config) Validate() error {
	if c.Skip < 0 {
		return fmt.Errorf("skip must not be negative, got %d", c.Skip)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be in 1..100, got %d", c.JPEGQuality)
	}
	if c.Filter.DarkSum <= 0 || c.Filter.DarkSum > 3*255+1 {
		return fmt.Errorf("filter.dark_sum must be in 1..766, got %d", c.Filter.DarkSum)
	}
	if c.Filter.Tolerance <= 0 || c.Filter.Tolerance > 255 {
		return fmt.Errorf("filter.tolerance must be in 1..255, got %d", c.Filter.Tolerance)
	}
	return nil
}

// Options returns run options for the given input and output files.
func (c Config) Options(input, output string) Options {
	return Options{
		Input:           input,
		Output:          output,
		Skip:            c.Skip,
		StagingDir:      c.StagingDir,
		Workers:         c.Workers,
		JPEGQuality:     c.JPEGQuality,
		ContinueOnError: c.ContinueOnError,
		Filter:          c.Filter,
	}
}
