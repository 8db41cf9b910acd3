// Package config loads and validates the static run configuration: input
// and output paths, named regions, months, the three bin specifications,
// the exceedance threshold, and logging. All validation failures are fatal
// at startup; a run never begins on a malformed configuration.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultThreshold  = 0.25 // mm/hr, the conventional precipitating cutoff
	defaultLogLevel   = "info"
	defaultLogFormat  = "console"
	defaultLogDir     = "log"
	defaultLogFile    = "convstats.log"
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 3
	defaultMaxAgeDays = 7

	// Environment variable prefix
	envPrefix = "CONVSTATS"
)

type Config struct {
	Input    string         `mapstructure:"input"`
	Output   string         `mapstructure:"output"`
	Author   string         `mapstructure:"author"`
	HTTPAddr string         `mapstructure:"httpAddr"`
	Workers  int            `mapstructure:"workers"`
	Regions  []RegionConfig `mapstructure:"regions"`
	Months   []int          `mapstructure:"months"`
	Bins     BinsConfig     `mapstructure:"bins"`
	// Threshold is the precipitation exceedance cutoff, in the
	// precipitation units of the input file.
	Threshold float64   `mapstructure:"threshold"`
	Log       LogConfig `mapstructure:"log"`
}

// RegionConfig is one named latitude/longitude bounding box. Longitudes
// follow the convention of the input grid.
type RegionConfig struct {
	Name   string  `mapstructure:"name"`
	LatMin float64 `mapstructure:"latmin"`
	LatMax float64 `mapstructure:"latmax"`
	LonMin float64 `mapstructure:"lonmin"`
	LonMax float64 `mapstructure:"lonmax"`
}

// BinConfig carries one axis's bin parameters.
type BinConfig struct {
	Min   float64 `mapstructure:"min"`
	Max   float64 `mapstructure:"max"`
	Width float64 `mapstructure:"width"`
}

type BinsConfig struct {
	BL     BinConfig `mapstructure:"bl"`
	Subsat BinConfig `mapstructure:"subsat"`
	Cape   BinConfig `mapstructure:"cape"`
}

type LogConfig struct {
	Level              string `mapstructure:"level"`
	Format             string `mapstructure:"format"`
	FileLoggingEnabled bool   `mapstructure:"fileLoggingEnabled"`
	Directory          string `mapstructure:"directory"`
	Filename           string `mapstructure:"filename"`
	MaxSize            int    `mapstructure:"maxSize"`    // Max size in MB
	MaxBackups         int    `mapstructure:"maxBackups"` // Max backup files
	MaxAge             int    `mapstructure:"maxAge"`     // Max days to retain
	Compress           bool   `mapstructure:"compress"`   // Compress rotated files?
}

// Load initializes viper, reads config, applies defaults, unmarshals, and
// validates.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	configureViper(v, configPath)
	setDefaults(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnmarshallingConfig, err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configureViper sets up the viper instance for file and environment
// variables.
func configureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults applies default configuration values. The bin defaults are
// the canonical axes of the reference analyses: BL in m/s^2 at 0.0025
// resolution, the two thermodynamic components in kelvin at one-kelvin
// resolution.
func setDefaults(v *viper.Viper) {
	v.SetDefault("threshold", defaultThreshold)
	v.SetDefault("workers", 0)
	v.SetDefault("bins.bl.min", -0.6)
	v.SetDefault("bins.bl.max", 0.1)
	v.SetDefault("bins.bl.width", 0.0025)
	v.SetDefault("bins.subsat.min", -2.0)
	v.SetDefault("bins.subsat.max", 40.0)
	v.SetDefault("bins.subsat.width", 1.0)
	v.SetDefault("bins.cape.min", -20.0)
	v.SetDefault("bins.cape.max", 10.0)
	v.SetDefault("bins.cape.width", 1.0)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("log.fileLoggingEnabled", false)
	v.SetDefault("log.directory", defaultLogDir)
	v.SetDefault("log.filename", defaultLogFile)
	v.SetDefault("log.maxSize", defaultMaxSizeMB)
	v.SetDefault("log.maxBackups", defaultMaxBackups)
	v.SetDefault("log.maxAge", defaultMaxAgeDays)
	v.SetDefault("log.compress", false)
}

// readConfigFile attempts to read the configuration file specified in
// viper.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return ErrConfigFileMissing
		}
		return fmt.Errorf("%w: %w", ErrReadingConfigFile, err)
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Input == "" {
		return ErrNoInput
	}
	if cfg.Output == "" {
		return ErrNoOutput
	}
	if cfg.Threshold < 0 {
		return ErrNegativeThreshold
	}
	if cfg.Workers < 0 {
		return ErrNegativeWorkers
	}
	if len(cfg.Regions) == 0 {
		return ErrNoRegions
	}
	for _, r := range cfg.Regions {
		if r.Name == "" {
			return ErrRegionName
		}
		if r.LatMin >= r.LatMax || r.LonMin >= r.LonMax || r.LatMin < -90 || r.LatMax > 90 {
			return fmt.Errorf("%w: region %q", ErrRegionBounds, r.Name)
		}
	}
	if len(cfg.Months) == 0 {
		return ErrNoMonths
	}
	for _, m := range cfg.Months {
		if m < 1 || m > 12 {
			return fmt.Errorf("%w: got %d", ErrMonthRange, m)
		}
	}
	for _, b := range []struct {
		name string
		bin  BinConfig
	}{
		{"bl", cfg.Bins.BL}, {"subsat", cfg.Bins.Subsat}, {"cape", cfg.Bins.Cape},
	} {
		if b.bin.Width <= 0 {
			return fmt.Errorf("%w: axis %s", ErrBinWidth, b.name)
		}
		if b.bin.Max <= b.bin.Min {
			return fmt.Errorf("%w: axis %s", ErrBinRange, b.name)
		}
	}
	return nil
}
