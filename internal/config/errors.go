package config

import "errors"

var (
	ErrReadingConfigFile   = errors.New("failed to read config file")
	ErrUnmarshallingConfig = errors.New("failed to unmarshal config")
	ErrConfigFileMissing   = errors.New("config file not found")
	ErrNoInput             = errors.New("input path cannot be empty")
	ErrNoOutput            = errors.New("output path cannot be empty")
	ErrNoRegions           = errors.New("regions list cannot be empty")
	ErrRegionName          = errors.New("region name cannot be empty")
	ErrRegionBounds        = errors.New("region bounds are malformed")
	ErrNoMonths            = errors.New("months list cannot be empty")
	ErrMonthRange          = errors.New("months must be between 1 and 12")
	ErrBinWidth            = errors.New("bin width must be positive")
	ErrBinRange            = errors.New("bin max must exceed bin min")
	ErrNegativeThreshold   = errors.New("threshold cannot be negative")
	ErrNegativeWorkers     = errors.New("workers cannot be negative")
)
