package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"LayerHop/internal/hop"
)

// Config is the on-disk configuration. Everything has a sane default so the
// process runs with no config file at all.
type Config struct {
	Listen    string     `yaml:"listen"`
	StorePath string     `yaml:"store_path"`
	Debug     bool       `yaml:"debug"`
	Params    hop.Params `yaml:"params"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Listen:    "127.0.0.1:7344",
		StorePath: "data/layerhop",
		Params:    hop.DefaultParams(),
	}
}

func loadConfigFromFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Overrides are optional command-line overrides applied on top of the file.
type Overrides struct {
	Listen       *string
	StorePath    *string
	Debug        *bool
	HopTimeoutS  *float64
	SettleDelayS *float64
	StalenessS   *float64
	MaxRetries   *int
}

func (o Overrides) apply(cfg Config) Config {
	if o.Listen != nil {
		cfg.Listen = *o.Listen
	}
	if o.StorePath != nil {
		cfg.StorePath = *o.StorePath
	}
	if o.Debug != nil {
		cfg.Debug = *o.Debug
	}
	if o.HopTimeoutS != nil {
		cfg.Params.HopTimeoutS = *o.HopTimeoutS
	}
	if o.SettleDelayS != nil {
		cfg.Params.SettleDelayS = *o.SettleDelayS
	}
	if o.StalenessS != nil {
		cfg.Params.StalenessWindowS = *o.StalenessS
	}
	if o.MaxRetries != nil {
		cfg.Params.MaxRetries = *o.MaxRetries
	}
	return cfg
}
