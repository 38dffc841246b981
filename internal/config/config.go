// Package config loads tool-level defaults from an optional config
// file and environment variables. Profile content never lives here;
// this is only runner tuning (workers, timeouts, output locations).
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Workers     int           `mapstructure:"workers"`
	Timeout     time.Duration `mapstructure:"timeout"`
	EvidenceDir string        `mapstructure:"evidenceDir"`
	Level       string        `mapstructure:"level"`
	FailLevel   string        `mapstructure:"failLevel"`
	FailOnUndef bool          `mapstructure:"failOnUndef"`
	LogFormat   string        `mapstructure:"logFormat"`
	LogLevel    string        `mapstructure:"logLevel"`
	LogOutput   string        `mapstructure:"logOutput"`
	Receipt     string        `mapstructure:"receipt"`
	ReceiptMode string        `mapstructure:"receiptMode"`
	Inventory   string        `mapstructure:"inventory"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults apply.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("hostlint")
	v.SetConfigType("yaml")

	v.SetDefault("workers", 0)
	v.SetDefault("timeout", 10*time.Second)
	v.SetDefault("level", "baseline")
	v.SetDefault("failLevel", "high")
	v.SetDefault("logFormat", "pretty")
	v.SetDefault("logLevel", "info")
	v.SetDefault("logOutput", "stderr")
	v.SetDefault("receiptMode", "overwrite")

	v.SetEnvPrefix("HOSTLINT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	var config Config
	err := v.Unmarshal(&config)
	return config, err
}
