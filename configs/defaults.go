package configs

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

//go:embed config.example.yaml
var defaultConfigYAML string

// DefaultConfig decodes the embedded config.example.yaml. Every call returns
// a fresh value, so callers may change the Networks map of the result.
func DefaultConfig() (Config, error) {
	v := viper.New()
	if err := MergeDefaults(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode embedded config.example.yaml: %w", err)
	}

	return cfg, nil
}

func MustDefaultConfig() Config {
	cfg, err := DefaultConfig()
	if err != nil {
		panic(err)
	}
	return cfg
}

// MergeDefaults seeds v with the embedded defaults so that a user config file
// only needs to carry the keys it overrides.
func MergeDefaults(v *viper.Viper) error {
	v.SetConfigType("yaml")
	if err := v.MergeConfig(strings.NewReader(defaultConfigYAML)); err != nil {
		return fmt.Errorf("failed to read embedded defaults: %w", err)
	}
	return nil
}
