// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the settings of the edgeo-opcua-types command.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/edgeo-scada/opcua-types/complextypes"
)

// Output formats.
const (
	OutputYAML = "yaml"
	OutputJSON = "json"
	OutputText = "text"
)

// EnvPrefix prefixes the environment variables bound to settings.
const EnvPrefix = "OPCUA"

type Config struct {
	AddressSpace string `mapstructure:"address_space"`

	OnlyEnums                 bool `mapstructure:"only_enums"`
	ThrowOnError              bool `mapstructure:"throw_on_error"`
	DisableDataTypeDefinition bool `mapstructure:"disable_data_type_definition"`
	DisableDataTypeDictionary bool `mapstructure:"disable_data_type_dictionary"`
	MaxLoopCount              int  `mapstructure:"max_loop_count"`
	StrictDictionaries        bool `mapstructure:"strict_dictionaries"`

	Output   string `mapstructure:"output"`
	LogLevel string `mapstructure:"log_level"`
}

// SetDefaults registers the default of every setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("only_enums", false)
	v.SetDefault("throw_on_error", false)
	v.SetDefault("disable_data_type_definition", false)
	v.SetDefault("disable_data_type_dictionary", false)
	v.SetDefault("max_loop_count", complextypes.DefaultMaxLoopCount)
	v.SetDefault("strict_dictionaries", false)
	v.SetDefault("output", OutputYAML)
	v.SetDefault("log_level", "warn")
}

// Load reads path, when set, on top of the defaults, flags and environment
// already known to v.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings.
func (c *Config) Validate() error {
	switch c.Output {
	case OutputYAML, OutputJSON, OutputText:
	default:
		return fmt.Errorf("invalid output %q: want %s, %s or %s", c.Output, OutputYAML, OutputJSON, OutputText)
	}
	if c.MaxLoopCount <= 0 {
		return fmt.Errorf("invalid max_loop_count %d", c.MaxLoopCount)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Options returns the type system options the settings select.
func (c *Config) Options(logger *slog.Logger) []complextypes.Option {
	return []complextypes.Option{
		complextypes.WithLogger(logger),
		complextypes.WithDisableDataTypeDefinition(c.DisableDataTypeDefinition),
		complextypes.WithDisableDataTypeDictionary(c.DisableDataTypeDictionary),
		complextypes.WithStrictDictionaryValidation(c.StrictDictionaries),
		complextypes.WithMaxLoopCount(c.MaxLoopCount),
	}
}
