// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in
// priority order. The first one found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/adcollector/config.yaml",
	"/etc/adcollector/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "ADCOLLECTOR_CONFIG_PATH"

// envPrefix is stripped from every environment variable before it is
// translated into a koanf path.
const envPrefix = "ADCOLLECTOR_"

var validate = validator.New()

// Load builds a Config from three layered sources, lowest priority
// first: the built-in defaults, an optional YAML config file, then
// environment variables prefixed with ADCOLLECTOR_. Env vars always
// win over the file, which always wins over defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyToPath), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envKeyToPath turns ADCOLLECTOR_RATE_LIMIT_MAX_RETRIES into
// rate_limit.max_retries: lowercase, strip the prefix, and treat the
// leading known section name (see sectionFields) as the struct's koanf
// tag, the rest as the nested field.
func envKeyToPath(key string) string {
	key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
	for section := range sectionFields {
		if key == section || strings.HasPrefix(key, section+"_") {
			rest := strings.TrimPrefix(key, section)
			rest = strings.TrimPrefix(rest, "_")
			if rest == "" {
				return section
			}
			return section + "." + rest
		}
	}
	return ""
}

// sectionFields names the top-level koanf sections so envKeyToPath can
// find where the section name ends and the field name begins, e.g.
// "rate_limit" itself contains an underscore.
var sectionFields = map[string]bool{
	"proxy":      true,
	"rate_limit": true,
	"session":    true,
	"dedup":      true,
	"query":      true,
	"logging":    true,
}
