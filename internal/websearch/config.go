// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package websearch

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed providers.yaml
var defaultProvidersYAML []byte

// DispatcherConfig is the on-disk shape of the provider priority/rate-limit
// configuration: which provider is active, the fallback order, and a
// per-provider requests-per-second budget for RateLimitedProvider. This
// mirrors the teacher's own embedded-default-plus-file-override pattern for
// its pre-filter rules.
type DispatcherConfig struct {
	ActiveProvider string             `yaml:"active_provider"`
	Priority       []string           `yaml:"priority"`
	RateLimits     map[string]float64 `yaml:"rate_limits"`
}

// LoadConfig reads a DispatcherConfig from path. If path is empty, or the
// file does not exist, the embedded default configuration is used instead
// so the dispatcher always has a usable priority order.
func LoadConfig(path string) (*DispatcherConfig, error) {
	raw := defaultProvidersYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			raw = data
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("websearch: read config %s: %w", path, err)
		}
	}

	var cfg DispatcherConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("websearch: parse config: %w", err)
	}
	return &cfg, nil
}

// ApplyTo sets reg's active provider and priority order from cfg. Registry
// construction still happens separately (NewRegistry), since the active
// provider name is needed before any Provider is registered.
func (cfg *DispatcherConfig) ApplyTo(reg *Registry) {
	reg.active = cfg.ActiveProvider
	reg.SetPriority(cfg.Priority)
}

// RateLimit returns the configured requests-per-second budget for name, or
// 0 if none is configured (callers should treat 0 as "do not rate limit").
func (cfg *DispatcherConfig) RateLimit(name string) float64 {
	return cfg.RateLimits[name]
}
