// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is an in-memory Reader backed by a flat key/value map, filled
// from a YAML file at startup by LoadFile and never mutated afterward.
type Settings struct {
	values map[string]interface{}
}

// New returns a Settings seeded with Defaults, with values overridden by
// the given map.
func New(values map[string]interface{}) *Settings {
	merged := make(map[string]interface{}, len(Defaults)+len(values))
	for k, v := range Defaults {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	return &Settings{values: merged}
}

// LoadFile parses a YAML configuration file at path into a Settings,
// falling back to Defaults for any key the file does not set.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return New(raw), nil
}

// GetBool implements Reader.
func (s *Settings) GetBool(key string) bool {
	v, ok := s.values[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// GetInt implements Reader.
func (s *Settings) GetInt(key string) int {
	switch v := s.values[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// GetString implements Reader.
func (s *Settings) GetString(key string) string {
	v, _ := s.values[key].(string)
	return v
}

// GetDuration implements Reader. Values are read as seconds (matching
// keys like metadata_reporter_interval_seconds).
func (s *Settings) GetDuration(key string) time.Duration {
	return time.Duration(s.GetInt(key)) * time.Second
}

// GetStringSlice implements Reader.
func (s *Settings) GetStringSlice(key string) []string {
	v, ok := s.values[key].([]interface{})
	if !ok {
		if strs, ok := s.values[key].([]string); ok {
			return strs
		}
		return nil
	}
	out := make([]string, 0, len(v))
	for _, item := range v {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
