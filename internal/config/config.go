// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and hot-reloads sollol's YAML configuration file,
// following the same load-once-then-watch shape used elsewhere in the
// example pack's CLI config loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the orchestrator's HTTP listener.
type ServerConfig struct {
	Port            int  `yaml:"port"`
	DashboardEnabled bool `yaml:"dashboard_enabled"`
}

// DiscoveryConfig configures CIDR-based fleet discovery.
type DiscoveryConfig struct {
	CIDR           string `yaml:"cidr"`
	Port           int    `yaml:"port"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// StaticNode is one manually-configured node entry.
type StaticNode struct {
	URL        string  `yaml:"url"`
	Name       string  `yaml:"name"`
	Priority   int     `yaml:"priority"`
	LimiterRPS float64 `yaml:"limiter_rps"`
}

// WorkflowConfig configures CollaborativeWorkflow defaults.
type WorkflowConfig struct {
	Model             string  `yaml:"model"`
	RefinementRounds  int     `yaml:"refinement_rounds"`
	QualityThreshold  float64 `yaml:"quality_threshold"`
	QualityMaxRetries int     `yaml:"quality_max_retries"`
}

// LongformConfig configures the LongformEngine defaults.
type LongformConfig struct {
	Model            string `yaml:"model"`
	MaxChunks        int    `yaml:"max_chunks"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
}

// WeaviateConfig points at an optional RAG backing store.
type WeaviateConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Class   string `yaml:"class"`
}

// OTelConfig configures the telemetry exporter.
type OTelConfig struct {
	Enabled        bool   `yaml:"enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
}

// Config is sollol's full configuration schema.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Nodes     []StaticNode    `yaml:"nodes"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Longform  LongformConfig  `yaml:"longform"`
	Weaviate  WeaviateConfig  `yaml:"weaviate"`
	OTel      OTelConfig      `yaml:"otel"`
}

// Default returns the configuration used when no file is present yet.
func Default() Config {
	return Config{
		Server:    ServerConfig{Port: 11434, DashboardEnabled: true},
		Discovery: DiscoveryConfig{CIDR: "", Port: 11434, TimeoutSeconds: 2},
		Workflow: WorkflowConfig{
			Model:             "llama3.2:3b",
			RefinementRounds:  0,
			QualityThreshold:  0.6,
			QualityMaxRetries: 2,
		},
		Longform: LongformConfig{
			Model:            "llama3.2:3b",
			MaxChunks:        5,
			MaxContextTokens: 2000,
		},
		OTel: OTelConfig{Enabled: false, ServiceName: "sollol"},
	}
}

// Load reads path, creating it with Default() contents if it does not
// exist, then applies SOLLOL_-prefixed environment variable overrides.
func Load(path string) (Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".sollol", "sollol.yaml")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides lets deployment environments override the handful of
// settings that commonly vary per-host without editing the checked-in
// config file, mirroring the cmd/orchestrator container environment
// variables the prior stub exposed.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SOLLOL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SOLLOL_DISCOVERY_CIDR"); v != "" {
		cfg.Discovery.CIDR = v
	}
	if v := os.Getenv("SOLLOL_WORKFLOW_MODEL"); v != "" {
		cfg.Workflow.Model = v
	}
	if v := os.Getenv("SOLLOL_LONGFORM_MODEL"); v != "" {
		cfg.Longform.Model = v
	}
	if v := os.Getenv("SOLLOL_OTEL_ENDPOINT"); v != "" {
		cfg.OTel.Enabled = true
		cfg.OTel.OTLPEndpoint = v
	}
	if v := os.Getenv("SOLLOL_WEAVIATE_URL"); v != "" {
		cfg.Weaviate.Enabled = true
		cfg.Weaviate.URL = v
	}
}

// Watch notifies onChange with a freshly reloaded Config whenever path
// changes on disk. The returned fsnotify.Watcher must be closed by the
// caller to stop watching.
func Watch(path string, onChange func(Config)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path || (ev.Op&(fsnotify.Write|fsnotify.Create) == 0) {
					continue
				}
				cfg, err := Load(path)
				if err == nil {
					onChange(cfg)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, nil
}
