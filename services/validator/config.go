// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validator

import (
	"fmt"
	"os"
	"strconv"

	govalidator "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/groundgate/groundgate/pkg/validation"
	"github.com/groundgate/groundgate/services/validator/claims"
	"github.com/groundgate/groundgate/services/validator/clients"
	"github.com/groundgate/groundgate/services/validator/coverage"
	"github.com/groundgate/groundgate/services/validator/decision"
	"github.com/groundgate/groundgate/services/validator/evidence"
	"github.com/groundgate/groundgate/services/validator/recorder"
	"github.com/groundgate/groundgate/services/validator/safety"
)

// LoggingConfig is the logging section of the service config.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// LogDir enables JSON file logging when set.
	LogDir string `yaml:"log_dir"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

// Config is the full service configuration, assembled from the per-package
// sections. Values load from YAML, then environment overrides, then defaults.
type Config struct {
	// Port is the HTTP server port.
	Port int `yaml:"port" validate:"gt=0,lte=65535"`

	// GinMode is "debug", "release", or "test".
	GinMode string `yaml:"gin_mode"`

	// WeaviateURL is the retrieval collaborator endpoint. If empty the
	// service requires passages on every request.
	WeaviateURL string `yaml:"weaviate_url"`

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	OTelEndpoint string `yaml:"otel_endpoint"`

	Logging LoggingConfig `yaml:"logging"`

	Retriever  clients.RetrieverConfig  `yaml:"retriever"`
	Drafter    clients.DrafterConfig    `yaml:"drafter"`
	Entailment clients.EntailmentConfig `yaml:"entailment"`
	Moderation clients.ModerationConfig `yaml:"moderation"`

	Claims       claims.Config               `yaml:"claims"`
	Evidence     evidence.Config             `yaml:"evidence"`
	Coverage     coverage.Config             `yaml:"coverage"`
	Safety       safety.Config               `yaml:"safety"`
	Aggregator   decision.AggregatorConfig   `yaml:"aggregator"`
	Orchestrator decision.OrchestratorConfig `yaml:"orchestrator"`

	Recorder recorder.Config       `yaml:"recorder"`
	Store    recorder.StoreConfig  `yaml:"store"`
	Influx   recorder.InfluxConfig `yaml:"influx"`
}

// DefaultServiceConfig returns a complete runnable configuration.
func DefaultServiceConfig() Config {
	return Config{
		Port:         12310,
		OTelEndpoint: "groundgate-otel-collector:4317",
		Logging:      LoggingConfig{Level: "info"},
		Retriever:    clients.DefaultRetrieverConfig(),
		Drafter:      clients.DefaultDrafterConfig(),
		Entailment:   clients.DefaultEntailmentConfig(),
		Claims:       claims.DefaultConfig(),
		Evidence:     evidence.DefaultConfig(),
		Coverage:     coverage.DefaultConfig(),
		Safety:       safety.DefaultConfig(),
		Aggregator:   decision.DefaultAggregatorConfig(),
		Orchestrator: decision.DefaultOrchestratorConfig(),
		Recorder:     recorder.DefaultConfig(),
		Store:        recorder.DefaultStoreConfig(),
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides and validates the result. An empty path skips the
// file and uses defaults plus environment only.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultServiceConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := govalidator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validation.ValidateClassName(cfg.Retriever.ClassName); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets deployment environments override the fields that
// differ per environment: endpoints, credentials, and the port. Tuning
// thresholds stay in the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GROUNDGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		cfg.GinMode = v
	}
	if v := os.Getenv("WEAVIATE_URL"); v != "" {
		cfg.WeaviateURL = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTelEndpoint = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.Drafter.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Entailment.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Drafter.APIKey == "" {
			cfg.Drafter.APIKey = v
		}
		if cfg.Entailment.APIKey == "" {
			cfg.Entailment.APIKey = v
		}
		if cfg.Moderation.APIKey == "" {
			cfg.Moderation.APIKey = v
		}
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.Influx.Token = v
	}
	if v := os.Getenv("RECORD_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
}
