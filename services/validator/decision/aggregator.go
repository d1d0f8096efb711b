// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decision

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/groundgate/groundgate/services/validator/datatypes"
)

var tracer = otel.Tracer("groundgate.validator.decision")

// AggregatorConfig configures the decision chain.
type AggregatorConfig struct {
	// AcceptThreshold is the minimum grounded ratio to accept.
	AcceptThreshold float64 `yaml:"accept_threshold" validate:"gt=0,lte=1"`

	// MaxAttempts bounds drafts per query (default small: retries are a
	// latency cost the user pays).
	MaxAttempts int `yaml:"max_attempts" validate:"gt=0"`
}

// DefaultAggregatorConfig returns production defaults.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		AcceptThreshold: 0.8,
		MaxAttempts:     3,
	}
}

// Aggregator runs the ordered stage chain over one attempt's verdicts.
//
// Thread Safety: Safe for concurrent use after construction.
type Aggregator struct {
	config AggregatorConfig
	stages []Stage
	logger *slog.Logger
}

// NewAggregator creates an Aggregator with the standard chain:
// safety → coverage → grounding → retry.
func NewAggregator(config *AggregatorConfig, logger *slog.Logger) *Aggregator {
	cfg := DefaultAggregatorConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		config: cfg,
		logger: logger,
		stages: []Stage{
			SafetyStage{},
			CoverageStage{},
			GroundingStage{AcceptThreshold: cfg.AcceptThreshold},
			RetryStage{},
		},
	}
}

// NewAggregatorWithStages creates an Aggregator with a custom chain. The
// last stage must always decide.
func NewAggregatorWithStages(config AggregatorConfig, logger *slog.Logger, stages ...Stage) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{config: config, logger: logger, stages: stages}
}

// Aggregate walks the chain and returns the first stage's decision.
//
// Deterministic: identical AttemptContext always yields the same action and
// citations. The terminal RetryStage guarantees a decision, so the fallback
// refusal below is unreachable with the standard chain.
func (a *Aggregator) Aggregate(ctx context.Context, ac *AttemptContext) datatypes.Decision {
	ctx, span := tracer.Start(ctx, "Aggregate")
	defer span.End()

	if ac.MaxAttempts == 0 {
		ac.MaxAttempts = a.config.MaxAttempts
	}

	for _, stage := range a.stages {
		if d := stage.Evaluate(ctx, ac); d != nil {
			a.logger.Debug("stage decided",
				"stage", stage.Name(),
				"query_id", ac.Query.ID,
				"attempt", ac.Draft.AttemptNumber,
				"action", d.Action,
				"reason", d.ReasonCode)
			return *d
		}
	}

	return datatypes.Decision{
		QueryID:       ac.Query.ID,
		AttemptNumber: ac.Draft.AttemptNumber,
		Action:        datatypes.ActionRefuse,
		ReasonCode:    datatypes.ReasonRetryBudgetExhausted,
	}
}

// MaxAttempts exposes the configured retry ceiling.
func (a *Aggregator) MaxAttempts() int {
	return a.config.MaxAttempts
}
