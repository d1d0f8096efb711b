// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package coverage judges whether the knowledge corpus can answer a query
// at all, independent of how well any particular draft is supported.
//
// This distinction exists to separate "the model answered confidently but
// nothing in the corpus backs it" (refuse) from "this is a general-knowledge
// or opinion query the corpus was never meant to cover" (may accept
// ungrounded, flagged as such).
package coverage

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/groundgate/groundgate/services/validator/clients"
	"github.com/groundgate/groundgate/services/validator/datatypes"
)

var tracer = otel.Tracer("groundgate.validator.coverage")

// Result is the classifier's judgement of one query.
type Result struct {
	// InKB is true when the corpus appears to contain enough relevant
	// material to answer.
	InKB bool `json:"in_kb"`

	// RequiresSource is true when a correct answer depends on corpus
	// content rather than general knowledge or opinion.
	RequiresSource bool `json:"requires_source"`

	// MaxSimilarity is the best passage-to-query score observed.
	MaxSimilarity float64 `json:"max_similarity"`
}

// Config configures coverage classification.
type Config struct {
	// CoverageThreshold is the minimum max passage-to-query
	// similarity for the query to count as in-KB.
	CoverageThreshold float64 `yaml:"coverage_threshold" validate:"gt=0,lte=1"`

	// MaxPassagesProbed bounds similarity probes per query; passages come
	// ranked, so probing the head is enough.
	MaxPassagesProbed int `yaml:"max_passages_probed" validate:"gt=0"`
}

// DefaultConfig returns tuned defaults.
func DefaultConfig() Config {
	return Config{
		CoverageThreshold: 0.72,
		MaxPassagesProbed: 5,
	}
}

// Classifier implements the coverage judgement.
//
// Thread Safety: Safe for concurrent use after construction.
type Classifier struct {
	scorer clients.EntailmentScorer
	config Config
	logger *slog.Logger

	opinionPatterns []*regexp.Regexp
	sourcePatterns  []*regexp.Regexp
}

// NewClassifier creates a Classifier. A nil config uses defaults.
func NewClassifier(scorer clients.EntailmentScorer, config *Config, logger *slog.Logger) *Classifier {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		scorer: scorer,
		config: cfg,
		logger: logger,
		opinionPatterns: compileAll(
			`(?i)\bwhat (do you|would you) think\b`,
			`(?i)\b(your|an) opinion\b`,
			`(?i)\bdo you (like|prefer|enjoy|recommend)\b`,
			`(?i)\b(best|favorite|worst) way to\b`,
			`(?i)\bhow (should|would) i\b`,
			`(?i)\b(write|compose|draft) (a|an|some)\b.*\b(poem|story|song|joke)\b`,
		),
		sourcePatterns: compileAll(
			`(?i)\baccording to\b`,
			`(?i)\bin (the|our|your) (docs|documentation|manual|policy|handbook|corpus|knowledge base)\b`,
			`(?i)\bwhat does .* (say|state)\b`,
			`(?i)\b(section|chapter|clause|article) \d+`,
			`(?i)\b(our|the company'?s?|internal)\b.*\b(policy|procedure|process|guideline)\b`,
			`(?i)\bwhen (was|did|will)\b`,
			`(?i)\b(who|what|where|which|how many|how much)\b.*\b(is|are|was|were|did|does)\b`,
		),
	}
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Classify judges corpus coverage for the query.
//
// Runs before (and independent of) claim extraction, so it can execute in
// parallel with drafting. Scoring failures degrade conservatively: an
// unprobeable corpus counts as not covering the query.
func (c *Classifier) Classify(ctx context.Context, query string, passages []datatypes.Passage) Result {
	ctx, span := tracer.Start(ctx, "Classify")
	defer span.End()

	res := Result{RequiresSource: c.requiresSource(query)}

	probes := len(passages)
	if probes > c.config.MaxPassagesProbed {
		probes = c.config.MaxPassagesProbed
	}
	for i := 0; i < probes; i++ {
		score, err := c.scorer.Score(ctx, query, passages[i].Text)
		if err != nil {
			c.logger.Warn("coverage probe failed", "passage_id", passages[i].ID, "error", err)
			continue
		}
		if score > res.MaxSimilarity {
			res.MaxSimilarity = score
		}
	}

	res.InKB = res.MaxSimilarity >= c.config.CoverageThreshold
	c.logger.Debug("coverage classified",
		"in_kb", res.InKB,
		"requires_source", res.RequiresSource,
		"max_similarity", res.MaxSimilarity)
	return res
}

// requiresSource classifies query phrasing: factual/lookup phrasing demands
// corpus backing, opinion/creative phrasing does not.
func (c *Classifier) requiresSource(query string) bool {
	q := strings.TrimSpace(query)
	for _, re := range c.opinionPatterns {
		if re.MatchString(q) {
			return false
		}
	}
	for _, re := range c.sourcePatterns {
		if re.MatchString(q) {
			return true
		}
	}
	// Default factual: an unrecognized query is safer treated as needing
	// sources than as free-form opinion.
	return true
}
