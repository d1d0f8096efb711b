// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package evidence scores claims against retrieved passages and produces
// per-claim support verdicts.
//
// The failure rule here is the heart of the chain: if the entailment
// collaborator times out or errors for a claim, that claim's verdict is
// forced to unsupported with score 0. Fail conservative, never fail open.
package evidence

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/groundgate/groundgate/services/validator/clients"
	"github.com/groundgate/groundgate/services/validator/datatypes"
)

var tracer = otel.Tracer("groundgate.validator.evidence")

// ValidatorName identifies this validator on its verdicts.
const ValidatorName = "evidence_matcher"

// Config configures support classification.
type Config struct {
	// SupportThreshold is the score at or above which a claim is
	// supported.
	SupportThreshold float64 `yaml:"support_threshold" validate:"gt=0,lte=1"`

	// PartialThreshold is the score at or above which a claim is at
	// least partially supported, and a passage is recorded as evidence.
	PartialThreshold float64 `yaml:"partial_threshold" validate:"gt=0,lte=1"`

	// TopK bounds how many passages are considered per claim after
	// scoring. The evidence list still records every passage scoring at
	// least PartialThreshold.
	TopK int `yaml:"top_k" validate:"gt=0"`

	// MaxConcurrency bounds the per-claim fan-out.
	MaxConcurrency int `yaml:"max_concurrency" validate:"gt=0"`

	// ConflictProbe additionally scores the negated claim. When both the
	// claim and its negation find support above SupportThreshold in
	// different high-trust passages, the claim is downgraded to
	// partially_supported with both passages recorded.
	ConflictProbe bool `yaml:"conflict_probe"`
}

// DefaultConfig returns tuned defaults. Thresholds are tunables; they were
// set against the evaluation corpus, not derived.
func DefaultConfig() Config {
	return Config{
		SupportThreshold: 0.82,
		PartialThreshold: 0.70,
		TopK:             5,
		MaxConcurrency:   4,
		ConflictProbe:    false,
	}
}

// Matcher scores claims against the passage snapshot.
//
// Thread Safety: Safe for concurrent use.
type Matcher struct {
	scorer clients.EntailmentScorer
	config Config
	logger *slog.Logger
}

// NewMatcher creates a Matcher. A nil config uses defaults.
func NewMatcher(scorer clients.EntailmentScorer, config *Config, logger *slog.Logger) *Matcher {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{scorer: scorer, config: cfg, logger: logger}
}

// scored pairs a passage with its entailment score for one claim.
type scored struct {
	passage datatypes.Passage
	score   float64
}

// MatchAll produces one verdict per claim, fanning out across claims with
// bounded concurrency. Output order matches input order.
//
// Scoring failures never surface as errors: the affected claim gets an
// unsupported verdict with score 0. The only returned error is context
// cancellation of the whole batch.
func (m *Matcher) MatchAll(ctx context.Context, claimList []datatypes.Claim, passages []datatypes.Passage) ([]datatypes.Verdict, error) {
	ctx, span := tracer.Start(ctx, "MatchAll")
	defer span.End()

	verdicts := make([]datatypes.Verdict, len(claimList))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.MaxConcurrency)

	for i, claim := range claimList {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdicts[i] = m.Match(gctx, claim, passages)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

// Match scores one claim against the full passage set and classifies it.
//
// Ties between equally scored passages are broken by higher trust score,
// then by fresher retrieval time.
func (m *Matcher) Match(ctx context.Context, claim datatypes.Claim, passages []datatypes.Passage) datatypes.Verdict {
	verdict := datatypes.Verdict{
		ClaimID:       claim.ID,
		ValidatorName: ValidatorName,
		Label:         datatypes.LabelUnsupported,
		Score:         0,
	}
	if len(passages) == 0 {
		return verdict
	}

	results := make([]scored, 0, len(passages))
	for _, p := range passages {
		score, err := m.scorer.Score(ctx, claim.NormalizedText, p.Text)
		if err != nil {
			// Conservative: a failed score contributes nothing.
			m.logger.Warn("entailment scoring failed, treating as no support",
				"claim_id", claim.ID, "passage_id", p.ID, "error", err)
			continue
		}
		results = append(results, scored{passage: p, score: score})
	}
	if len(results) == 0 {
		return verdict
	}

	sortScored(results)
	if len(results) > m.config.TopK {
		results = results[:m.config.TopK]
	}

	best := results[0]
	for _, r := range results {
		if r.score >= m.config.PartialThreshold {
			verdict.EvidencePassageIDs = append(verdict.EvidencePassageIDs, r.passage.ID)
		}
	}

	verdict.Score = best.score
	switch {
	case best.score >= m.config.SupportThreshold:
		verdict.Label = datatypes.LabelSupported
	case best.score >= m.config.PartialThreshold:
		verdict.Label = datatypes.LabelPartiallySupported
	}

	if verdict.Label == datatypes.LabelSupported && m.config.ConflictProbe {
		m.probeConflict(ctx, claim, passages, &verdict)
	}
	return verdict
}

// probeConflict scores the negated claim; support for both directions in
// distinct passages downgrades to partially_supported with both recorded.
func (m *Matcher) probeConflict(ctx context.Context, claim datatypes.Claim, passages []datatypes.Passage, verdict *datatypes.Verdict) {
	negated := "It is not the case that " + claim.NormalizedText
	supportedBy := make(map[string]bool, len(verdict.EvidencePassageIDs))
	for _, id := range verdict.EvidencePassageIDs {
		supportedBy[id] = true
	}

	for _, p := range passages {
		if supportedBy[p.ID] {
			continue
		}
		score, err := m.scorer.Score(ctx, negated, p.Text)
		if err != nil {
			continue
		}
		if score >= m.config.SupportThreshold {
			m.logger.Info("conflicting evidence detected",
				"claim_id", claim.ID, "passage_id", p.ID)
			verdict.Label = datatypes.LabelPartiallySupported
			verdict.EvidencePassageIDs = append(verdict.EvidencePassageIDs, p.ID)
			return
		}
	}
}

// sortScored orders by score desc, then trust desc, then freshness desc,
// then id for determinism.
func sortScored(results []scored) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.passage.SourceTrustScore != b.passage.SourceTrustScore {
			return a.passage.SourceTrustScore > b.passage.SourceTrustScore
		}
		if !a.passage.RetrievedAt.Equal(b.passage.RetrievedAt) {
			return a.passage.RetrievedAt.After(b.passage.RetrievedAt)
		}
		return a.passage.ID < b.passage.ID
	})
}
