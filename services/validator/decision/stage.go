// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package decision aggregates component verdicts into one auditable
// ACCEPT / RETRY / REFUSE decision, and wraps that aggregation in a bounded
// retry loop against the drafting collaborator.
//
// The aggregator is an ordered chain of stages sharing one capability; it
// iterates the chain and short-circuits on the first stage that decides.
// The ordering is deliberate: safety dominates grounding, coverage dominates
// per-claim scoring (an in-corpus "no" must not be penalized as ungrounded),
// and retries are bounded so latency cannot grow without limit.
package decision

import (
	"context"

	"github.com/groundgate/groundgate/services/validator/coverage"
	"github.com/groundgate/groundgate/services/validator/datatypes"
)

// AttemptContext is the immutable snapshot one aggregation runs over.
type AttemptContext struct {
	Query datatypes.Query

	Draft datatypes.Draft

	Passages []datatypes.Passage

	Claims []datatypes.Claim

	// EvidenceVerdicts holds one evidence-matcher verdict per claim,
	// aligned with Claims.
	EvidenceVerdicts []datatypes.Verdict

	SafetyVerdicts []datatypes.Verdict

	Coverage coverage.Result

	// MaxAttempts is the retry ceiling for this cycle.
	MaxAttempts int
}

// Stage is one step of the aggregation chain.
//
// Evaluate returns a non-nil Decision to short-circuit the chain, or nil to
// pass to the next stage.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Stage interface {
	// Name returns the stage name for logging and metrics.
	Name() string

	Evaluate(ctx context.Context, ac *AttemptContext) *datatypes.Decision
}

// =============================================================================
// Stages, in chain order
// =============================================================================

// SafetyStage refuses any attempt carrying an unsafe verdict. Always first.
type SafetyStage struct{}

func (SafetyStage) Name() string { return "safety" }

func (SafetyStage) Evaluate(_ context.Context, ac *AttemptContext) *datatypes.Decision {
	if len(ac.SafetyVerdicts) == 0 {
		return nil
	}
	return &datatypes.Decision{
		QueryID:       ac.Query.ID,
		AttemptNumber: ac.Draft.AttemptNumber,
		Action:        datatypes.ActionRefuse,
		ReasonCode:    datatypes.ReasonSafetyViolation,
	}
}

// CoverageStage refuses source-required queries the corpus cannot answer.
// Runs before per-claim scoring so an out-of-KB query is refused on coverage
// grounds regardless of how the draft happens to score.
type CoverageStage struct{}

func (CoverageStage) Name() string { return "coverage" }

func (CoverageStage) Evaluate(_ context.Context, ac *AttemptContext) *datatypes.Decision {
	if ac.Coverage.InKB || !ac.Query.RequiresSource {
		return nil
	}
	return &datatypes.Decision{
		QueryID:       ac.Query.ID,
		AttemptNumber: ac.Draft.AttemptNumber,
		Action:        datatypes.ActionRefuse,
		ReasonCode:    datatypes.ReasonInsufficientCoverage,
	}
}

// GroundingStage accepts when enough claims are supported. A partially
// supported claim counts half. Citations are the union of evidence passage
// ids from supported and partially supported claims, deduplicated in first-
// seen order so identical inputs yield identical citation lists.
type GroundingStage struct {
	// AcceptThreshold is the minimum grounded ratio.
	AcceptThreshold float64
}

func (GroundingStage) Name() string { return "grounding" }

func (g GroundingStage) Evaluate(_ context.Context, ac *AttemptContext) *datatypes.Decision {
	ratio := GroundedRatio(ac.EvidenceVerdicts)
	if len(ac.EvidenceVerdicts) == 0 || ratio < g.AcceptThreshold {
		return nil
	}

	seen := make(map[string]bool)
	var citations []string
	for _, v := range ac.EvidenceVerdicts {
		if v.Label != datatypes.LabelSupported && v.Label != datatypes.LabelPartiallySupported {
			continue
		}
		for _, id := range v.EvidencePassageIDs {
			if !seen[id] {
				seen[id] = true
				citations = append(citations, id)
			}
		}
	}

	reason := datatypes.ReasonGrounded
	if !ac.Coverage.InKB {
		// Out-of-KB query that doesn't require sources: accepted, but
		// flagged so analytics can track ungrounded acceptances.
		reason = datatypes.ReasonUngroundedOutOfKB
	}

	return &datatypes.Decision{
		QueryID:       ac.Query.ID,
		AttemptNumber: ac.Draft.AttemptNumber,
		Action:        datatypes.ActionAccept,
		ReasonCode:    reason,
		Citations:     citations,
		FinalText:     ac.Draft.Text,
	}
}

// RetryStage is the chain terminator: retry with structured feedback while
// budget remains, refuse once it is spent.
type RetryStage struct{}

func (RetryStage) Name() string { return "retry" }

func (RetryStage) Evaluate(_ context.Context, ac *AttemptContext) *datatypes.Decision {
	if ac.Draft.AttemptNumber < ac.MaxAttempts {
		var feedback []string
		for i, v := range ac.EvidenceVerdicts {
			if v.Label == datatypes.LabelUnsupported && i < len(ac.Claims) {
				feedback = append(feedback, ac.Claims[i].NormalizedText)
			}
		}
		return &datatypes.Decision{
			QueryID:       ac.Query.ID,
			AttemptNumber: ac.Draft.AttemptNumber,
			Action:        datatypes.ActionRetry,
			ReasonCode:    datatypes.ReasonRetryUnsupported,
			Feedback:      feedback,
		}
	}
	return &datatypes.Decision{
		QueryID:       ac.Query.ID,
		AttemptNumber: ac.Draft.AttemptNumber,
		Action:        datatypes.ActionRefuse,
		ReasonCode:    datatypes.ReasonRetryBudgetExhausted,
	}
}

// GroundedRatio computes supported/total with partial support counting 0.5.
// Returns 0 for an empty verdict set: no claims means nothing verifiable.
func GroundedRatio(verdicts []datatypes.Verdict) float64 {
	if len(verdicts) == 0 {
		return 0
	}
	var supported float64
	for _, v := range verdicts {
		switch v.Label {
		case datatypes.LabelSupported:
			supported++
		case datatypes.LabelPartiallySupported:
			supported += 0.5
		}
	}
	return supported / float64(len(verdicts))
}
