// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decision

import (
	"context"
	"reflect"
	"testing"

	"github.com/groundgate/groundgate/services/validator/coverage"
	"github.com/groundgate/groundgate/services/validator/datatypes"
)

func evidenceVerdict(claimID string, label datatypes.VerdictLabel, evidence ...string) datatypes.Verdict {
	return datatypes.Verdict{
		ClaimID:            claimID,
		ValidatorName:      "evidence_matcher",
		Label:              label,
		EvidencePassageIDs: evidence,
	}
}

func unsafeVerdict() datatypes.Verdict {
	return datatypes.Verdict{
		ValidatorName: "safety_screener:pii",
		Label:         datatypes.LabelUnsafe,
		Score:         1,
	}
}

// baseContext is an in-KB, source-required attempt on the first of three
// attempts; tests mutate from here.
func baseContext() *AttemptContext {
	return &AttemptContext{
		Query:       datatypes.Query{ID: "q1", Text: "when did it open", RequiresSource: true},
		Draft:       datatypes.Draft{Text: "It opened in 1987.", AttemptNumber: 1},
		Claims:      []datatypes.Claim{{ID: "c1", NormalizedText: "It opened in 1987."}},
		Coverage:    coverage.Result{InKB: true, RequiresSource: true},
		MaxAttempts: 3,
	}
}

func TestAggregate_AcceptGrounded(t *testing.T) {
	// Scenario: a fully supported draft over an in-KB query.
	a := NewAggregator(nil, nil)
	ac := baseContext()
	ac.EvidenceVerdicts = []datatypes.Verdict{
		evidenceVerdict("c1", datatypes.LabelSupported, "p1", "p2"),
	}

	d := a.Aggregate(context.Background(), ac)
	if d.Action != datatypes.ActionAccept {
		t.Fatalf("action = %s, want ACCEPT", d.Action)
	}
	if d.ReasonCode != datatypes.ReasonGrounded {
		t.Errorf("reason = %s, want grounded", d.ReasonCode)
	}
	if !reflect.DeepEqual(d.Citations, []string{"p1", "p2"}) {
		t.Errorf("citations = %v, want [p1 p2]", d.Citations)
	}
	if d.FinalText != ac.Draft.Text {
		t.Errorf("final text = %q, want the draft", d.FinalText)
	}
}

func TestAggregate_SafetyDominatesGrounding(t *testing.T) {
	// A perfectly grounded draft with one unsafe verdict must refuse, and the
	// reason must be safety, not anything grounding-related.
	a := NewAggregator(nil, nil)
	ac := baseContext()
	ac.EvidenceVerdicts = []datatypes.Verdict{
		evidenceVerdict("c1", datatypes.LabelSupported, "p1"),
	}
	ac.SafetyVerdicts = []datatypes.Verdict{unsafeVerdict()}

	d := a.Aggregate(context.Background(), ac)
	if d.Action != datatypes.ActionRefuse {
		t.Fatalf("action = %s, want REFUSE", d.Action)
	}
	if d.ReasonCode != datatypes.ReasonSafetyViolation {
		t.Errorf("reason = %s, want safety_violation", d.ReasonCode)
	}
}

func TestAggregate_CoverageRefusalOutOfKB(t *testing.T) {
	// Scenario: source-required query with nothing relevant in the corpus.
	a := NewAggregator(nil, nil)
	ac := baseContext()
	ac.Coverage = coverage.Result{InKB: false, RequiresSource: true}
	ac.EvidenceVerdicts = []datatypes.Verdict{
		evidenceVerdict("c1", datatypes.LabelSupported, "p1"),
	}

	d := a.Aggregate(context.Background(), ac)
	if d.Action != datatypes.ActionRefuse {
		t.Fatalf("action = %s, want REFUSE regardless of claim scores", d.Action)
	}
	if d.ReasonCode != datatypes.ReasonInsufficientCoverage {
		t.Errorf("reason = %s, want insufficient_coverage", d.ReasonCode)
	}
}

func TestAggregate_OutOfKBOpinionAccepted(t *testing.T) {
	// Opinion queries don't require sources; an out-of-KB acceptance is
	// flagged ungrounded_out_of_kb for analytics.
	a := NewAggregator(nil, nil)
	ac := baseContext()
	ac.Query.RequiresSource = false
	ac.Coverage = coverage.Result{InKB: false, RequiresSource: false}
	ac.EvidenceVerdicts = []datatypes.Verdict{
		evidenceVerdict("c1", datatypes.LabelSupported, "p1"),
	}

	d := a.Aggregate(context.Background(), ac)
	if d.Action != datatypes.ActionAccept {
		t.Fatalf("action = %s, want ACCEPT", d.Action)
	}
	if d.ReasonCode != datatypes.ReasonUngroundedOutOfKB {
		t.Errorf("reason = %s, want ungrounded_out_of_kb", d.ReasonCode)
	}
}

func TestAggregate_RetryWithFeedback(t *testing.T) {
	// Below-threshold grounding on a non-final attempt retries, listing the
	// unsupported claim texts.
	a := NewAggregator(nil, nil)
	ac := baseContext()
	ac.Claims = []datatypes.Claim{
		{ID: "c1", NormalizedText: "claim one"},
		{ID: "c2", NormalizedText: "claim two"},
	}
	ac.EvidenceVerdicts = []datatypes.Verdict{
		evidenceVerdict("c1", datatypes.LabelSupported, "p1"),
		evidenceVerdict("c2", datatypes.LabelUnsupported),
	}

	d := a.Aggregate(context.Background(), ac)
	if d.Action != datatypes.ActionRetry {
		t.Fatalf("action = %s, want RETRY (ratio 0.5 < 0.8)", d.Action)
	}
	if !reflect.DeepEqual(d.Feedback, []string{"claim two"}) {
		t.Errorf("feedback = %v, want the unsupported claim text", d.Feedback)
	}
}

func TestAggregate_RefuseOnFinalAttempt(t *testing.T) {
	a := NewAggregator(nil, nil)
	ac := baseContext()
	ac.Draft.AttemptNumber = 3
	ac.EvidenceVerdicts = []datatypes.Verdict{
		evidenceVerdict("c1", datatypes.LabelUnsupported),
	}

	d := a.Aggregate(context.Background(), ac)
	if d.Action != datatypes.ActionRefuse {
		t.Fatalf("action = %s, want REFUSE on final attempt", d.Action)
	}
	if d.ReasonCode != datatypes.ReasonRetryBudgetExhausted {
		t.Errorf("reason = %s, want retry_budget_exhausted", d.ReasonCode)
	}
}

func TestAggregate_PartialCountsHalf(t *testing.T) {
	// Two supported + two partial over four claims: (2 + 2*0.5)/4 = 0.75,
	// below the 0.8 threshold, so the attempt retries.
	a := NewAggregator(nil, nil)
	ac := baseContext()
	ac.EvidenceVerdicts = []datatypes.Verdict{
		evidenceVerdict("c1", datatypes.LabelSupported, "p1"),
		evidenceVerdict("c2", datatypes.LabelSupported, "p1"),
		evidenceVerdict("c3", datatypes.LabelPartiallySupported, "p2"),
		evidenceVerdict("c4", datatypes.LabelPartiallySupported, "p3"),
	}

	d := a.Aggregate(context.Background(), ac)
	if d.Action != datatypes.ActionRetry {
		t.Errorf("action = %s, want RETRY at ratio 0.75", d.Action)
	}

	// One more supported claim pushes it to (3+1)/5 = 0.8: accept.
	ac.EvidenceVerdicts = append(ac.EvidenceVerdicts,
		evidenceVerdict("c5", datatypes.LabelSupported, "p1"))
	d = a.Aggregate(context.Background(), ac)
	if d.Action != datatypes.ActionAccept {
		t.Errorf("action = %s, want ACCEPT at ratio 0.8", d.Action)
	}
}

func TestAggregate_CitationsDeduplicatedDeterministic(t *testing.T) {
	a := NewAggregator(nil, nil)
	ac := baseContext()
	ac.EvidenceVerdicts = []datatypes.Verdict{
		evidenceVerdict("c1", datatypes.LabelSupported, "p2", "p1"),
		evidenceVerdict("c2", datatypes.LabelSupported, "p1", "p3"),
	}

	first := a.Aggregate(context.Background(), ac)
	second := a.Aggregate(context.Background(), ac)
	if !reflect.DeepEqual(first.Citations, []string{"p2", "p1", "p3"}) {
		t.Errorf("citations = %v, want first-seen order [p2 p1 p3]", first.Citations)
	}
	if !reflect.DeepEqual(first.Citations, second.Citations) {
		t.Error("identical input produced different citation lists")
	}
}

func TestAggregate_UnsupportedCitationsExcluded(t *testing.T) {
	// Evidence ids on an unsupported verdict must never leak into citations.
	a := NewAggregator(nil, nil)
	ac := baseContext()
	ac.EvidenceVerdicts = []datatypes.Verdict{
		evidenceVerdict("c1", datatypes.LabelSupported, "p1"),
		evidenceVerdict("c2", datatypes.LabelSupported, "p1"),
		evidenceVerdict("c3", datatypes.LabelSupported, "p1"),
		evidenceVerdict("c4", datatypes.LabelSupported, "p1"),
		{ClaimID: "c5", ValidatorName: "evidence_matcher", Label: datatypes.LabelUnsupported, EvidencePassageIDs: []string{"leak"}},
	}

	d := a.Aggregate(context.Background(), ac)
	if d.Action != datatypes.ActionAccept {
		t.Fatalf("action = %s, want ACCEPT at ratio 0.8", d.Action)
	}
	for _, id := range d.Citations {
		if id == "leak" {
			t.Error("unsupported verdict's evidence leaked into citations")
		}
	}
}

func TestGroundedRatio(t *testing.T) {
	tests := []struct {
		name   string
		labels []datatypes.VerdictLabel
		want   float64
	}{
		{"empty", nil, 0},
		{"all supported", []datatypes.VerdictLabel{datatypes.LabelSupported, datatypes.LabelSupported}, 1},
		{"half partial", []datatypes.VerdictLabel{datatypes.LabelSupported, datatypes.LabelPartiallySupported}, 0.75},
		{"all unsupported", []datatypes.VerdictLabel{datatypes.LabelUnsupported}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var vs []datatypes.Verdict
			for _, l := range tt.labels {
				vs = append(vs, datatypes.Verdict{Label: l})
			}
			if got := GroundedRatio(vs); got != tt.want {
				t.Errorf("GroundedRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewAggregatorWithStages_CustomChain(t *testing.T) {
	// A chain of only the retry terminator always decides.
	a := NewAggregatorWithStages(DefaultAggregatorConfig(), nil, RetryStage{})
	ac := baseContext()
	d := a.Aggregate(context.Background(), ac)
	if d.Action != datatypes.ActionRetry {
		t.Errorf("action = %s, want RETRY from terminator", d.Action)
	}
}
