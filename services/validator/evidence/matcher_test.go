// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/groundgate/groundgate/services/validator/datatypes"
)

// stubScorer maps "claimText|passageText" to a fixed score. Unknown pairs
// score 0. Pairs listed in fail return an error.
type stubScorer struct {
	scores map[string]float64
	fail   map[string]bool
	calls  int
}

func (s *stubScorer) Score(_ context.Context, claimText, passageText string) (float64, error) {
	s.calls++
	key := claimText + "|" + passageText
	if s.fail[key] {
		return 0, errors.New("scorer unavailable")
	}
	return s.scores[key], nil
}

func passage(id, text string, trust float64) datatypes.Passage {
	return datatypes.Passage{ID: id, Text: text, SourceTrustScore: trust, RetrievedAt: time.Unix(1700000000, 0)}
}

func claim(id, text string) datatypes.Claim {
	return datatypes.Claim{ID: id, NormalizedText: text}
}

func TestMatch_Labels(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		wantLabel datatypes.VerdictLabel
	}{
		{"supported at threshold", 0.82, datatypes.LabelSupported},
		{"supported above threshold", 0.95, datatypes.LabelSupported},
		{"partial at threshold", 0.70, datatypes.LabelPartiallySupported},
		{"partial below support", 0.81, datatypes.LabelPartiallySupported},
		{"unsupported below partial", 0.69, datatypes.LabelUnsupported},
		{"unsupported at zero", 0.0, datatypes.LabelUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := &stubScorer{scores: map[string]float64{
				"c|p": tt.score,
			}}
			m := NewMatcher(scorer, nil, nil)
			v := m.Match(context.Background(), claim("c1", "c"), []datatypes.Passage{passage("p1", "p", 0.9)})
			if v.Label != tt.wantLabel {
				t.Errorf("label = %s, want %s", v.Label, tt.wantLabel)
			}
			if v.Score != tt.score {
				t.Errorf("score = %v, want %v", v.Score, tt.score)
			}
		})
	}
}

func TestMatch_EvidenceListsAllAbovePartial(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{
		"c|pa": 0.90,
		"c|pb": 0.75,
		"c|pc": 0.50,
	}}
	m := NewMatcher(scorer, nil, nil)
	v := m.Match(context.Background(), claim("c1", "c"), []datatypes.Passage{
		passage("a", "pa", 0.9),
		passage("b", "pb", 0.9),
		passage("c", "pc", 0.9),
	})

	if len(v.EvidencePassageIDs) != 2 {
		t.Fatalf("evidence = %v, want [a b]", v.EvidencePassageIDs)
	}
	if v.EvidencePassageIDs[0] != "a" || v.EvidencePassageIDs[1] != "b" {
		t.Errorf("evidence = %v, want [a b]", v.EvidencePassageIDs)
	}
}

func TestMatch_ScoringFailureIsConservative(t *testing.T) {
	// Every score call fails: the claim must come back unsupported, not
	// error out and not count as supported.
	scorer := &stubScorer{fail: map[string]bool{"c|p": true}}
	m := NewMatcher(scorer, nil, nil)
	v := m.Match(context.Background(), claim("c1", "c"), []datatypes.Passage{passage("p1", "p", 0.9)})

	if v.Label != datatypes.LabelUnsupported {
		t.Errorf("label = %s, want unsupported on scorer failure", v.Label)
	}
	if v.Score != 0 {
		t.Errorf("score = %v, want 0", v.Score)
	}
	if len(v.EvidencePassageIDs) != 0 {
		t.Errorf("evidence = %v, want empty", v.EvidencePassageIDs)
	}
}

func TestMatch_PartialFailureUsesRemainingPassages(t *testing.T) {
	scorer := &stubScorer{
		scores: map[string]float64{"c|good": 0.9},
		fail:   map[string]bool{"c|bad": true},
	}
	m := NewMatcher(scorer, nil, nil)
	v := m.Match(context.Background(), claim("c1", "c"), []datatypes.Passage{
		passage("bad", "bad", 0.9),
		passage("good", "good", 0.9),
	})
	if v.Label != datatypes.LabelSupported {
		t.Errorf("label = %s, want supported from surviving passage", v.Label)
	}
}

func TestMatch_TieBrokenByTrustThenFreshness(t *testing.T) {
	now := time.Now()
	scorer := &stubScorer{scores: map[string]float64{
		"c|p1": 0.9,
		"c|p2": 0.9,
	}}
	m := NewMatcher(scorer, nil, nil)

	lowTrust := datatypes.Passage{ID: "low", Text: "p1", SourceTrustScore: 0.4, RetrievedAt: now}
	highTrust := datatypes.Passage{ID: "high", Text: "p2", SourceTrustScore: 0.9, RetrievedAt: now.Add(-time.Hour)}

	v := m.Match(context.Background(), claim("c1", "c"), []datatypes.Passage{lowTrust, highTrust})
	if v.EvidencePassageIDs[0] != "high" {
		t.Errorf("first evidence = %s, want high-trust passage to win tie", v.EvidencePassageIDs[0])
	}
}

func TestMatchAll_PreservesOrder(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{}}
	for i := 0; i < 8; i++ {
		scorer.scores[fmt.Sprintf("claim%d|p", i)] = float64(i) / 10
	}
	m := NewMatcher(scorer, nil, nil)

	var cs []datatypes.Claim
	for i := 0; i < 8; i++ {
		cs = append(cs, claim(fmt.Sprintf("id%d", i), fmt.Sprintf("claim%d", i)))
	}
	verdicts, err := m.MatchAll(context.Background(), cs, []datatypes.Passage{passage("p1", "p", 0.9)})
	if err != nil {
		t.Fatalf("MatchAll() error = %v", err)
	}
	if len(verdicts) != 8 {
		t.Fatalf("got %d verdicts, want 8", len(verdicts))
	}
	for i, v := range verdicts {
		if v.ClaimID != fmt.Sprintf("id%d", i) {
			t.Errorf("verdict %d claim id = %s, out of order", i, v.ClaimID)
		}
	}
}

func TestMatchAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMatcher(&stubScorer{}, nil, nil)
	_, err := m.MatchAll(ctx, []datatypes.Claim{claim("c1", "c")}, []datatypes.Passage{passage("p1", "p", 0.9)})
	if err == nil {
		t.Fatal("MatchAll() on cancelled context should error")
	}
}

func TestMatch_ConflictProbeDowngrades(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConflictProbe = true

	scorer := &stubScorer{scores: map[string]float64{
		"the sky is blue|support text":                                0.9,
		"It is not the case that the sky is blue|conflicting text":    0.9,
		"the sky is blue|conflicting text":                            0.1,
		"It is not the case that the sky is blue|support text":        0.1,
	}}
	m := NewMatcher(scorer, &cfg, nil)

	v := m.Match(context.Background(), claim("c1", "the sky is blue"), []datatypes.Passage{
		passage("sup", "support text", 0.9),
		passage("con", "conflicting text", 0.9),
	})

	if v.Label != datatypes.LabelPartiallySupported {
		t.Fatalf("label = %s, want partially_supported on conflict", v.Label)
	}
	joined := strings.Join(v.EvidencePassageIDs, ",")
	if !strings.Contains(joined, "sup") || !strings.Contains(joined, "con") {
		t.Errorf("evidence = %v, want both passages recorded", v.EvidencePassageIDs)
	}
}

func TestMatch_NoPassages(t *testing.T) {
	m := NewMatcher(&stubScorer{}, nil, nil)
	v := m.Match(context.Background(), claim("c1", "c"), nil)
	if v.Label != datatypes.LabelUnsupported {
		t.Errorf("label = %s, want unsupported with no passages", v.Label)
	}
}
