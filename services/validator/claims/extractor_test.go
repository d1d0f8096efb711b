// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package claims

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/groundgate/groundgate/services/validator/datatypes"
)

func draft(text string) datatypes.Draft {
	return datatypes.Draft{Text: text, AttemptNumber: 1}
}

func TestExtract_SplitsSentences(t *testing.T) {
	e := NewExtractor(nil)
	claims, err := e.Extract(draft("Paris is the capital of France. The Seine flows through it."))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("got %d claims, want 2", len(claims))
	}
	if claims[0].NormalizedText != "Paris is the capital of France." {
		t.Errorf("claim 0 = %q", claims[0].NormalizedText)
	}
	if claims[1].NormalizedText != "The Seine flows through it." {
		t.Errorf("claim 1 = %q", claims[1].NormalizedText)
	}
}

func TestExtract_SpansIndexIntoDraft(t *testing.T) {
	e := NewExtractor(nil)
	text := "The report was filed in 2021. It covered three regions."
	claims, err := e.Extract(draft(text))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for i, c := range claims {
		got := strings.TrimSpace(text[c.Span.Start:c.Span.End])
		if got == "" {
			t.Errorf("claim %d has empty span", i)
		}
		if c.DraftAttemptID != 1 {
			t.Errorf("claim %d attempt id = %d, want 1", i, c.DraftAttemptID)
		}
	}
}

func TestExtract_SkipsAbbreviationsAndDecimals(t *testing.T) {
	e := NewExtractor(nil)
	claims, err := e.Extract(draft("Dr. Smith measured a value of 3.14 in the first trial."))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("got %d claims, want 1: %v", len(claims), claimTexts(claims))
	}
}

func TestExtract_DropsQuestionsAndFiller(t *testing.T) {
	e := NewExtractor(nil)
	tests := []struct {
		name string
		text string
	}{
		{"pure question", "What would you like to know about that topic?"},
		{"greeting", "Hello, happy to help you today with anything."},
		{"meta filler", "Great question, that one comes up a lot here."},
		{"thanks", "Thanks for asking about this topic today."},
		{"too short", "Yes."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(draft(tt.text))
			if !errors.Is(err, datatypes.ErrEmptyClaimSet) {
				t.Errorf("Extract(%q) error = %v, want ErrEmptyClaimSet", tt.text, err)
			}
		})
	}
}

func TestExtract_EmptyDraft(t *testing.T) {
	e := NewExtractor(nil)
	_, err := e.Extract(draft(""))
	if !errors.Is(err, datatypes.ErrEmptyClaimSet) {
		t.Errorf("error = %v, want ErrEmptyClaimSet", err)
	}
}

func TestExtract_SplitsLongSentenceOnClauses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClaimLength = 60
	e := NewExtractor(&cfg)

	text := "The plant opened in 1987 and employed two thousand workers; production doubled within five years, and exports began in 1995."
	claims, err := e.Extract(draft(text))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(claims) < 2 {
		t.Fatalf("got %d claims, want clause split: %v", len(claims), claimTexts(claims))
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := NewExtractor(nil)
	text := "Mercury is the closest planet to the sun. It has no moons. Its year lasts 88 days."

	first, err := e.Extract(draft(text))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	second, err := e.Extract(draft(text))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("claim counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].NormalizedText != second[i].NormalizedText {
			t.Errorf("claim %d text differs: %q vs %q", i, first[i].NormalizedText, second[i].NormalizedText)
		}
		if first[i].Span != second[i].Span {
			t.Errorf("claim %d span differs: %v vs %v", i, first[i].Span, second[i].Span)
		}
	}
}

func TestNewExtractor_InvalidDenylistPatternLoggedAndSkipped(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	cfg := DefaultConfig()
	cfg.DenylistPatterns = []string{`(unclosed`, `(?i)^hello\b`}
	e := NewExtractor(&cfg)

	if len(e.denylist) != 1 {
		t.Errorf("compiled patterns = %d, want 1 (bad pattern skipped)", len(e.denylist))
	}
	if !strings.Contains(buf.String(), "invalid denylist pattern") {
		t.Errorf("no warning logged for bad pattern: %q", buf.String())
	}

	// The surviving pattern must still filter.
	_, err := e.Extract(draft("Hello there, happy to help you today."))
	if !errors.Is(err, datatypes.ErrEmptyClaimSet) {
		t.Errorf("error = %v, want ErrEmptyClaimSet from surviving filter", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  spaced   out  text ", "spaced out text"},
		{"- bullet item here", "bullet item here"},
		{"• unicode bullet text", "unicode bullet text"},
		{"line\nbroken  claim", "line broken claim"},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func claimTexts(cs []datatypes.Claim) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.NormalizedText
	}
	return out
}
