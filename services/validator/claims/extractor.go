// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package claims splits a draft answer into atomic, checkable claims.
//
// Extraction is fully deterministic: identical draft text always yields the
// same claim list (modulo generated ids), so re-validation is reproducible.
package claims

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/groundgate/groundgate/services/validator/datatypes"
)

// Config configures claim extraction.
type Config struct {
	// DenylistPatterns are regexes matching purely stylistic or meta
	// sentences (greetings, hedges) that are discarded before checking.
	DenylistPatterns []string

	// MinClaimLength discards fragments shorter than this many runes.
	MinClaimLength int

	// MaxClaimLength truncates nothing: over-long sentences are still
	// checkable, but anything above this is split on clause boundaries.
	MaxClaimLength int
}

// DefaultConfig returns sensible defaults for claim extraction.
func DefaultConfig() Config {
	return Config{
		DenylistPatterns: []string{
			`(?i)^(hi|hello|hey|greetings|sure|certainly|of course)\b`,
			`(?i)^(great|good|excellent|interesting) question\b`,
			`(?i)^(i hope|hope) (this|that) helps\b`,
			`(?i)^(let me know|feel free|please) `,
			`(?i)^(as an ai|as a language model)\b`,
			`(?i)^(in summary|to summarize|in conclusion)[,:]?\s*$`,
			`(?i)^(i think|i believe|it seems|it appears|perhaps|maybe)\b.*\?$`,
			`(?i)^(thanks|thank you)\b`,
		},
		MinClaimLength: 12,
		MaxClaimLength: 400,
	}
}

// Extractor splits drafts into claims.
//
// Thread Safety: Safe for concurrent use after construction (stateless aside
// from compiled patterns).
type Extractor struct {
	config   Config
	denylist []*regexp.Regexp
}

// NewExtractor creates an Extractor. A nil config uses defaults.
func NewExtractor(config *Config) *Extractor {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	e := &Extractor{config: cfg}
	for _, p := range cfg.DenylistPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			slog.Warn("skipping invalid denylist pattern", "pattern", p, "error", err)
			continue
		}
		e.denylist = append(e.denylist, re)
	}
	return e
}

// Extract splits the draft text into ordered claims.
//
// Inputs:
//
//	draft - The draft to decompose. AttemptNumber is recorded on each claim.
//
// Outputs:
//
//	[]datatypes.Claim - Ordered checkable claims with spans into draft.Text.
//	error - datatypes.ErrEmptyClaimSet when nothing checkable remains. An
//	unverifiable draft must push the aggregator toward REFUSE, never ACCEPT.
func (e *Extractor) Extract(draft datatypes.Draft) ([]datatypes.Claim, error) {
	sentences := splitSentences(draft.Text)

	var out []datatypes.Claim
	for _, s := range sentences {
		text := strings.TrimSpace(draft.Text[s.Start:s.End])
		if !e.checkable(text) {
			continue
		}
		for _, span := range e.splitLong(draft.Text, s) {
			out = append(out, datatypes.Claim{
				ID:             uuid.NewString(),
				DraftAttemptID: draft.AttemptNumber,
				Span:           span,
				NormalizedText: normalize(draft.Text[span.Start:span.End]),
			})
		}
	}

	if len(out) == 0 {
		return nil, datatypes.ErrEmptyClaimSet
	}
	return out, nil
}

// checkable reports whether a sentence carries verifiable content.
func (e *Extractor) checkable(text string) bool {
	if len([]rune(text)) < e.config.MinClaimLength {
		return false
	}
	// Pure questions carry no claim.
	if strings.HasSuffix(text, "?") {
		return false
	}
	for _, re := range e.denylist {
		if re.MatchString(text) {
			return false
		}
	}
	return true
}

// splitLong breaks an over-long sentence on clause boundaries (";", " — ",
// ", and ", ", but ") so each claim stays atomic.
func (e *Extractor) splitLong(text string, s datatypes.Span) []datatypes.Span {
	if s.End-s.Start <= e.config.MaxClaimLength {
		return []datatypes.Span{s}
	}

	seps := []string{"; ", ", and ", ", but ", ", while ", ", whereas "}
	spans := []datatypes.Span{s}
	for _, sep := range seps {
		var next []datatypes.Span
		for _, sp := range spans {
			if sp.End-sp.Start <= e.config.MaxClaimLength {
				next = append(next, sp)
				continue
			}
			next = append(next, splitOn(text, sp, sep)...)
		}
		spans = next
	}

	// Drop fragments that became too small to check.
	var out []datatypes.Span
	for _, sp := range spans {
		if len([]rune(strings.TrimSpace(text[sp.Start:sp.End]))) >= e.config.MinClaimLength {
			out = append(out, sp)
		}
	}
	if len(out) == 0 {
		return []datatypes.Span{s}
	}
	return out
}

func splitOn(text string, s datatypes.Span, sep string) []datatypes.Span {
	var out []datatypes.Span
	start := s.Start
	for {
		i := strings.Index(text[start:s.End], sep)
		if i < 0 {
			break
		}
		out = append(out, datatypes.Span{Start: start, End: start + i})
		start = start + i + len(sep)
	}
	out = append(out, datatypes.Span{Start: start, End: s.End})
	return out
}

// splitSentences finds sentence boundaries, skipping common abbreviations
// and decimal points.
func splitSentences(text string) []datatypes.Span {
	var spans []datatypes.Span
	start := 0
	runes := []byte(text)

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '.' && c != '!' && c != '?' && c != '\n' {
			continue
		}
		if c == '.' && isAbbreviationOrNumber(text, i) {
			continue
		}
		// Terminator must be followed by whitespace or end of text.
		if i+1 < len(runes) && !unicode.IsSpace(rune(runes[i+1])) {
			continue
		}
		end := i + 1
		if strings.TrimSpace(text[start:end]) != "" {
			spans = append(spans, datatypes.Span{Start: start, End: end})
		}
		start = end
	}
	if strings.TrimSpace(text[start:]) != "" {
		spans = append(spans, datatypes.Span{Start: start, End: len(text)})
	}
	return spans
}

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"e.g": true, "i.e": true, "no": true, "vol": true, "approx": true,
}

func isAbbreviationOrNumber(text string, dot int) bool {
	// Decimal point: digit on both sides.
	if dot > 0 && dot+1 < len(text) &&
		unicode.IsDigit(rune(text[dot-1])) && unicode.IsDigit(rune(text[dot+1])) {
		return true
	}
	j := dot - 1
	for j >= 0 && (unicode.IsLetter(rune(text[j])) || text[j] == '.') {
		j--
	}
	word := strings.ToLower(strings.TrimSuffix(text[j+1:dot], "."))
	return abbreviations[word]
}

// normalize collapses whitespace and strips leading list markers so the
// entailment collaborator sees clean claim text.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*• \t")
	return strings.Join(strings.Fields(s), " ")
}
