// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package safety flags unsafe, policy-violating, or PII-leaking content in
// a draft, independent of grounding.
//
// Any unsafe verdict is terminal for the attempt: safety dominates
// grounding, so a perfectly cited draft with a leaked SSN is still refused.
//
// Thread Safety:
//
//	All types in this package are safe for concurrent use after
//	construction.
package safety

import (
	"context"
	"log/slog"
	"regexp"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/groundgate/groundgate/services/validator/clients"
	"github.com/groundgate/groundgate/services/validator/datatypes"
)

var tracer = otel.Tracer("groundgate.validator.safety")

// Checker is a single pattern/policy safety check.
type Checker interface {
	// Name returns the checker name for logging and metrics.
	Name() string

	// Check scans the draft text and returns unsafe verdicts for every
	// flagged span, or nil when clear.
	Check(ctx context.Context, text string) []datatypes.Verdict
}

// Config configures the screener.
type Config struct {
	// Enabled toggles screening. Disabled screening returns no verdicts;
	// it never fabricates a clear result for failed checks.
	Enabled bool `yaml:"enabled"`

	// UseRemoteClassifier also consults the external safety collaborator.
	UseRemoteClassifier bool `yaml:"use_remote_classifier"`

	// FailClosed treats a remote classifier failure as an unsafe verdict.
	// When false the failure is logged and the local pattern verdicts
	// stand alone. Either way a failure never clears the draft.
	FailClosed bool `yaml:"fail_closed"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		UseRemoteClassifier: false,
		FailClosed:          false,
	}
}

// Screener runs all registered checkers against a draft.
type Screener struct {
	mu         sync.RWMutex
	config     Config
	checkers   []Checker
	classifier clients.SafetyClassifier
	logger     *slog.Logger
}

// NewScreener creates a Screener with the default checkers registered:
// PII, disallowed content categories, and prompt-injection echoes.
//
// classifier may be nil when UseRemoteClassifier is false.
func NewScreener(config *Config, classifier clients.SafetyClassifier, logger *slog.Logger) *Screener {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Screener{config: cfg, classifier: classifier, logger: logger}
	s.RegisterChecker(NewPIIChecker())
	s.RegisterChecker(NewContentChecker())
	s.RegisterChecker(NewInjectionEchoChecker())
	return s
}

// RegisterChecker adds a checker to the screener.
func (s *Screener) RegisterChecker(c Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, c)
}

// Screen scans the draft text and returns every unsafe verdict found.
//
// An empty result means no checker flagged anything. A remote classifier
// failure under FailClosed yields a synthetic unsafe verdict so the
// aggregator refuses rather than trusting unverified content.
func (s *Screener) Screen(ctx context.Context, text string) []datatypes.Verdict {
	ctx, span := tracer.Start(ctx, "Screen")
	defer span.End()

	if !s.config.Enabled {
		return nil
	}

	s.mu.RLock()
	checkers := s.checkers
	s.mu.RUnlock()

	var verdicts []datatypes.Verdict
	for _, c := range checkers {
		select {
		case <-ctx.Done():
			return verdicts
		default:
		}
		verdicts = append(verdicts, c.Check(ctx, text)...)
	}

	if s.config.UseRemoteClassifier && s.classifier != nil {
		remote, err := s.classifier.Classify(ctx, text)
		if err != nil {
			s.logger.Warn("remote safety classification failed", "error", err)
			if s.config.FailClosed {
				verdicts = append(verdicts, datatypes.Verdict{
					ValidatorName: "safety_classifier:unavailable",
					Label:         datatypes.LabelUnsafe,
					Score:         1,
				})
			}
		} else {
			verdicts = append(verdicts, remote...)
		}
	}

	if len(verdicts) > 0 {
		s.logger.Info("draft flagged unsafe", "verdicts", len(verdicts))
	}
	return verdicts
}

// =============================================================================
// Pattern checkers
// =============================================================================

// patternChecker flags every match of its patterns as an unsafe span.
type patternChecker struct {
	name     string
	score    float64
	patterns []*regexp.Regexp
}

func (p *patternChecker) Name() string { return p.name }

func (p *patternChecker) Check(_ context.Context, text string) []datatypes.Verdict {
	var out []datatypes.Verdict
	for _, re := range p.patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			out = append(out, datatypes.Verdict{
				ValidatorName: p.name,
				Label:         datatypes.LabelUnsafe,
				Score:         p.score,
				Span:          &datatypes.Span{Start: loc[0], End: loc[1]},
			})
		}
	}
	return out
}

// NewPIIChecker detects leaked personally identifiable information: SSNs,
// credit card numbers, email addresses paired with secrets, API keys.
func NewPIIChecker() Checker {
	return &patternChecker{
		name:  "safety_screener:pii",
		score: 1,
		patterns: []*regexp.Regexp{
			// US SSN
			regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			// 13-16 digit card numbers, with optional separators
			regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),
			// Bearer tokens / API keys
			regexp.MustCompile(`\b(sk|pk|api|key|token)[-_][A-Za-z0-9]{16,}\b`),
			regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]{20,}`),
			// password/secret disclosures
			regexp.MustCompile(`(?i)\b(password|passwd|secret)\s*[:=]\s*\S+`),
		},
	}
}

// NewContentChecker detects disallowed content categories via phrase
// denylists. Deliberately coarse: the remote classifier covers nuance, the
// local patterns guarantee a floor even when that collaborator is down.
func NewContentChecker() Checker {
	return &patternChecker{
		name:  "safety_screener:content",
		score: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bhow to (build|make|assemble) (a |an )?(bomb|explosive|weapon)\b`),
			regexp.MustCompile(`(?i)\b(synthesize|manufacture) (meth|fentanyl|ricin)\b`),
			regexp.MustCompile(`(?i)\bstep[- ]by[- ]step\b.*\b(hack|breach|exploit)\b.*\b(account|system|network)\b`),
		},
	}
}

// NewInjectionEchoChecker detects the draft echoing instructions it should
// never reveal, a signature of prompt-injection passthrough.
func NewInjectionEchoChecker() Checker {
	return &patternChecker{
		name:  "safety_screener:injection_echo",
		score: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bignore (all |any )?(previous|prior|above) instructions\b`),
			regexp.MustCompile(`(?i)\bmy (system|hidden) prompt (is|says)\b`),
			regexp.MustCompile(`(?i)\byou are (now )?in developer mode\b`),
			regexp.MustCompile(`(?i)\bdisregard (the|your) (guidelines|rules|policies)\b`),
		},
	}
}
