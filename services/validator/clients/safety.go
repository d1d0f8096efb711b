// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package clients

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"

	"github.com/groundgate/groundgate/services/validator/datatypes"
)

var safetyTracer = otel.Tracer("groundgate.validator.clients.safety")

// SafetyClassifier is the external safety classification collaborator.
//
// Classify returns one unsafe verdict per flagged category, or an empty
// slice when the text is clear. A non-nil error means the text was NOT
// cleared; the screener must fail conservative.
//
// Thread Safety: Implementations must be safe for concurrent use.
type SafetyClassifier interface {
	Classify(ctx context.Context, text string) ([]datatypes.Verdict, error)
}

// ModerationConfig configures the moderation-endpoint classifier.
type ModerationConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	Backoff BackoffConfig `yaml:"-"`
}

// ModerationClassifier calls an OpenAI-compatible moderation endpoint.
//
// Thread Safety: Safe for concurrent use.
type ModerationClassifier struct {
	client *openai.Client
	config ModerationConfig
	logger *slog.Logger
}

// NewModerationClassifier creates the remote safety classifier.
func NewModerationClassifier(config ModerationConfig, logger *slog.Logger) *ModerationClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	cc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cc.BaseURL = config.BaseURL
	}
	return &ModerationClassifier{client: openai.NewClientWithConfig(cc), config: config, logger: logger}
}

// Classify implements SafetyClassifier.
//
// Outputs:
//
//	[]datatypes.Verdict - One verdict per flagged category; empty when clear.
//	error - Wraps datatypes.ErrSafetyTimeout after retries fail.
func (m *ModerationClassifier) Classify(ctx context.Context, text string) ([]datatypes.Verdict, error) {
	ctx, span := safetyTracer.Start(ctx, "Classify")
	defer span.End()

	var verdicts []datatypes.Verdict
	err := withRetry(ctx, m.config.Backoff, "safety", func(ctx context.Context) error {
		req := openai.ModerationRequest{Input: text}
		if m.config.Model != "" {
			req.Model = m.config.Model
		}
		resp, err := m.client.Moderations(ctx, req)
		if err != nil {
			return err
		}
		verdicts = verdicts[:0]
		for _, r := range resp.Results {
			if !r.Flagged {
				continue
			}
			for category, score := range flaggedCategories(r) {
				verdicts = append(verdicts, datatypes.Verdict{
					ValidatorName: "safety_classifier:" + category,
					Label:         datatypes.LabelUnsafe,
					Score:         score,
				})
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Error("safety collaborator failed", "error", err)
		return nil, fmt.Errorf("%w: %v", datatypes.ErrSafetyTimeout, err)
	}
	return verdicts, nil
}

// flaggedCategories maps the moderation result's boolean categories to their
// scores, keeping only the flagged ones.
func flaggedCategories(r openai.Result) map[string]float64 {
	out := make(map[string]float64)
	c, s := r.Categories, r.CategoryScores
	if c.Hate {
		out["hate"] = float64(s.Hate)
	}
	if c.HateThreatening {
		out["hate/threatening"] = float64(s.HateThreatening)
	}
	if c.Harassment {
		out["harassment"] = float64(s.Harassment)
	}
	if c.SelfHarm {
		out["self-harm"] = float64(s.SelfHarm)
	}
	if c.Sexual {
		out["sexual"] = float64(s.Sexual)
	}
	if c.SexualMinors {
		out["sexual/minors"] = float64(s.SexualMinors)
	}
	if c.Violence {
		out["violence"] = float64(s.Violence)
	}
	if c.ViolenceGraphic {
		out["violence/graphic"] = float64(s.ViolenceGraphic)
	}
	return out
}
