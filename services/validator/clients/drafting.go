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
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/groundgate/groundgate/services/validator/datatypes"
)

var draftingTracer = otel.Tracer("groundgate.validator.clients.drafting")

// Drafter is the drafting collaborator contract.
//
// Feedback is the unsupported-claims list produced by the aggregator on a
// RETRY verdict: "these statements were not grounded; revise or omit".
//
// Thread Safety: Implementations must be safe for concurrent use.
type Drafter interface {
	Draft(ctx context.Context, query string, passages []datatypes.Passage, feedback []string) (string, string, error)
}

// DrafterConfig configures the OpenAI-compatible drafting client.
type DrafterConfig struct {
	// BaseURL points at any OpenAI-compatible endpoint (vLLM, Ollama,
	// OpenAI itself). Model routing happens upstream; this client only
	// talks to whatever the router selected.
	BaseURL string `yaml:"base_url"`

	APIKey string `yaml:"api_key"`

	Model string `yaml:"model" validate:"required"`

	MaxTokens int `yaml:"max_tokens" validate:"gt=0"`

	// RequestsPerSecond rate-limits drafting calls.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	Backoff BackoffConfig `yaml:"-"`
}

// DefaultDrafterConfig returns production defaults.
func DefaultDrafterConfig() DrafterConfig {
	return DrafterConfig{
		Model:             "llama3.1:8b",
		MaxTokens:         1024,
		RequestsPerSecond: 4,
		Backoff:           DefaultBackoffConfig(),
	}
}

// OpenAIDrafter produces draft answers through an OpenAI-compatible chat
// completion endpoint.
//
// Thread Safety: Safe for concurrent use.
type OpenAIDrafter struct {
	client  *openai.Client
	config  DrafterConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOpenAIDrafter creates a drafting client.
func NewOpenAIDrafter(config DrafterConfig, logger *slog.Logger) *OpenAIDrafter {
	if logger == nil {
		logger = slog.Default()
	}
	cc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cc.BaseURL = config.BaseURL
	}
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	return &OpenAIDrafter{
		client:  openai.NewClientWithConfig(cc),
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

const draftSystemPrompt = `You answer questions using ONLY the provided passages.
Write short declarative sentences. If the passages do not contain the answer, say so plainly.`

// Draft implements Drafter.
//
// Outputs:
//
//	string - The draft answer text.
//	string - The producing model id, for audit.
//	error - Wraps datatypes.ErrDraftingFailure after retries fail.
func (d *OpenAIDrafter) Draft(ctx context.Context, query string, passages []datatypes.Passage, feedback []string) (string, string, error) {
	ctx, span := draftingTracer.Start(ctx, "Draft")
	defer span.End()

	if err := d.limiter.Wait(ctx); err != nil {
		return "", "", fmt.Errorf("%w: %v", datatypes.ErrDraftingFailure, err)
	}

	var sb strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&sb, "[Passage %d | source=%s]\n%s\n\n", i+1, p.SourceID, p.Text)
	}
	user := fmt.Sprintf("Passages:\n\n%sQuestion: %s", sb.String(), query)
	if len(feedback) > 0 {
		user += "\n\nThese statements from your previous answer were not grounded in the passages; revise or omit them:\n- " +
			strings.Join(feedback, "\n- ")
	}

	var text string
	err := withRetry(ctx, d.config.Backoff, "drafting", func(ctx context.Context) error {
		resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     d.config.Model,
			MaxTokens: d.config.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: draftSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion")
		}
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		d.logger.Error("drafting collaborator failed", "error", err)
		return "", "", fmt.Errorf("%w: %v", datatypes.ErrDraftingFailure, err)
	}

	return text, d.config.Model, nil
}
