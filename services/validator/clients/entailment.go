// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package clients

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/groundgate/groundgate/services/validator/datatypes"
)

var entailmentTracer = otel.Tracer("groundgate.validator.clients.entailment")

// EntailmentScorer is the entailment/embedding collaborator contract.
//
// Score estimates, in [0,1], that the passage supports (entails) the claim.
//
// Thread Safety: Implementations must be safe for concurrent use; the
// evidence matcher fans out one goroutine per claim.
type EntailmentScorer interface {
	Score(ctx context.Context, claimText, passageText string) (float64, error)
}

// EntailmentConfig configures the embedding-based scorer.
type EntailmentConfig struct {
	BaseURL string `yaml:"base_url"`

	APIKey string `yaml:"api_key"`

	// Model is the embedding model name.
	Model string `yaml:"model" validate:"required"`

	// CacheSize bounds the embedding LRU cache (entries).
	CacheSize int `yaml:"cache_size" validate:"gt=0"`

	// RequestsPerSecond rate-limits embedding calls.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	Backoff BackoffConfig `yaml:"-"`
}

// DefaultEntailmentConfig returns production defaults.
func DefaultEntailmentConfig() EntailmentConfig {
	return EntailmentConfig{
		Model:             "nomic-embed-text",
		CacheSize:         4096,
		RequestsPerSecond: 16,
		Backoff:           DefaultBackoffConfig(),
	}
}

// EmbeddingScorer scores claim/passage entailment as cosine similarity of
// their embeddings, mapped into [0,1].
//
// Passage embeddings repeat across the per-claim fan-out, so embeddings are
// cached in an LRU keyed by content hash.
//
// Thread Safety: Safe for concurrent use.
type EmbeddingScorer struct {
	client  *openai.Client
	config  EntailmentConfig
	cache   *lru.Cache[string, []float32]
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewEmbeddingScorer creates an embedding-based entailment scorer.
func NewEmbeddingScorer(config EntailmentConfig, logger *slog.Logger) (*EmbeddingScorer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	size := config.CacheSize
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	cc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cc.BaseURL = config.BaseURL
	}
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 16
	}
	return &EmbeddingScorer{
		client:  openai.NewClientWithConfig(cc),
		config:  config,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(rps), 4),
		logger:  logger,
	}, nil
}

// Score implements EntailmentScorer.
//
// Outputs:
//
//	float64 - Entailment estimate in [0,1].
//	error - Wraps datatypes.ErrEntailmentTimeout after retries fail. The
//	caller must treat that as unsupported, never as supported.
func (s *EmbeddingScorer) Score(ctx context.Context, claimText, passageText string) (float64, error) {
	ctx, span := entailmentTracer.Start(ctx, "Score")
	defer span.End()

	cv, err := s.embed(ctx, claimText)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", datatypes.ErrEntailmentTimeout, err)
	}
	pv, err := s.embed(ctx, passageText)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", datatypes.ErrEntailmentTimeout, err)
	}

	// Cosine in [-1,1] mapped to [0,1].
	return (cosine(cv, pv) + 1) / 2, nil
}

func (s *EmbeddingScorer) embed(ctx context.Context, text string) ([]float32, error) {
	key := hashKey(text)
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var vec []float32
	err := withRetry(ctx, s.config.Backoff, "entailment", func(ctx context.Context) error {
		resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(s.config.Model),
			Input: []string{text},
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return fmt.Errorf("empty embedding")
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Add(key, vec)
	return vec, nil
}

func hashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
