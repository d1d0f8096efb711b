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
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"

	"github.com/groundgate/groundgate/services/validator/datatypes"
)

var retrievalTracer = otel.Tracer("groundgate.validator.clients.retrieval")

// Retriever is the retrieval collaborator contract.
//
// Passages come back already ranked, with trust scores and retrieval
// timestamps owned by the ingestion pipeline.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]datatypes.Passage, error)
}

// RetrieverConfig configures the Weaviate-backed retriever.
type RetrieverConfig struct {
	// ClassName is the Weaviate class holding corpus passages.
	ClassName string `yaml:"class_name" validate:"required"`

	// TopK is how many passages to retrieve per query.
	TopK int `yaml:"top_k" validate:"gt=0"`

	// Backoff bounds retries against the Weaviate endpoint.
	Backoff BackoffConfig `yaml:"-"`
}

// DefaultRetrieverConfig returns production defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		ClassName: "Passage",
		TopK:      8,
		Backoff:   DefaultBackoffConfig(),
	}
}

// WeaviateRetriever retrieves passages via Weaviate nearText search.
//
// Thread Safety: Safe for concurrent use; the underlying client pools
// connections.
type WeaviateRetriever struct {
	client *weaviate.Client
	config RetrieverConfig
	logger *slog.Logger
}

// NewWeaviateRetriever creates a retriever over an existing Weaviate client.
func NewWeaviateRetriever(client *weaviate.Client, config RetrieverConfig, logger *slog.Logger) *WeaviateRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeaviateRetriever{client: client, config: config, logger: logger}
}

// Retrieve implements Retriever.
//
// Outputs:
//
//	[]datatypes.Passage - Ranked passages. Rank mirrors result order.
//	error - Wraps datatypes.ErrRetrievalUnavailable after retries fail.
func (r *WeaviateRetriever) Retrieve(ctx context.Context, query string) ([]datatypes.Passage, error) {
	ctx, span := retrievalTracer.Start(ctx, "Retrieve")
	defer span.End()

	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "source_id"},
		{Name: "source_trust_score"},
		{Name: "retrieved_at"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	var passages []datatypes.Passage
	err := withRetry(ctx, r.config.Backoff, "retrieval", func(ctx context.Context) error {
		result, err := r.client.GraphQL().Get().
			WithClassName(r.config.ClassName).
			WithFields(fields...).
			WithNearText(nearText).
			WithLimit(r.config.TopK).
			Do(ctx)
		if err != nil {
			return err
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("graphql error: %s", result.Errors[0].Message)
		}
		passages = parsePassages(result.Data, r.config.ClassName)
		return nil
	})
	if err != nil {
		r.logger.Error("retrieval collaborator failed", "error", err)
		return nil, fmt.Errorf("%w: %v", datatypes.ErrRetrievalUnavailable, err)
	}

	r.logger.Debug("retrieved passages", "count", len(passages))
	return passages, nil
}

// UnavailableRetriever stands in when no retrieval endpoint is configured.
// Requests that supply their own passages never reach it; requests that need
// retrieval fail as an infrastructure error.
type UnavailableRetriever struct{}

func (UnavailableRetriever) Retrieve(_ context.Context, _ string) ([]datatypes.Passage, error) {
	return nil, fmt.Errorf("%w: no retrieval endpoint configured", datatypes.ErrRetrievalUnavailable)
}

// parsePassages walks the GraphQL Get response into passage snapshots.
func parsePassages(data map[string]models.JSONObject, className string) []datatypes.Passage {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := get[className].([]interface{})
	if !ok {
		return nil
	}

	passages := make([]datatypes.Passage, 0, len(items))
	for rank, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		p := datatypes.Passage{Rank: rank}
		if v, ok := obj["text"].(string); ok {
			p.Text = v
		}
		if v, ok := obj["source_id"].(string); ok {
			p.SourceID = v
		}
		if v, ok := obj["source_trust_score"].(float64); ok {
			p.SourceTrustScore = v
		}
		if v, ok := obj["retrieved_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				p.RetrievedAt = ts
			}
		}
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if id, ok := add["id"].(string); ok {
				p.ID = id
			}
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Text != "" {
			passages = append(passages, p)
		}
	}
	return passages
}
