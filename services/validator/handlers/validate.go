// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP API of the validator service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/groundgate/groundgate/services/validator/datatypes"
	"github.com/groundgate/groundgate/services/validator/decision"
	"github.com/groundgate/groundgate/services/validator/observability"
	"github.com/groundgate/groundgate/services/validator/recorder"
)

var validateTracer = otel.Tracer("groundgate.validator.handlers")

// Validate handles POST /v1/validate: one full validation cycle ending in
// ACCEPT or REFUSE.
//
// Infrastructure failures (retrieval or drafting down before any draft was
// validated) return 503 with retryable=true; they are errors, not refusals,
// and the caller may retry. Validator refusals return 200 with action REFUSE.
func Validate(orch *decision.Orchestrator, rec *recorder.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := validateTracer.Start(c.Request.Context(), "Validate")
		defer span.End()

		var request datatypes.ValidateRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		span.SetAttributes(attribute.Int("passages_supplied", len(request.Passages)))

		metrics := observability.Default()
		metrics.ActiveValidations.Inc()
		defer metrics.ActiveValidations.Dec()

		started := time.Now()
		outcome, err := orch.Run(ctx, decision.Input{
			QueryText: request.Query,
			Draft:     request.Draft,
			ModelID:   request.ModelID,
			Passages:  request.Passages,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if datatypes.IsInfrastructureFailure(err) {
				slog.Error("validation failed upstream", "error", err)
				recordInfrastructureFailure(rec, request.Query, err, started)
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"error":     "an upstream collaborator is unavailable",
					"retryable": true,
				})
				return
			}
			if errors.Is(err, context.Canceled) {
				// Client went away; nothing to answer.
				c.Status(http.StatusRequestTimeout)
				return
			}
			slog.Error("validation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
			return
		}

		metrics.DecisionsTotal.WithLabelValues(
			string(outcome.Final.Action), string(outcome.Final.ReasonCode)).Inc()
		metrics.AttemptsPerQuery.Observe(float64(len(outcome.Attempts)))
		metrics.ValidationDurationSeconds.WithLabelValues(
			string(outcome.Final.Action)).Observe(outcome.TotalTime.Seconds())

		// Fire-and-forget: the decision below is already final, a recorder
		// hiccup must not change it.
		rec.Submit(recorder.FromOutcome(outcome.Query, outcome.Final, outcome.Attempts,
			outcome.Passages, outcome.StartedAt, outcome.TotalTime, false))

		c.JSON(http.StatusOK, datatypes.ValidateResponse{
			QueryID:    outcome.Query.ID,
			Action:     outcome.Final.Action,
			ReasonCode: outcome.Final.ReasonCode,
			Reason:     datatypes.RefusalReason(outcome.Final.ReasonCode),
			FinalText:  outcome.Final.FinalText,
			Citations:  outcome.Final.Citations,
			Attempts:   len(outcome.Attempts),
		})
	}
}

// recordInfrastructureFailure persists an audit record for a cycle that died
// before any draft was validated, so the offline failure rate stays honest.
func recordInfrastructureFailure(rec *recorder.Recorder, queryText string, err error, started time.Time) {
	code := datatypes.ReasonDraftingFailure
	if errors.Is(err, datatypes.ErrRetrievalUnavailable) {
		code = datatypes.ReasonRetrievalUnavailable
	}
	query := datatypes.Query{ID: uuid.NewString(), Text: queryText}
	rec.Submit(&datatypes.EvaluationRecord{
		Query: query,
		Final: datatypes.Decision{
			QueryID:    query.ID,
			Action:     datatypes.ActionRefuse,
			ReasonCode: code,
		},
		InfrastructureFailure: true,
		StartedAt:             started,
		TotalTime:             time.Since(started),
	})
}
