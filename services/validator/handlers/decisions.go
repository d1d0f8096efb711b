// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/groundgate/groundgate/pkg/validation"
	"github.com/groundgate/groundgate/services/validator/recorder"
)

// GetDecision handles GET /v1/decisions/:queryId: the full audit record of a
// past decision, including superseded drafts and per-claim verdicts.
func GetDecision(store *recorder.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		queryID := c.Param("queryId")
		if err := validation.ValidateQueryID(queryID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := store.Get(queryID)
		if err != nil {
			slog.Error("record lookup failed", "query_id", queryID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "record lookup failed"})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no record for query id"})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// GetQuality handles GET /v1/quality: the offline quality metrics aggregated
// over every recorded decision.
func GetQuality(store *recorder.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := store.QualityReport()
		if err != nil {
			slog.Error("quality aggregation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "quality aggregation failed"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// HealthCheck handles GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
