// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groundgate/groundgate/services/validator/decision"
	"github.com/groundgate/groundgate/services/validator/handlers"
	"github.com/groundgate/groundgate/services/validator/recorder"
)

func SetupRoutes(router *gin.Engine, orch *decision.Orchestrator, rec *recorder.Recorder,
	store *recorder.Store) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/validate", handlers.Validate(orch, rec))
		v1.GET("/decisions/:queryId", handlers.GetDecision(store))
		v1.GET("/quality", handlers.GetQuality(store))
	}
}
