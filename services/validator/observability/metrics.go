// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the validator.
//
// Metrics are exposed via the /metrics endpoint; pair with Prometheus +
// Grafana for dashboards and alerting. All operations are thread-safe via
// Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "groundgate"

// Metrics holds all Prometheus metrics for validation operations.
// Initialize once at startup via Default().
type Metrics struct {
	// DecisionsTotal counts terminal decisions.
	// Labels: action (ACCEPT, REFUSE), reason_code
	DecisionsTotal *prometheus.CounterVec

	// AttemptsPerQuery observes how many drafts a query consumed.
	AttemptsPerQuery prometheus.Histogram

	// ValidationDurationSeconds measures full-cycle wall time.
	// Labels: action
	ValidationDurationSeconds *prometheus.HistogramVec

	// StageDurationSeconds measures per-component time.
	// Labels: stage (claims, evidence, coverage, safety, aggregate)
	StageDurationSeconds *prometheus.HistogramVec

	// CollaboratorErrorsTotal counts external collaborator failures.
	// Labels: collaborator (retrieval, drafting, entailment, safety)
	CollaboratorErrorsTotal *prometheus.CounterVec

	// ActiveValidations tracks in-flight validation cycles.
	ActiveValidations prometheus.Gauge

	// RecorderWritesTotal counts persisted evaluation records.
	RecorderWritesTotal prometheus.Counter

	// RecorderDropsTotal counts records dropped by queue saturation or
	// exhausted write retries.
	RecorderDropsTotal prometheus.Counter
}

var (
	defaultMetrics *Metrics
	initOnce       sync.Once
)

// Default returns the process-wide metrics instance, creating and
// registering it on first use.
func Default() *Metrics {
	initOnce.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decisions_total",
			Help:      "Terminal decisions by action and reason code.",
		}, []string{"action", "reason_code"}),

		AttemptsPerQuery: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "attempts_per_query",
			Help:      "Drafts consumed per validated query.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),

		ValidationDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "validation_duration_seconds",
			Help:      "Full validation cycle duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),

		StageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Per-component validation duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),

		CollaboratorErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "collaborator_errors_total",
			Help:      "External collaborator failures after retries.",
		}, []string{"collaborator"}),

		ActiveValidations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_validations",
			Help:      "In-flight validation cycles.",
		}),

		RecorderWritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "recorder_writes_total",
			Help:      "Evaluation records persisted.",
		}),

		RecorderDropsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "recorder_drops_total",
			Help:      "Evaluation records dropped instead of blocking.",
		}),
	}
}
