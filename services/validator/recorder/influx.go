// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recorder

import (
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/groundgate/groundgate/services/validator/datatypes"
)

// InfluxConfig configures the optional latency export to InfluxDB.
type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// InfluxSink mirrors every persisted record as a time-series point so that
// decision latency and outcome mix are queryable in dashboards alongside the
// Prometheus counters.
//
// Writes go through the non-blocking WriteAPI: its internal batching goroutine
// buffers points, and export failures are logged by the error channel reader
// without ever reaching the recorder.
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPI
	logger *slog.Logger
}

// NewInfluxSink connects and starts the error-channel reader.
func NewInfluxSink(cfg InfluxConfig, logger *slog.Logger) *InfluxSink {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	s := &InfluxSink{client: client, write: writeAPI, logger: logger}
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("influx export failed", "error", err)
		}
	}()
	return s
}

// Write exports one record. Non-blocking.
func (s *InfluxSink) Write(rec *datatypes.EvaluationRecord) {
	point := influxdb2.NewPoint(
		"validation_decisions",
		map[string]string{
			"action":      string(rec.Final.Action),
			"reason_code": string(rec.Final.ReasonCode),
			"language":    rec.Query.DetectedLanguage,
		},
		map[string]interface{}{
			"total_ms":   float64(rec.TotalTime.Milliseconds()),
			"attempts":   len(rec.Attempts),
			"passages":   len(rec.PassageIDs),
			"infra_fail": rec.InfrastructureFailure,
		},
		rec.StartedAt,
	)
	s.write.WritePoint(point)
}

// Close flushes buffered points and closes the client.
func (s *InfluxSink) Close() {
	s.write.Flush()
	s.client.Close()
}
