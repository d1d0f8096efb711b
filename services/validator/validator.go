// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validator assembles the answer validation service.
//
// It wires the validation chain (claim extraction, evidence matching,
// coverage classification, safety screening, decision aggregation) behind a
// Gin HTTP API, together with the external collaborators (Weaviate
// retrieval, OpenAI-compatible drafting and embedding endpoints) and the
// evaluation recorder.
//
// # Usage
//
//	cfg, err := validator.LoadConfig("groundgate.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := validator.New(*cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/groundgate/groundgate/pkg/logging"
	"github.com/groundgate/groundgate/services/validator/claims"
	"github.com/groundgate/groundgate/services/validator/clients"
	"github.com/groundgate/groundgate/services/validator/coverage"
	"github.com/groundgate/groundgate/services/validator/decision"
	"github.com/groundgate/groundgate/services/validator/evidence"
	"github.com/groundgate/groundgate/services/validator/recorder"
	"github.com/groundgate/groundgate/services/validator/routes"
	"github.com/groundgate/groundgate/services/validator/safety"
)

// Service defines the validator service lifecycle.
//
// Thread Safety: Implementations must be safe for concurrent use. Run()
// blocks and should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Close releases resources held by the service: recorder queue, record
	// store, and the trace exporter.
	Close()
}

type service struct {
	config Config
	router *gin.Engine
	logger *logging.Logger

	store    *recorder.Store
	recorder *recorder.Recorder

	tracerCleanup func(context.Context)
}

// New creates a validator Service from the given configuration.
//
// Initialization order matters: tracing first so every later component can
// emit spans, then the record store, then the collaborator clients, then
// the chain itself, and the router last.
func New(cfg Config) (Service, error) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.LogDir,
		Service: "groundgate-validator",
		JSON:    cfg.Logging.JSON,
	})
	slog.SetDefault(logger.Logger)

	s := &service{config: cfg, logger: logger}

	cleanup, err := initTracer(cfg.OTelEndpoint)
	if err != nil {
		// Tracing is additive; a missing collector must not block startup.
		slog.Warn("tracing disabled", "error", err)
	} else {
		s.tracerCleanup = cleanup
	}

	store, err := recorder.OpenStore(cfg.Store, logger.Logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening record store: %w", err)
	}
	s.store = store

	var sink recorder.Sink
	if cfg.Influx.Enabled {
		sink = recorder.NewInfluxSink(cfg.Influx, logger.Logger)
	}
	s.recorder = recorder.New(store, &cfg.Recorder, sink, logger.Logger)

	orch, err := s.buildChain()
	if err != nil {
		s.Close()
		return nil, err
	}

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("groundgate-validator"))
	routes.SetupRoutes(s.router, orch, s.recorder, s.store)

	return s, nil
}

func (s *service) buildChain() (*decision.Orchestrator, error) {
	return BuildChain(s.config, s.logger.Logger)
}

// BuildChain wires the collaborator clients and validation components into
// the retry orchestrator. Exposed for the one-shot CLI, which runs the chain
// without the HTTP server or the recorder.
func BuildChain(cfg Config, logger *slog.Logger) (*decision.Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var retriever clients.Retriever
	if client, err := weaviateClient(cfg.WeaviateURL); err != nil {
		slog.Warn("retrieval disabled, passages must be supplied per request",
			"error", err)
		retriever = clients.UnavailableRetriever{}
	} else {
		retriever = clients.NewWeaviateRetriever(client, cfg.Retriever, logger)
	}

	drafter := clients.NewOpenAIDrafter(cfg.Drafter, logger)

	scorer, err := clients.NewEmbeddingScorer(cfg.Entailment, logger)
	if err != nil {
		return nil, fmt.Errorf("creating entailment scorer: %w", err)
	}

	var classifier clients.SafetyClassifier
	if cfg.Safety.UseRemoteClassifier {
		classifier = clients.NewModerationClassifier(cfg.Moderation, logger)
	}

	extractor := claims.NewExtractor(&cfg.Claims)
	matcher := evidence.NewMatcher(scorer, &cfg.Evidence, logger)
	covClassifier := coverage.NewClassifier(scorer, &cfg.Coverage, logger)
	screener := safety.NewScreener(&cfg.Safety, classifier, logger)
	aggregator := decision.NewAggregator(&cfg.Aggregator, logger)

	return decision.NewOrchestrator(retriever, drafter, extractor, matcher,
		covClassifier, screener, aggregator, &cfg.Orchestrator, logger), nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *service) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("starting validator server", "port", s.config.Port)
	defer s.Close()
	return s.router.Run(addr)
}

// Router returns the configured Gin engine.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close drains the recorder and releases the store, tracer, and log file.
func (s *service) Close() {
	if s.recorder != nil {
		s.recorder.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("record store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}

// weaviateClient parses the URL and creates a Weaviate client, or an error
// when the URL is absent or malformed.
func weaviateClient(rawURL string) (*weaviate.Client, error) {
	trimmed := strings.Trim(rawURL, "\"' ")
	if trimmed == "" {
		return nil, fmt.Errorf("weaviate URL not configured")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate URL: %s", trimmed)
	}
	return weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
}

// initTracer sets up the OTLP trace exporter.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("creating gRPC connection: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("groundgate-validator")))
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := exporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

var _ Service = (*service)(nil)
