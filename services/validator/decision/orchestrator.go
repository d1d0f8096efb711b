// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/groundgate/groundgate/pkg/langid"
	"github.com/groundgate/groundgate/services/validator/claims"
	"github.com/groundgate/groundgate/services/validator/clients"
	"github.com/groundgate/groundgate/services/validator/coverage"
	"github.com/groundgate/groundgate/services/validator/datatypes"
	"github.com/groundgate/groundgate/services/validator/evidence"
	"github.com/groundgate/groundgate/services/validator/observability"
	"github.com/groundgate/groundgate/services/validator/safety"
)

var orchestratorTracer = otel.Tracer("groundgate.validator.decision.orchestrator")

// OrchestratorConfig bounds one full validation cycle.
type OrchestratorConfig struct {
	// WallClockBudget caps the whole cycle across all attempts. Exceeding
	// it short-circuits to REFUSE(timeout_budget_exhausted); retries must
	// not silently degrade user-perceived latency.
	WallClockBudget time.Duration `yaml:"wall_clock_budget" validate:"gt=0"`
}

// DefaultOrchestratorConfig returns production defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		WallClockBudget: 30 * time.Second,
	}
}

// Input is one validation request. Draft and Passages are optional; missing
// pieces are fetched from the collaborators.
type Input struct {
	QueryText string
	Draft     string
	ModelID   string
	Passages  []datatypes.Passage
}

// Outcome is the result of one full cycle: the terminal decision plus the
// audit trail the recorder persists.
type Outcome struct {
	Query    datatypes.Query
	Final    datatypes.Decision
	Attempts []datatypes.AttemptRecord
	Passages []datatypes.Passage

	StartedAt time.Time
	TotalTime time.Duration
}

// Orchestrator runs the bounded validation loop: extract → (match ∥
// coverage ∥ safety) → aggregate, looping back through the drafting
// collaborator on RETRY.
//
// The loop is an explicit iterative task with an attempt counter and a
// wall-clock budget, never recursion, so cancellation and timeout
// accounting stay in one place. Attempt n+1 cannot start before attempt
// n's decision is known; many queries validate concurrently as independent
// tasks without shared mutable state.
//
// Thread Safety: Safe for concurrent use after construction.
type Orchestrator struct {
	retriever  clients.Retriever
	drafter    clients.Drafter
	extractor  *claims.Extractor
	matcher    *evidence.Matcher
	classifier *coverage.Classifier
	screener   *safety.Screener
	aggregator *Aggregator
	config     OrchestratorConfig
	logger     *slog.Logger
}

// NewOrchestrator wires the validation chain. A nil config uses defaults.
func NewOrchestrator(
	retriever clients.Retriever,
	drafter clients.Drafter,
	extractor *claims.Extractor,
	matcher *evidence.Matcher,
	classifier *coverage.Classifier,
	screener *safety.Screener,
	aggregator *Aggregator,
	config *OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	cfg := DefaultOrchestratorConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		retriever:  retriever,
		drafter:    drafter,
		extractor:  extractor,
		matcher:    matcher,
		classifier: classifier,
		screener:   screener,
		aggregator: aggregator,
		config:     cfg,
		logger:     logger,
	}
}

// Run executes one validation cycle and returns its terminal outcome.
//
// Outputs:
//
//	*Outcome - The terminal decision and audit trail. Nil on error.
//	error - Infrastructure failures (retrieval/drafting down before any
//	draft was validated) and caller cancellation. Partially computed
//	verdicts are discarded on cancellation, never persisted.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Outcome, error) {
	ctx, span := orchestratorTracer.Start(ctx, "Run")
	defer span.End()

	started := time.Now()
	budgetCtx, cancel := context.WithTimeout(ctx, o.config.WallClockBudget)
	defer cancel()

	query := datatypes.Query{
		ID:               uuid.NewString(),
		Text:             in.QueryText,
		DetectedLanguage: langid.Detect(in.QueryText),
	}

	passages := in.Passages
	if len(passages) == 0 {
		var err error
		passages, err = o.retriever.Retrieve(budgetCtx, query.Text)
		if err != nil {
			// No draft validated yet: infrastructure failure, not a
			// refusal. Surfaced retryable to the caller.
			return nil, err
		}
	}

	outcome := &Outcome{Query: query, Passages: passages, StartedAt: started}

	// Coverage is a per-query judgement over query and passages only; it
	// is computed once, concurrently with the first attempt's matching.
	var cov coverage.Result
	covDone := false

	draftText := in.Draft
	modelID := in.ModelID
	var feedback []string

	maxAttempts := o.aggregator.MaxAttempts()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptStart := time.Now()

		if draftText == "" {
			text, model, err := o.drafter.Draft(budgetCtx, query.Text, passages, feedback)
			if err != nil {
				if budgetExhausted(budgetCtx, ctx) {
					o.finishTimeout(outcome, attempt)
					return outcome, nil
				}
				if len(outcome.Attempts) == 0 {
					return nil, err
				}
				// A mid-cycle drafting failure cannot upgrade to
				// ACCEPT; refuse on the spent budget.
				o.finish(outcome, datatypes.Decision{
					QueryID:       query.ID,
					AttemptNumber: attempt,
					Action:        datatypes.ActionRefuse,
					ReasonCode:    datatypes.ReasonRetryBudgetExhausted,
					FinalText:     datatypes.RefusalReason(datatypes.ReasonRetryBudgetExhausted),
				})
				return outcome, nil
			}
			draftText, modelID = text, model
		}

		draft := datatypes.Draft{Text: draftText, ProducingModelID: modelID, AttemptNumber: attempt}

		ac, err := o.evaluate(budgetCtx, query, draft, passages, &cov, &covDone)
		if err != nil {
			if budgetExhausted(budgetCtx, ctx) {
				o.finishTimeout(outcome, attempt)
				return outcome, nil
			}
			if ctx.Err() != nil {
				// Caller cancelled: discard partial verdicts.
				return nil, ctx.Err()
			}
			if errors.Is(err, datatypes.ErrEmptyClaimSet) {
				d := o.emptyClaimDecision(query, attempt, maxAttempts)
				outcome.Attempts = append(outcome.Attempts, datatypes.AttemptRecord{
					Draft:    draft,
					Decision: d,
					InKB:     cov.InKB,
					Duration: time.Since(attemptStart),
				})
				if d.Terminal() {
					o.finish(outcome, d)
					return outcome, nil
				}
				feedback = d.Feedback
				draftText, modelID = "", ""
				continue
			}
			return nil, fmt.Errorf("evaluating attempt %d: %w", attempt, err)
		}

		query.RequiresSource = cov.RequiresSource
		ac.Query = query

		aggStart := time.Now()
		d := o.aggregator.Aggregate(budgetCtx, ac)
		observability.Default().StageDurationSeconds.
			WithLabelValues("aggregate").Observe(time.Since(aggStart).Seconds())
		outcome.Attempts = append(outcome.Attempts, datatypes.AttemptRecord{
			Draft:         draft,
			Verdicts:      append(ac.EvidenceVerdicts, ac.SafetyVerdicts...),
			Decision:      d,
			InKB:          cov.InKB,
			GroundedRatio: GroundedRatio(ac.EvidenceVerdicts),
			Duration:      time.Since(attemptStart),
		})

		if d.Terminal() {
			if d.Action == datatypes.ActionRefuse {
				d.FinalText = datatypes.RefusalReason(d.ReasonCode)
			}
			o.finish(outcome, d)
			return outcome, nil
		}

		feedback = d.Feedback
		draftText, modelID = "", ""

		if budgetExhausted(budgetCtx, ctx) {
			o.finishTimeout(outcome, attempt+1)
			return outcome, nil
		}
	}

	// Unreachable with the standard chain: RetryStage refuses on the last
	// attempt. Kept as a safety net for custom chains.
	o.finish(outcome, datatypes.Decision{
		QueryID:       query.ID,
		AttemptNumber: maxAttempts,
		Action:        datatypes.ActionRefuse,
		ReasonCode:    datatypes.ReasonRetryBudgetExhausted,
		FinalText:     datatypes.RefusalReason(datatypes.ReasonRetryBudgetExhausted),
	})
	return outcome, nil
}

// evaluate runs claim extraction + evidence matching, safety screening, and
// (on the first attempt) coverage classification concurrently against the
// immutable draft/passage snapshot. No locking: the tasks share no mutable
// state.
func (o *Orchestrator) evaluate(
	ctx context.Context,
	query datatypes.Query,
	draft datatypes.Draft,
	passages []datatypes.Passage,
	cov *coverage.Result,
	covDone *bool,
) (*AttemptContext, error) {
	ctx, span := orchestratorTracer.Start(ctx, "evaluate")
	defer span.End()

	ac := &AttemptContext{
		Draft:       draft,
		Passages:    passages,
		MaxAttempts: o.aggregator.MaxAttempts(),
	}

	metrics := observability.Default()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stageStart := time.Now()
		claimList, err := o.extractor.Extract(draft)
		metrics.StageDurationSeconds.
			WithLabelValues("claims").Observe(time.Since(stageStart).Seconds())
		if err != nil {
			return err
		}
		stageStart = time.Now()
		verdicts, err := o.matcher.MatchAll(gctx, claimList, passages)
		metrics.StageDurationSeconds.
			WithLabelValues("evidence").Observe(time.Since(stageStart).Seconds())
		if err != nil {
			return err
		}
		ac.Claims = claimList
		ac.EvidenceVerdicts = verdicts
		return nil
	})

	g.Go(func() error {
		stageStart := time.Now()
		ac.SafetyVerdicts = o.screener.Screen(gctx, draft.Text)
		metrics.StageDurationSeconds.
			WithLabelValues("safety").Observe(time.Since(stageStart).Seconds())
		return nil
	})

	if !*covDone {
		g.Go(func() error {
			stageStart := time.Now()
			*cov = o.classifier.Classify(gctx, query.Text, passages)
			metrics.StageDurationSeconds.
				WithLabelValues("coverage").Observe(time.Since(stageStart).Seconds())
			*covDone = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	ac.Coverage = *cov
	return ac, nil
}

func (o *Orchestrator) emptyClaimDecision(query datatypes.Query, attempt, maxAttempts int) datatypes.Decision {
	if attempt < maxAttempts {
		return datatypes.Decision{
			QueryID:       query.ID,
			AttemptNumber: attempt,
			Action:        datatypes.ActionRetry,
			ReasonCode:    datatypes.ReasonEmptyClaimSet,
			Feedback:      []string{"the answer contained no checkable statements; answer the question directly"},
		}
	}
	d := datatypes.Decision{
		QueryID:       query.ID,
		AttemptNumber: attempt,
		Action:        datatypes.ActionRefuse,
		ReasonCode:    datatypes.ReasonEmptyClaimSet,
	}
	d.FinalText = datatypes.RefusalReason(d.ReasonCode)
	return d
}

func (o *Orchestrator) finishTimeout(outcome *Outcome, attempt int) {
	o.logger.Warn("wall-clock budget exhausted",
		"query_id", outcome.Query.ID, "attempt", attempt)
	o.finish(outcome, datatypes.Decision{
		QueryID:       outcome.Query.ID,
		AttemptNumber: attempt,
		Action:        datatypes.ActionRefuse,
		ReasonCode:    datatypes.ReasonTimeoutBudget,
		FinalText:     datatypes.RefusalReason(datatypes.ReasonTimeoutBudget),
	})
}

func (o *Orchestrator) finish(outcome *Outcome, d datatypes.Decision) {
	outcome.Final = d
	outcome.TotalTime = time.Since(outcome.StartedAt)
	o.logger.Info("validation cycle finished",
		"query_id", outcome.Query.ID,
		"action", d.Action,
		"reason", d.ReasonCode,
		"attempts", len(outcome.Attempts),
		"total_ms", outcome.TotalTime.Milliseconds())
}

// budgetExhausted distinguishes our own wall-clock ceiling from caller
// cancellation: true only when the budget context expired while the parent
// is still alive.
func budgetExhausted(budgetCtx, parent context.Context) bool {
	return budgetCtx.Err() != nil && parent.Err() == nil
}
