// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data model for the validation chain.
//
// Everything in this package is an immutable snapshot for the duration of one
// validation cycle. Components create new values; they never mutate values
// produced by other components. In particular, Passage.SourceTrustScore is
// owned by the external ingestion pipeline and is read-only here.
package datatypes

import (
	"time"
)

// Query is one incoming question to validate an answer for.
// Immutable after creation; lives for exactly one validation cycle.
type Query struct {
	ID string `json:"id"`

	Text string `json:"text"`

	// DetectedLanguage is a best-effort ISO 639-1 code, recorded for
	// analytics only. Never used to change validation behavior.
	DetectedLanguage string `json:"detected_language,omitempty"`

	// RequiresSource is derived by the coverage classifier: true when the
	// correct answer depends on corpus content rather than general knowledge.
	RequiresSource bool `json:"requires_source"`
}

// Passage is a retrieved unit of corpus text with provenance metadata.
//
// The snapshot is supplied by the retrieval collaborator and is never
// mutated by the validation chain.
type Passage struct {
	ID string `json:"id"`

	Text string `json:"text"`

	SourceID string `json:"source_id"`

	// SourceTrustScore is in [0,1] and owned by the ingestion pipeline.
	SourceTrustScore float64 `json:"source_trust_score"`

	RetrievedAt time.Time `json:"retrieved_at"`

	// Rank is the retrieval collaborator's ordering (0 = best).
	Rank int `json:"rank"`
}

// Draft is one candidate answer text. One Draft exists per retry attempt;
// superseded drafts are retained in the EvaluationRecord for audit.
type Draft struct {
	Text string `json:"text"`

	ProducingModelID string `json:"producing_model_id,omitempty"`

	// AttemptNumber starts at 1.
	AttemptNumber int `json:"attempt_number"`
}

// Claim is an atomic, checkable statement extracted from a draft.
// Never mutated after creation.
type Claim struct {
	ID string `json:"id"`

	DraftAttemptID int `json:"draft_attempt_id"`

	// Span holds byte offsets into the draft text.
	Span Span `json:"span"`

	NormalizedText string `json:"normalized_text"`
}

// Span is a half-open [Start, End) byte range into the draft text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// VerdictLabel classifies one claim according to one validator.
type VerdictLabel string

const (
	LabelSupported          VerdictLabel = "supported"
	LabelPartiallySupported VerdictLabel = "partially_supported"
	LabelUnsupported        VerdictLabel = "unsupported"
	LabelUnsafe             VerdictLabel = "unsafe"
	LabelNotApplicable      VerdictLabel = "n/a"
)

// Verdict is one validator's judgement of one claim. Append-only.
type Verdict struct {
	ClaimID string `json:"claim_id"`

	ValidatorName string `json:"validator_name"`

	Label VerdictLabel `json:"label"`

	// Score is in [0,1]. For evidence verdicts this is the best entailment
	// score; for safety verdicts it is a severity weight.
	Score float64 `json:"score"`

	// EvidencePassageIDs lists every passage at or above the partial
	// threshold. Possibly empty.
	EvidencePassageIDs []string `json:"evidence_passage_ids,omitempty"`

	// Span locates the flagged text for safety verdicts, which attach to
	// draft spans rather than claims (ClaimID empty in that case).
	Span *Span `json:"span,omitempty"`
}

// Action is the aggregator's output for one attempt.
type Action string

const (
	ActionAccept Action = "ACCEPT"
	ActionRetry  Action = "RETRY"
	ActionRefuse Action = "REFUSE"
)

// ReasonCode explains a Decision in machine-readable form. Validator-driven
// refusals and infrastructure failures use disjoint code sets so that offline
// metrics can separate "the system was down" from "the system declined".
type ReasonCode string

const (
	// ReasonGrounded is the accept path: enough claims were supported.
	ReasonGrounded ReasonCode = "grounded"

	// ReasonUngroundedOutOfKB accepts an ungrounded draft because the
	// corpus was never meant to cover the query.
	ReasonUngroundedOutOfKB ReasonCode = "ungrounded_out_of_kb"

	// ReasonRetryUnsupported asks the drafter to revise unsupported claims.
	ReasonRetryUnsupported ReasonCode = "unsupported_claims"

	// Validator-driven refusals.
	ReasonSafetyViolation      ReasonCode = "safety_violation"
	ReasonInsufficientCoverage ReasonCode = "insufficient_coverage"
	ReasonRetryBudgetExhausted ReasonCode = "retry_budget_exhausted"
	ReasonTimeoutBudget        ReasonCode = "timeout_budget_exhausted"
	ReasonEmptyClaimSet        ReasonCode = "empty_claim_set"

	// Infrastructure failures (surfaced as retryable errors, not refusals,
	// when no draft was validated at all).
	ReasonRetrievalUnavailable ReasonCode = "retrieval_unavailable"
	ReasonDraftingFailure      ReasonCode = "drafting_failure"
)

// IsValidatorRefusal reports whether the code represents a deliberate
// validator decision as opposed to an upstream infrastructure failure.
func (r ReasonCode) IsValidatorRefusal() bool {
	switch r {
	case ReasonSafetyViolation, ReasonInsufficientCoverage,
		ReasonRetryBudgetExhausted, ReasonTimeoutBudget, ReasonEmptyClaimSet:
		return true
	}
	return false
}

// Decision is the aggregator output for one attempt. The last attempt's
// Decision with action ACCEPT or REFUSE is the terminal Decision for the
// query.
type Decision struct {
	QueryID string `json:"query_id"`

	AttemptNumber int `json:"attempt_number"`

	Action Action `json:"action"`

	ReasonCode ReasonCode `json:"reason_code"`

	// Citations is the subset of passage ids actually used. For an ACCEPT
	// every id must exist among the passages supplied for that attempt.
	Citations []string `json:"citations,omitempty"`

	// FinalText is the user-visible answer (ACCEPT) or refusal message.
	FinalText string `json:"final_text,omitempty"`

	// Feedback lists unsupported claim texts handed back to the drafting
	// collaborator on RETRY.
	Feedback []string `json:"feedback,omitempty"`
}

// Terminal reports whether the decision ends the retry loop.
func (d *Decision) Terminal() bool {
	return d.Action == ActionAccept || d.Action == ActionRefuse
}

// AttemptRecord captures one attempt for audit: the draft, the component
// verdicts, and the resulting decision.
type AttemptRecord struct {
	Draft    Draft     `json:"draft"`
	Verdicts []Verdict `json:"verdicts,omitempty"`
	Decision Decision  `json:"decision"`

	// InKB and GroundedRatio are snapshotted for offline metrics.
	InKB          bool    `json:"in_kb"`
	GroundedRatio float64 `json:"grounded_ratio"`

	Duration time.Duration `json:"duration"`
}

// EvaluationRecord is the write-once denormalized snapshot appended for every
// terminal Decision. It is consumed only by offline analytics; the online
// decision path never reads it back.
type EvaluationRecord struct {
	Query Query `json:"query"`

	// PassageIDs are the ids supplied on the final attempt.
	PassageIDs []string `json:"passage_ids,omitempty"`

	Attempts []AttemptRecord `json:"attempts"`

	Final Decision `json:"final"`

	// InfrastructureFailure is set when the cycle ended in an upstream
	// failure before any draft could be validated.
	InfrastructureFailure bool `json:"infrastructure_failure,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	TotalTime  time.Duration `json:"total_time"`
	RecordedAt time.Time     `json:"recorded_at"`
}
