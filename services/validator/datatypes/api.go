// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// ValidateRequest is the body of POST /v1/validate.
//
// Draft and Passages are optional: when Passages is empty the service calls
// the retrieval collaborator itself, and when Draft is empty the retry
// orchestrator triggers drafting internally.
type ValidateRequest struct {
	Query string `json:"query" binding:"required"`

	Draft string `json:"draft,omitempty"`

	Passages []Passage `json:"passages,omitempty"`

	// ModelID is recorded on externally supplied drafts.
	ModelID string `json:"model_id,omitempty"`
}

// ValidateResponse is the terminal outcome returned to the caller.
type ValidateResponse struct {
	QueryID    string     `json:"query_id"`
	Action     Action     `json:"action"`
	ReasonCode ReasonCode `json:"reason_code"`

	// Reason is a human-readable category. It never leaks internal error
	// detail ("not enough reliable information", not a stack trace).
	Reason string `json:"reason"`

	FinalText string   `json:"final_text,omitempty"`
	Citations []string `json:"citations,omitempty"`
	Attempts  int      `json:"attempts"`
}

// RefusalReason maps a reason code to its user-visible category.
func RefusalReason(code ReasonCode) string {
	switch code {
	case ReasonGrounded:
		return "answer grounded in retrieved sources"
	case ReasonUngroundedOutOfKB:
		return "general-knowledge answer, not covered by the knowledge base"
	case ReasonSafetyViolation:
		return "the answer violated content policy"
	case ReasonInsufficientCoverage:
		return "not enough reliable information in the knowledge base"
	case ReasonRetryBudgetExhausted, ReasonEmptyClaimSet:
		return "could not produce a sufficiently supported answer"
	case ReasonTimeoutBudget:
		return "validation did not finish in time"
	default:
		return "the request could not be completed"
	}
}

// QualityReport is the offline metrics export of GET /v1/quality.
//
// Field names match the external reporting tool's schema.
type QualityReport struct {
	// Decisions is the number of terminal decisions aggregated.
	Decisions int `json:"decisions"`

	// RequestFailureRate is the fraction of cycles that ended in an
	// upstream infrastructure failure.
	RequestFailureRate float64 `json:"request_failure_rate"`

	// RefusalRecallOnSourceRequired is the fraction of queries flagged
	// in_kb=false that were actually refused.
	RefusalRecallOnSourceRequired float64 `json:"refusal_recall_on_source_required"`

	// ValidatorOnlyRefusalRateOnSourceRequired is the fraction of those
	// refusals whose reason code was a validator decision rather than an
	// infrastructure failure.
	ValidatorOnlyRefusalRateOnSourceRequired float64 `json:"validator_only_refusal_rate_on_source_required"`

	// GroundedAnswerRateInKB is the fraction of in-KB queries accepted
	// with every citation present in the supplied passage set.
	GroundedAnswerRateInKB float64 `json:"grounded_answer_rate_in_kb"`

	// FalseRefusalRateInKB is the fraction of in-KB queries refused.
	FalseRefusalRateInKB float64 `json:"false_refusal_rate_in_kb"`
}
