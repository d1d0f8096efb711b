// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"fmt"
)

// Error taxonomy for the validation chain.
//
// The central correctness contract: any validator-level external failure
// degrades conservatively. An entailment timeout makes a claim unsupported,
// a safety-classifier timeout keeps the attempt un-cleared. Failures bias
// toward REFUSE, never toward silently accepting unverified content.
var (
	// ErrRetrievalUnavailable means the retrieval collaborator could not
	// supply passages. Infrastructure failure: surfaced as retryable.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrEntailmentTimeout means the entailment collaborator timed out or
	// errored for a claim. The claim is forced to unsupported.
	ErrEntailmentTimeout = errors.New("entailment service timeout")

	// ErrSafetyTimeout means the safety classification collaborator timed
	// out. The attempt is not treated as safe-cleared.
	ErrSafetyTimeout = errors.New("safety service timeout")

	// ErrDraftingFailure means the drafting collaborator failed to produce
	// a draft. Infrastructure failure when no draft exists yet.
	ErrDraftingFailure = errors.New("drafting failure")

	// ErrEmptyClaimSet means a draft yielded zero checkable claims. An
	// unverifiable draft cannot be accepted.
	ErrEmptyClaimSet = errors.New("empty claim set")

	// ErrRetryBudgetExhausted means max_attempts was reached without an
	// acceptable draft.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrTimeoutBudgetExhausted means the wall-clock ceiling across all
	// attempts was exceeded.
	ErrTimeoutBudgetExhausted = errors.New("timeout budget exhausted")
)

// CollaboratorError wraps a failure from an external collaborator with
// enough context for logging and metrics without leaking detail to users.
type CollaboratorError struct {
	// Collaborator names the external service ("retrieval", "drafting",
	// "entailment", "safety").
	Collaborator string

	// Attempts is how many tries were made before giving up.
	Attempts int

	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failed after %d attempt(s): %v",
		e.Collaborator, e.Attempts, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// IsInfrastructureFailure reports whether err represents an upstream outage
// that happened before any draft was validated. Such failures return a
// retryable status to the caller instead of a permanent refusal.
func IsInfrastructureFailure(err error) bool {
	return errors.Is(err, ErrRetrievalUnavailable) || errors.Is(err, ErrDraftingFailure)
}
