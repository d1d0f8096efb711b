// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package clients implements the external collaborator interfaces consumed
// by the validation chain: retrieval, drafting, entailment scoring, and
// safety classification.
//
// Every call into a collaborator carries its own timeout and bounded
// exponential backoff. When a collaborator stays down the caller degrades
// conservatively per the chain's failure policy; nothing in this package
// ever fabricates a success.
package clients

import (
	"context"
	"time"

	"github.com/groundgate/groundgate/services/validator/datatypes"
	"github.com/groundgate/groundgate/services/validator/observability"
)

// BackoffConfig bounds the retry behavior for one collaborator call.
type BackoffConfig struct {
	// MaxAttempts is the total number of tries (first call included).
	MaxAttempts int

	// BaseDelay is the delay before the second attempt; it doubles for
	// each subsequent attempt.
	BaseDelay time.Duration

	// PerCallTimeout caps each individual attempt.
	PerCallTimeout time.Duration
}

// DefaultBackoffConfig returns the chain-wide default: two attempts with a
// doubling base delay.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxAttempts:    2,
		BaseDelay:      250 * time.Millisecond,
		PerCallTimeout: 5 * time.Second,
	}
}

// withRetry runs fn under the backoff config, retrying transient failures.
//
// Cancellation of ctx aborts both the in-flight attempt (via the per-call
// timeout context) and the backoff sleep.
func withRetry(ctx context.Context, cfg BackoffConfig, collaborator string, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := cfg.BaseDelay
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				observability.Default().CollaboratorErrorsTotal.WithLabelValues(collaborator).Inc()
				return &datatypes.CollaboratorError{Collaborator: collaborator, Attempts: i, Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay *= 2
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if cfg.PerCallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, cfg.PerCallTimeout)
		}
		lastErr = fn(callCtx)
		if cancel != nil {
			cancel()
		}
		if lastErr == nil {
			return nil
		}
		// The overall request being cancelled is not retryable.
		if ctx.Err() != nil {
			break
		}
	}
	observability.Default().CollaboratorErrorsTotal.WithLabelValues(collaborator).Inc()
	return &datatypes.CollaboratorError{Collaborator: collaborator, Attempts: attempts, Err: lastErr}
}
