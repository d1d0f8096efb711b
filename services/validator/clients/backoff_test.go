// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package clients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/groundgate/groundgate/services/validator/datatypes"
	"github.com/groundgate/groundgate/services/validator/observability"
)

func fastBackoff(attempts int) BackoffConfig {
	return BackoffConfig{
		MaxAttempts:    attempts,
		BaseDelay:      time.Millisecond,
		PerCallTimeout: time.Second,
	}
}

func TestWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastBackoff(3), "test", func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastBackoff(3), "test", func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_ExhaustionWrapsCollaboratorError(t *testing.T) {
	inner := errors.New("endpoint down")
	calls := 0
	err := withRetry(context.Background(), fastBackoff(2), "retrieval", func(_ context.Context) error {
		calls++
		return inner
	})
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}

	var ce *datatypes.CollaboratorError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %T, want *CollaboratorError", err)
	}
	if ce.Collaborator != "retrieval" {
		t.Errorf("collaborator = %s", ce.Collaborator)
	}
	if ce.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", ce.Attempts)
	}
	if !errors.Is(err, inner) {
		t.Error("wrapped error lost the cause")
	}
}

func TestWithRetry_CancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, fastBackoff(5), "test", func(_ context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("withRetry() on cancelled context should error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1: cancellation must stop the retry loop", calls)
	}
}

func TestWithRetry_ExhaustionCountsCollaboratorError(t *testing.T) {
	counter := observability.Default().CollaboratorErrorsTotal.WithLabelValues("entailment")
	before := testutil.ToFloat64(counter)

	_ = withRetry(context.Background(), fastBackoff(2), "entailment", func(_ context.Context) error {
		return errors.New("endpoint down")
	})

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("collaborator error counter delta = %v, want 1", got)
	}
}

func TestWithRetry_SuccessDoesNotCountError(t *testing.T) {
	counter := observability.Default().CollaboratorErrorsTotal.WithLabelValues("drafting")
	before := testutil.ToFloat64(counter)

	err := withRetry(context.Background(), fastBackoff(2), "drafting", func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if got := testutil.ToFloat64(counter) - before; got != 0 {
		t.Errorf("collaborator error counter delta = %v, want 0", got)
	}
}

func TestWithRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = withRetry(context.Background(), BackoffConfig{}, "test", func(_ context.Context) error {
		calls++
		return errors.New("fail")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 even with a zero config", calls)
	}
}
