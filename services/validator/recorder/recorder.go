// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/groundgate/groundgate/services/validator/datatypes"
	"github.com/groundgate/groundgate/services/validator/observability"
)

// Config configures the async recorder.
type Config struct {
	// QueueSize bounds the pending-append queue. A full queue drops the
	// record with a warning instead of blocking the decision path.
	QueueSize int `yaml:"queue_size" validate:"gt=0"`

	// WriteRetries is how many times a failed append is retried before
	// the record is dropped.
	WriteRetries int `yaml:"write_retries"`

	// RetryDelay is the base delay between write retries; it doubles per
	// retry.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:    1024,
		WriteRetries: 2,
		RetryDelay:   100 * time.Millisecond,
	}
}

// Sink receives a copy of every persisted record. Optional; used for the
// InfluxDB latency export.
type Sink interface {
	Write(rec *datatypes.EvaluationRecord)
	Close()
}

// Recorder appends evaluation records asynchronously.
//
// Thread Safety: Safe for concurrent use. Submit never blocks beyond a
// channel send to a buffered queue.
type Recorder struct {
	store  *Store
	config Config
	queue  chan *datatypes.EvaluationRecord
	sink   Sink
	logger *slog.Logger

	// mu guards closed so Submit never races a send against Close closing
	// the queue channel.
	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Recorder and starts its writer goroutine. sink may be nil.
func New(store *Store, config *Config, sink Sink, logger *slog.Logger) *Recorder {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:  store,
		config: cfg,
		queue:  make(chan *datatypes.EvaluationRecord, cfg.QueueSize),
		sink:   sink,
		logger: logger,
		done:   make(chan struct{}),
	}
	go r.drain()
	return r
}

// Submit enqueues a record, fire-and-forget. Returns immediately; when the
// queue is saturated the record is dropped with a warning. The decision has
// already been returned to the caller, so nothing here can change it.
func (r *Recorder) Submit(rec *datatypes.EvaluationRecord) {
	rec.RecordedAt = time.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		observability.Default().RecorderDropsTotal.Inc()
		r.logger.Warn("recorder closed, dropping record", "query_id", rec.Query.ID)
		return
	}

	select {
	case r.queue <- rec:
	default:
		observability.Default().RecorderDropsTotal.Inc()
		r.logger.Warn("recorder queue saturated, dropping record",
			"query_id", rec.Query.ID)
	}
}

// FromOutcome builds the denormalized record for one finished cycle.
func FromOutcome(query datatypes.Query, final datatypes.Decision, attempts []datatypes.AttemptRecord,
	passages []datatypes.Passage, startedAt time.Time, totalTime time.Duration, infraFailure bool) *datatypes.EvaluationRecord {

	ids := make([]string, 0, len(passages))
	for _, p := range passages {
		ids = append(ids, p.ID)
	}
	return &datatypes.EvaluationRecord{
		Query:                 query,
		PassageIDs:            ids,
		Attempts:              attempts,
		Final:                 final,
		InfrastructureFailure: infraFailure,
		StartedAt:             startedAt,
		TotalTime:             totalTime,
	}
}

// Flush waits until the queue is empty or the context expires. For tests
// and graceful shutdown only.
func (r *Recorder) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if len(r.queue) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops the writer after draining what it can. Submits arriving after
// Close starts are dropped, never sent on the closed channel.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.queue)
		<-r.done
		if r.sink != nil {
			r.sink.Close()
		}
	})
}

// drain is the single writer: it owns the store handle for appends, so
// concurrent Submits contend only on the buffered channel.
func (r *Recorder) drain() {
	defer close(r.done)
	for rec := range r.queue {
		r.write(rec)
	}
}

func (r *Recorder) write(rec *datatypes.EvaluationRecord) {
	delay := r.config.RetryDelay
	for attempt := 0; ; attempt++ {
		err := r.store.Append(rec)
		if err == nil {
			observability.Default().RecorderWritesTotal.Inc()
			if r.sink != nil {
				r.sink.Write(rec)
			}
			return
		}
		if attempt >= r.config.WriteRetries {
			observability.Default().RecorderDropsTotal.Inc()
			r.logger.Error("dropping record after write retries",
				"query_id", rec.Query.ID, "error", err)
			return
		}
		time.Sleep(delay)
		delay *= 2
	}
}
