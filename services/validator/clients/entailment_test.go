// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package clients

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosine_MappedScoreRange(t *testing.T) {
	// The scorer maps cosine from [-1,1] into [0,1]; the endpoints must land
	// exactly on 0 and 1 so threshold comparisons behave.
	if got := (cosine([]float32{1}, []float32{1}) + 1) / 2; got != 1 {
		t.Errorf("mapped identical = %v, want 1", got)
	}
	if got := (cosine([]float32{1}, []float32{-1}) + 1) / 2; got != 0 {
		t.Errorf("mapped opposite = %v, want 0", got)
	}
}

func TestHashKey_Stable(t *testing.T) {
	if hashKey("same text") != hashKey("same text") {
		t.Error("hashKey not deterministic")
	}
	if hashKey("one") == hashKey("two") {
		t.Error("distinct texts collided")
	}
}

func TestNewEmbeddingScorer_Defaults(t *testing.T) {
	s, err := NewEmbeddingScorer(EntailmentConfig{Model: "nomic-embed-text"}, nil)
	if err != nil {
		t.Fatalf("NewEmbeddingScorer() error = %v", err)
	}
	if s.cache == nil || s.limiter == nil {
		t.Error("scorer missing cache or limiter with zero-value config")
	}
}
