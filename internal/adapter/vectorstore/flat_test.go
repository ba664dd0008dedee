package vectorstore

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"scaled", []float32{1, 1}, []float32{5, 5}, 1},
		{"zero magnitude", []float32{0, 0}, []float32{1, 1}, 0},
		{"unequal length", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		got := CosineSimilarity(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("%s: CosineSimilarity = %f, want %f", tt.name, got, tt.want)
		}
	}
}

func TestFlatStoreNearest(t *testing.T) {
	s := NewFlatStore()

	if err := s.Register("docs", "x", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.Register("docs", "y", []float32{0, 1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.Register("docs", "xy", []float32{1, 1, 0}); err != nil {
		t.Fatal(err)
	}

	results := s.Nearest("docs", []float32{1, 0.1, 0}, 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "x" || results[1].ChunkID != "xy" {
		t.Errorf("unexpected order: %v", results)
	}
	if results[0].Score < -1 || results[0].Score > 1 {
		t.Errorf("score out of range: %f", results[0].Score)
	}
}

func TestFlatStoreMismatchedLengthIsNonMatch(t *testing.T) {
	s := NewFlatStore()
	_ = s.Register("docs", "short", []float32{1, 0})
	_ = s.Register("docs", "long", []float32{1, 0, 0})

	_ = s.Register("docs", "zero", []float32{0, 0, 0})

	results := s.Nearest("docs", []float32{1, 0, 0}, 0)
	if len(results) != 1 || results[0].ChunkID != "long" {
		t.Fatalf("expected only the matching vector, got %v", results)
	}

	if results := s.Nearest("docs", []float32{0, 0, 0}, 0); len(results) != 0 {
		t.Errorf("expected no results for a zero query, got %v", results)
	}
	if results := s.Nearest("docs", []float32{1, 0, 0, 0}, 0); len(results) != 0 {
		t.Errorf("expected no results for an unseen dimension, got %v", results)
	}
}

func TestFlatStoreIsolationAndDelete(t *testing.T) {
	s := NewFlatStore()
	_ = s.Register("a", "a1", []float32{1, 0})
	_ = s.Register("b", "b1", []float32{1, 0})

	if results := s.Nearest("a", []float32{1, 0}, 5); len(results) != 1 || results[0].ChunkID != "a1" {
		t.Errorf("expected only a1, got %v", results)
	}

	s.Unregister("a", "a1")
	if results := s.Nearest("a", []float32{1, 0}, 5); len(results) != 0 {
		t.Errorf("expected no results after unregister, got %v", results)
	}

	s.DropIndex("b")
	if s.Count("b") != 0 {
		t.Errorf("expected empty index after drop")
	}
}

func TestFlatStoreRejectsEmptyVector(t *testing.T) {
	s := NewFlatStore()
	if err := s.Register("docs", "c1", nil); err == nil {
		t.Error("expected error for empty vector")
	}
}

func TestFlatStoreTieBreak(t *testing.T) {
	s := NewFlatStore()
	_ = s.Register("docs", "second", []float32{0, 1})
	_ = s.Register("docs", "first", []float32{0, 2})

	results := s.Nearest("docs", []float32{0, 1}, 0)
	if results[0].ChunkID != "second" {
		t.Errorf("expected registration order on ties, got %v", results)
	}
}
