package align

import (
	"testing"

	"github.com/sebastiankruger/mill-forecaster/internal/core"
)

func grades(labels ...string) []core.Grade {
	out := make([]core.Grade, len(labels))
	for i, l := range labels {
		out[i] = core.Grade(l)
	}
	return out
}

func TestBestOffsetPerfectMatch(t *testing.T) {
	got := BestOffset(grades("A", "B"), grades("X", "A", "B", "C"), 0.5)
	if got != 1 {
		t.Fatalf("expected offset 1, got %d", got)
	}
}

func TestBestOffsetNoMatch(t *testing.T) {
	got := BestOffset(grades("A", "B"), grades("X", "Y", "Z"), 0.5)
	if got != NotFound {
		t.Fatalf("expected NotFound, got %d", got)
	}
}

func TestBestOffsetAcceptsAtRatio(t *testing.T) {
	// One of two positions matches: score 1 equals 0.5*2, which passes.
	got := BestOffset(grades("A", "B"), grades("A", "C", "D"), 0.5)
	if got != 0 {
		t.Fatalf("expected offset 0 at threshold score, got %d", got)
	}
	// A stricter ratio rejects the same alignment.
	got = BestOffset(grades("A", "B"), grades("A", "C", "D"), 0.75)
	if got != NotFound {
		t.Fatalf("expected NotFound under stricter ratio, got %d", got)
	}
}

func TestBestOffsetPrefersEarliestBest(t *testing.T) {
	// Two offsets score 2 of 3; the first found wins.
	got := BestOffset(grades("A", "B", "C"), grades("A", "B", "X", "A", "B", "Y"), 0.5)
	if got != 0 {
		t.Fatalf("expected earliest best offset 0, got %d", got)
	}
}

func TestBestOffsetShortCircuitsOnPerfectScore(t *testing.T) {
	// A perfect match later in the reference beats an earlier partial.
	got := BestOffset(grades("A", "B", "C"), grades("A", "B", "X", "A", "B", "C"), 0.5)
	if got != 3 {
		t.Fatalf("expected perfect-match offset 3, got %d", got)
	}
}

func TestBestOffsetSingleGrade(t *testing.T) {
	if got := BestOffset(grades("B"), grades("A", "B", "C"), 0.5); got != 1 {
		t.Fatalf("expected single-grade match at 1, got %d", got)
	}
	if got := BestOffset(grades("Q"), grades("A", "B", "C"), 0.5); got != NotFound {
		t.Fatalf("expected NotFound for absent single grade, got %d", got)
	}
}

func TestBestOffsetDegenerateInputs(t *testing.T) {
	if got := BestOffset(nil, grades("A"), 0.5); got != NotFound {
		t.Fatalf("expected NotFound for empty target, got %d", got)
	}
	if got := BestOffset(grades("A", "B"), grades("A"), 0.5); got != NotFound {
		t.Fatalf("expected NotFound when target exceeds reference, got %d", got)
	}
}
