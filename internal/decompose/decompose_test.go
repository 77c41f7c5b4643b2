package decompose

import (
	"errors"
	"testing"
)

func TestDecomposeGreedyLongestMatch(t *testing.T) {
	motifs := []Motif{
		{Cues: []uint8{1, 2}, Distance: 10},    // index 0, short
		{Cues: []uint8{1, 2, 3}, Distance: 15}, // index 1, longer, should win when both match at position 0
	}
	cues := []uint8{1, 2, 3, 1, 2}

	result, err := Decompose(cues, motifs)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	wantIndices := []int{1, 0}
	if len(result.TrialIndices) != len(wantIndices) {
		t.Fatalf("indices = %v, want %v", result.TrialIndices, wantIndices)
	}
	for i, want := range wantIndices {
		if result.TrialIndices[i] != want {
			t.Fatalf("indices = %v, want %v", result.TrialIndices, wantIndices)
		}
	}
	if result.CumulativeDistances[0] != 15 || result.CumulativeDistances[1] != 25 {
		t.Fatalf("cumulative = %v, want [15 25]", result.CumulativeDistances)
	}
}

func TestDecomposeFailsWithPositionAndSnippet(t *testing.T) {
	motifs := []Motif{{Cues: []uint8{9, 9}, Distance: 1}}
	cues := []uint8{1, 2, 3}

	_, err := Decompose(cues, motifs)
	var derr *Error
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want *decompose.Error", err)
	}
	if derr.Position != 0 {
		t.Fatalf("position = %d, want 0", derr.Position)
	}
	if len(derr.Snippet) != 3 {
		t.Fatalf("snippet = %v, want len 3", derr.Snippet)
	}
}

func TestDecomposeIsPureAndCacheDoesNotLeakBetweenCalls(t *testing.T) {
	motifs := []Motif{{Cues: []uint8{5}, Distance: 1}}
	cues := []uint8{5, 5, 5}

	r1, err := Decompose(cues, motifs)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	r2, err := Decompose(cues, motifs)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if len(r1.TrialIndices) != len(r2.TrialIndices) {
		t.Fatalf("repeated calls diverged: %v vs %v", r1.TrialIndices, r2.TrialIndices)
	}
}

func TestDecomposeRejectsZeroLengthMotif(t *testing.T) {
	motifs := []Motif{{Cues: nil, Distance: 0}}
	if _, err := Decompose([]uint8{1}, motifs); err == nil {
		t.Fatal("expected an error for a zero-length motif")
	}
}
