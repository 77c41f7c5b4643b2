// Package decompose implements the Unity wall-cue sequence to trial-index
// decomposer described in spec.md §4.7: a pure, side-effect-free greedy
// longest-match over a set of cue motifs.
package decompose

import (
	"fmt"
	"sort"
	"sync"
)

// Motif is one named trial's cue pattern and geometry, keyed into the
// decomposer by its original index in the caller's motif slice.
type Motif struct {
	Cues     []uint8
	Distance float64
}

// Result is the decomposer's successful output: for each decomposed trial,
// the index into the original motif slice, plus the cumulative distance
// (cm) reached by the end of that trial.
type Result struct {
	TrialIndices        []int
	CumulativeDistances []float64
}

// Error reports a decomposition failure at a specific cue position, along
// with a snippet of the offending cues for diagnosis, per §4.7's
// "reporting the position and the next 20 cue bytes".
type Error struct {
	Position int
	Snippet  []uint8
}

func (e *Error) Error() string {
	return fmt.Sprintf("decompose: no motif matches at position %d (next cues: %v)", e.Position, e.Snippet)
}

const snippetLen = 20

// motifCache memoizes the length-descending motif order for a given motif
// set, keyed by the motifs' own shape: re-decomposing the same experiment's
// cue sequence (e.g. across repeated trial blocks) should not re-sort on
// every call.
type motifCache struct {
	order []int
}

var (
	cacheMu sync.Mutex
	caches  = make(map[string]*motifCache)
)

func motifSetKey(motifs []Motif) string {
	key := make([]byte, 0, len(motifs)*4)
	for _, m := range motifs {
		key = append(key, byte(len(m.Cues)))
		key = append(key, m.Cues...)
		key = append(key, 0xff)
	}
	return string(key)
}

func lengthDescendingOrder(motifs []Motif) []int {
	key := motifSetKey(motifs)

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if c, ok := caches[key]; ok {
		return c.order
	}

	order := make([]int, len(motifs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return len(motifs[order[i]].Cues) > len(motifs[order[j]].Cues)
	})

	caches[key] = &motifCache{order: order}
	return order
}

// Decompose greedily matches the longest motif at each position of the cue
// sequence, per §4.7's algorithm. It is a pure function: no tracker, clock,
// or log-bus interaction, so callers can run it repeatedly (e.g. once per
// Unity session restart) without side effects.
func Decompose(cues []uint8, motifs []Motif) (Result, error) {
	order := lengthDescendingOrder(motifs)

	minLen := len(motifs[0].Cues)
	for _, m := range motifs {
		if len(m.Cues) < minLen {
			minLen = len(m.Cues)
		}
	}
	if minLen == 0 {
		return Result{}, fmt.Errorf("decompose: motif set contains a zero-length motif")
	}
	maxTrials := len(cues)/minLen + 1

	var trialIndices []int
	var cumulative []float64
	total := 0.0

	p := 0
	for len(trialIndices) < maxTrials && p < len(cues) {
		matched := -1
		for _, idx := range order {
			motif := motifs[idx].Cues
			if p+len(motif) > len(cues) {
				continue
			}
			if sliceEqual(cues[p:p+len(motif)], motif) {
				matched = idx
				break
			}
		}
		if matched < 0 {
			end := p + snippetLen
			if end > len(cues) {
				end = len(cues)
			}
			return Result{}, &Error{Position: p, Snippet: append([]uint8(nil), cues[p:end]...)}
		}

		trialIndices = append(trialIndices, matched)
		p += len(motifs[matched].Cues)
		total += motifs[matched].Distance
		cumulative = append(cumulative, total)
	}

	if p < len(cues) {
		end := p + snippetLen
		if end > len(cues) {
			end = len(cues)
		}
		return Result{}, &Error{Position: p, Snippet: append([]uint8(nil), cues[p:end]...)}
	}

	return Result{TrialIndices: trialIndices, CumulativeDistances: cumulative}, nil
}

func sliceEqual(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
