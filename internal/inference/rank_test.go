package inference

import (
	"math"
	"testing"

	"breedserve/internal/breeds"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	p := Softmax([]float32{1000, 1001, 999})
	var sum float64
	for _, v := range p {
		if math.IsNaN(v) {
			t.Fatalf("NaN for large logits")
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("sum=%v", sum)
	}
	if !(p[1] > p[0] && p[0] > p[2]) {
		t.Fatalf("order not preserved: %v", p)
	}
	if Softmax(nil) != nil {
		t.Fatalf("empty input should give nil")
	}
}

func TestRankTopKDescendingUnique(t *testing.T) {
	probs := []float64{0.05, 0.4, 0.1, 0.2, 0.15, 0.03, 0.07}
	m := Metadata{Classes: []string{"a", "b", "c", "d", "e", "f", "g"}}
	got := Rank(probs, m.Label, TopK)
	want := []string{"b", "d", "e", "c", "g"}
	if len(got) != len(want) {
		t.Fatalf("len=%d", len(got))
	}
	for i := range want {
		if got[i].Label != want[i] {
			t.Fatalf("pos %d: %q want %q", i, got[i].Label, want[i])
		}
		if i > 0 && got[i].Confidence > got[i-1].Confidence {
			t.Fatalf("not descending at %d", i)
		}
	}
}

func TestRankCollapsesUnknown(t *testing.T) {
	// head wider than the vocabulary: indices 2..4 have no label
	probs := []float64{0.1, 0.05, 0.4, 0.3, 0.15}
	m := Metadata{Classes: []string{"Gir", "Murrah"}}
	got := Rank(probs, m.Label, TopK)
	if len(got) != 3 {
		t.Fatalf("expected 3 unique labels, got %+v", got)
	}
	if got[0].Label != breeds.Unknown || got[0].Confidence != 0.4 {
		t.Fatalf("top=%+v", got[0])
	}
	if got[1].Label != "Gir" || got[2].Label != "Murrah" {
		t.Fatalf("rest=%+v", got[1:])
	}
}

func TestRankTieBreaksOnIndex(t *testing.T) {
	m := Metadata{Classes: []string{"x", "y"}}
	got := Rank([]float64{0.5, 0.5}, m.Label, TopK)
	if got[0].Label != "x" {
		t.Fatalf("tie should keep lower index first: %+v", got)
	}
}
