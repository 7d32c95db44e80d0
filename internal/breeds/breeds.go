// Package breeds holds the fixed domain tables used to post-process model
// output: the default label vocabulary, the breed to species membership table
// and the crossbreed rule.
package breeds

import (
	"strings"

	"breedserve/pkg/types"
)

// Unknown is the label reported for a class index outside the vocabulary.
const Unknown = "Unknown"

// DefaultClasses is the vocabulary used when the model carries no metadata
// sidecar. Order matches the classifier head.
var DefaultClasses = []string{
	"Alambadi", "Amritmahal", "Ayrshire", "Banni", "Bargur", "Bhadawari",
	"Brown_Swiss", "Dangi", "Deoni", "Gir", "Guernsey", "Hallikar",
	"Hariana", "Holstein_Friesian", "Jaffrabadi", "Jersey", "Kangayam",
	"Kankrej", "Kasargod", "Kenkatha", "Kherigarh", "Khillari",
	"Krishna_Valley", "Malnad_gidda", "Mehsana", "Murrah", "Nagori",
	"Nagpuri", "Nili_Ravi", "Nimari", "Ongole", "Pulikulam", "Rathi",
	"Red_Dane", "Red_Sindhi", "Sahiwal", "Surti", "Tharparkar", "Toda",
	"Umblachery", "Vechur",
}

// SpeciesTable maps a breed label to a species. It is a best-effort
// fallback for backends that do not report species directly; entries are
// matched as substrings of the label so "Murrah_cross" resolves to buffalo.
type SpeciesTable struct {
	members map[types.Species][]string
	// Default is returned when no entry matches a known label.
	Default types.Species
}

// NewSpeciesTable builds a table from species -> member substrings.
func NewSpeciesTable(members map[types.Species][]string, def types.Species) SpeciesTable {
	cp := make(map[types.Species][]string, len(members))
	for sp, list := range members {
		cp[sp] = append([]string(nil), list...)
	}
	return SpeciesTable{members: cp, Default: def}
}

// DefaultSpeciesTable lists the buffalo breeds of the default vocabulary;
// every other breed is cattle.
var DefaultSpeciesTable = NewSpeciesTable(map[types.Species][]string{
	types.SpeciesBuffalo: {"Murrah", "Mehsana", "Surti", "Jaffrabadi", "Nili_Ravi", "Nagpuri", "Bhadawari"},
}, types.SpeciesCattle)

// SpeciesOf resolves the species of a breed label. Empty and Unknown labels
// resolve to non_animal.
func (t SpeciesTable) SpeciesOf(label string) types.Species {
	label = strings.TrimSpace(label)
	if label == "" || label == Unknown {
		return types.SpeciesNonAnimal
	}
	// buffalo first: it is the short list
	for _, sp := range []types.Species{types.SpeciesBuffalo, types.SpeciesCattle, types.SpeciesNonAnimal} {
		for _, member := range t.members[sp] {
			if strings.Contains(label, member) {
				return sp
			}
		}
	}
	return t.Default
}

// SpeciesFromPredictions derives a species result from the top prediction.
func (t SpeciesTable) SpeciesFromPredictions(preds []types.BreedPrediction) types.SpeciesResult {
	if len(preds) == 0 {
		return types.SpeciesResult{Species: types.SpeciesNonAnimal}
	}
	top := preds[0]
	return types.SpeciesResult{Species: t.SpeciesOf(top.Label), Confidence: top.Confidence}
}

const (
	crossbreedMaxTop = 0.7
	crossbreedMaxGap = 0.2
)

// IsCrossbreed flags an ambiguous ranking: the top confidence is below 0.7
// and within 0.2 of the runner-up. A single prediction is never a crossbreed.
func IsCrossbreed(preds []types.BreedPrediction) bool {
	if len(preds) < 2 {
		return false
	}
	top1, top2 := preds[0].Confidence, preds[1].Confidence
	return top1 < crossbreedMaxTop && (top1-top2) < crossbreedMaxGap
}
