package cards

import (
	"fmt"
	"strings"
)

const (
	DefaultFeatureSize  = 3
	DefaultFeatureCount = 4
	SetSize             = 3
)

// Rules describes the feature space cards are drawn from. A card id is the
// base-FeatureSize number whose FeatureCount digits are its features.
type Rules struct {
	FeatureSize  int
	FeatureCount int
}

// DefaultRules returns the classic 81-card deck.
func DefaultRules() Rules {
	return Rules{FeatureSize: DefaultFeatureSize, FeatureCount: DefaultFeatureCount}
}

// DeckSize returns FeatureSize^FeatureCount.
func (r Rules) DeckSize() int {
	n := 1
	for i := 0; i < r.FeatureCount; i++ {
		n *= r.FeatureSize
	}
	return n
}

// Features returns the feature digits of a card, least significant first.
func (r Rules) Features(card int) []int {
	f := make([]int, r.FeatureCount)
	for i := range f {
		f[i] = card % r.FeatureSize
		card /= r.FeatureSize
	}
	return f
}

// IsSet reports whether exactly three cards form a set: for every feature the
// three values are either all equal or all distinct.
func (r Rules) IsSet(cards []int) bool {
	if len(cards) != SetSize {
		return false
	}
	if cards[0] == cards[1] || cards[1] == cards[2] || cards[0] == cards[2] {
		return false
	}
	a, b, c := r.Features(cards[0]), r.Features(cards[1]), r.Features(cards[2])
	for i := 0; i < r.FeatureCount; i++ {
		allSame := a[i] == b[i] && b[i] == c[i]
		allDiff := a[i] != b[i] && b[i] != c[i] && a[i] != c[i]
		if !allSame && !allDiff {
			return false
		}
	}
	return true
}

// FindSets returns up to limit sets found among cards, in enumeration order.
// A limit <= 0 returns every set.
func (r Rules) FindSets(cards []int, limit int) [][]int {
	var sets [][]int
	for i := 0; i < len(cards); i++ {
		for j := i + 1; j < len(cards); j++ {
			for k := j + 1; k < len(cards); k++ {
				triple := []int{cards[i], cards[j], cards[k]}
				if !r.IsSet(triple) {
					continue
				}
				sets = append(sets, triple)
				if limit > 0 && len(sets) >= limit {
					return sets
				}
			}
		}
	}
	return sets
}

var (
	counts  = []string{"1", "2", "3"}
	colors  = []string{"red", "green", "purple"}
	shapes  = []string{"oval", "squiggle", "diamond"}
	shading = []string{"solid", "striped", "open"}
)

// Describe returns a short label for a card. The classic deck gets readable
// names; any other feature space falls back to the raw digits.
func (r Rules) Describe(card int) string {
	f := r.Features(card)
	if r.FeatureSize == DefaultFeatureSize && r.FeatureCount == DefaultFeatureCount {
		return fmt.Sprintf("%s-%s-%s-%s", counts[f[0]], colors[f[1]], shapes[f[2]], shading[f[3]])
	}
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "")
}
