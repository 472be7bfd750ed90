package pharma

import (
	"sort"
	"strings"

	"sleepanalysis/domain/core"
)

// fuzzyCutoff is the minimum trigram similarity accepted when no exact,
// alias, or substring match exists.
const fuzzyCutoff = 0.6

// Normalize resolves a free-text medication name to a canonical key.
// Resolution order: exact table match, brand/variant alias, substring match
// against known keys, fuzzy nearest neighbor, then the cleaned input itself.
func Normalize(name string) core.MedicationKey {
	clean := core.CanonicalMedicationKey(name)

	if _, ok := halfLives[clean]; ok {
		return clean
	}
	if canonical, ok := variants[clean]; ok {
		return canonical
	}

	// Substring check, e.g. "magnesium_complex" -> "magnesium". Iterate keys
	// in sorted order so ambiguous inputs resolve deterministically.
	for _, key := range sortedKeys() {
		if strings.Contains(string(clean), string(key)) {
			return key
		}
	}

	if match, ok := closestKey(clean); ok {
		if canonical, isVariant := variants[match]; isVariant {
			return canonical
		}
		return match
	}

	return clean
}

var keyOrder []core.MedicationKey

func init() {
	for key := range halfLives {
		keyOrder = append(keyOrder, key)
	}
	sort.Slice(keyOrder, func(i, j int) bool { return keyOrder[i] < keyOrder[j] })
}

func sortedKeys() []core.MedicationKey {
	return keyOrder
}

// closestKey finds the nearest known key or variant by trigram similarity.
func closestKey(name core.MedicationKey) (core.MedicationKey, bool) {
	best := core.MedicationKey("")
	bestScore := 0.0

	consider := func(candidate core.MedicationKey) {
		score := trigramSimilarity(string(name), string(candidate))
		if score > bestScore || (score == bestScore && candidate < best) {
			best = candidate
			bestScore = score
		}
	}

	for _, key := range sortedKeys() {
		consider(key)
	}
	variantKeys := make([]core.MedicationKey, 0, len(variants))
	for v := range variants {
		variantKeys = append(variantKeys, v)
	}
	sort.Slice(variantKeys, func(i, j int) bool { return variantKeys[i] < variantKeys[j] })
	for _, v := range variantKeys {
		consider(v)
	}

	if bestScore >= fuzzyCutoff {
		return best, true
	}
	return "", false
}

// trigramSimilarity computes the Sorensen-Dice coefficient over character
// trigrams of the two strings, padded so short names still produce grams.
func trigramSimilarity(a, b string) float64 {
	ga := trigrams(a)
	gb := trigrams(b)
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}

	shared := 0
	for g, n := range ga {
		if m, ok := gb[g]; ok {
			if m < n {
				shared += m
			} else {
				shared += n
			}
		}
	}

	total := 0
	for _, n := range ga {
		total += n
	}
	for _, n := range gb {
		total += n
	}
	return 2.0 * float64(shared) / float64(total)
}

func trigrams(s string) map[string]int {
	padded := "  " + s + " "
	grams := make(map[string]int)
	for i := 0; i+3 <= len(padded); i++ {
		grams[padded[i:i+3]]++
	}
	return grams
}
