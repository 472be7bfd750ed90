package pharma

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sleepanalysis/domain/core"
)

func TestNormalize_ExactMatch(t *testing.T) {
	assert.Equal(t, core.MedicationKey("melatonin"), Normalize("Melatonin"))
	assert.Equal(t, core.MedicationKey("l_theanine"), Normalize("L-Theanine"))
}

func TestNormalize_VariantMatch(t *testing.T) {
	cases := map[string]string{
		"Ambien":   "zolpidem",
		"Benadryl": "diphenhydramine",
		"Adderall": "amphetamine",
		"Seroquel": "quetiapine",
		"fish oil": "omega_3",
	}
	for input, want := range cases {
		assert.Equal(t, want, string(Normalize(input)), "Normalize(%q)", input)
	}
}

func TestNormalize_SubstringMatch(t *testing.T) {
	assert.Equal(t, core.MedicationKey("magnesium"), Normalize("Magnesium Complex 400mg"))
}

func TestNormalize_FuzzyMatch(t *testing.T) {
	// Common misspelling should still resolve to the canonical key.
	assert.Equal(t, core.MedicationKey("melatonin"), Normalize("melatonen"))
}

func TestNormalize_UnknownFallsThrough(t *testing.T) {
	got := Normalize("Completely Unrecognized Compound XQ-11")
	assert.Equal(t, core.MedicationKey("completely_unrecognized_compound_xq_11"), got,
		"unknown name should normalize to cleaned input")
	assert.False(t, Known(got), "fallback key should not be in the half-life table")
}

func TestHalfLifeHours(t *testing.T) {
	assert.Equal(t, 0.7, HalfLifeHours("melatonin"))
	// Brand name resolves through the alias chain.
	assert.Equal(t, 2.5, HalfLifeHours("Ambien"))
	assert.Equal(t, DefaultHalfLifeHours, HalfLifeHours("novel-compound"))
}

func TestNormalize_Deterministic(t *testing.T) {
	first := Normalize("magnesium glycinate")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Normalize("magnesium glycinate"))
	}
}
