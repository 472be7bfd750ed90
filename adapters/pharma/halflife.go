// Package pharma holds the static medication reference data consumed by the
// feature layer: elimination half-lives and the name normalization chain that
// maps free-text medication names onto canonical keys.
package pharma

import (
	"sleepanalysis/domain/core"
)

// DefaultHalfLifeHours is used for medications absent from the table.
const DefaultHalfLifeHours = 4.0

// halfLives maps canonical medication keys to elimination half-life in hours.
// Ranges from clinical references are collapsed to their midpoint.
var halfLives = map[core.MedicationKey]float64{
	// Supplements & nootropics
	"acetyl_l_carnitine": 32.5, // 29-36h
	"agmatine":           2.0,
	"apigenin":           12.0,
	"astaxanthin":        16.0,
	"lycopene":           120.0, // ~5 days
	"caffeine":           5.0,   // 3-7h
	"citicoline":         60.0,  // 50-70h
	"coenzyme_q10":       33.0,
	"glycine":            2.0, // 0.5-4h
	"huperzine_a":        12.0,
	"inositol":           5.0,
	"kava":               9.0,
	"l_theanine":         1.5,
	"magnesium":          24.0, // functional daily turnover
	"melatonin":          0.7,  // 20-60 min
	"mucuna_pruriens":    2.0,  // levodopa ~1.5h
	"nac":                5.6,
	"omega_3":            79.0, // EPA
	"phenibut":           5.0,
	"sulbutiamine":       5.0,
	"taurine":            1.0,
	"uridine":            2.0,
	"vitamin_a":          24.0,
	"vitamin_c":          12.0,
	"vitamin_d3":         360.0, // 15 days
	"zinc":               24.0,
	"copper":             24.0,

	// Prescription / OTC
	"amphetamine":       12.0,
	"bupropion":         21.0,
	"clindamycin":       2.5,
	"clonidine":         14.0,
	"daridorexant":      8.0,
	"dexmethylphenidate": 3.0,
	"diphenhydramine":   6.5,
	"doxylamine":        11.0,
	"esomeprazole":      1.3,
	"eszopiclone":       6.0,
	"finasteride":       5.5,
	"fluvoxamine":       18.0,
	"gabapentin":        6.0,
	"lamotrigine":       29.0,
	"lemborexant":       18.0,
	"lisdexamfetamine":  1.0, // prodrug
	"methylphenidate":   2.5,
	"mirtazapine":       30.0,
	"naproxen":          14.5,
	"ondansetron":       4.5,
	"paroxetine":        21.0,
	"pregabalin":        6.0,
	"propranolol":       4.5,
	"quetiapine":        6.0,
	"temazepam":         14.0,
	"tizanidine":        2.5,
	"trazodone":         7.0,
	"triazolam":         3.0,
	"zaleplon":          1.0,
	"zolpidem":          2.5,

	// Cannabis
	"thc": 30.0,
	"cbd": 24.0,
}

// variants maps brand and variant names to canonical keys.
var variants = map[core.MedicationKey]core.MedicationKey{
	// ADHD / stimulants
	"adderall": "amphetamine",
	"vyvanse":  "amphetamine", // active metabolite
	"focalin":  "dexmethylphenidate",
	"concerta": "methylphenidate",
	"ritalin":  "methylphenidate",

	// Sleep / sedatives
	"quviviq":  "daridorexant",
	"ambien":   "zolpidem",
	"lunesta":  "eszopiclone",
	"dayvigo":  "lemborexant",
	"sonata":   "zaleplon",
	"restoril": "temazepam",
	"halcion":  "triazolam",
	"unisom":   "doxylamine",
	"benadryl": "diphenhydramine",
	"zzzquil":  "diphenhydramine",

	// Antidepressants / anxiolytics
	"luvox":      "fluvoxamine",
	"remeron":    "mirtazapine",
	"paxil":      "paroxetine",
	"wellbutrin": "bupropion",
	"neurontin":  "gabapentin",
	"lyrica":     "pregabalin",
	"lamictal":   "lamotrigine",
	"seroquel":   "quetiapine",
	"desyrel":    "trazodone",

	// Supplements
	"coq10":               "coenzyme_q10",
	"magnesium_glycinate": "magnesium",
	"magnesium_threonate": "magnesium",
	"mag_glycinate":       "magnesium",
	"theanine":            "l_theanine",
	"fish_oil":            "omega_3",
	"epa":                 "omega_3",
	"dha":                 "omega_3",
}

// HalfLifeHours returns the elimination half-life for a medication name,
// resolving it through the normalization chain first. Unknown medications
// fall back to DefaultHalfLifeHours.
func HalfLifeHours(name string) float64 {
	key := Normalize(name)
	if hl, ok := halfLives[key]; ok {
		return hl
	}
	return DefaultHalfLifeHours
}

// Known reports whether a canonical key has a half-life entry.
func Known(key core.MedicationKey) bool {
	_, ok := halfLives[key]
	return ok
}
