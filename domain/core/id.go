package core

import (
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// RunID identifies a single analysis run.
	RunID ID

	// MedicationKey is a canonicalized medication identifier (lowercase,
	// underscore-separated).
	MedicationKey string

	// MetricKey identifies a sleep metric column (e.g. "deepSleepMinutes").
	MetricKey string
)

func NewRunID() RunID { return RunID(NewID()) }

func (id RunID) String() string       { return ID(id).String() }
func (k MedicationKey) String() string { return string(k) }
func (k MetricKey) String() string     { return string(k) }

// CanonicalMedicationKey lowercases a medication name and collapses spaces
// and dashes to underscores, matching the key format of the half-life table.
func CanonicalMedicationKey(name string) MedicationKey {
	clean := strings.ToLower(strings.TrimSpace(name))
	clean = strings.ReplaceAll(clean, " ", "_")
	clean = strings.ReplaceAll(clean, "-", "_")
	return MedicationKey(clean)
}

// DisplayName converts a canonical key back to a human-readable name
// ("l_theanine" -> "L Theanine").
func (k MedicationKey) DisplayName() string {
	parts := strings.Split(string(k), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
