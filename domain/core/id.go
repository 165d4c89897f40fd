package core

import (
	"fmt"
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
	// CityID is the ADM3 municipality code used as the panel's city key.
	CityID string
	// RunID identifies one attribution run.
	RunID ID
	// ScenarioKey identifies a future population scenario, e.g. "SSP2-2050".
	ScenarioKey string
)

func (id CityID) String() string     { return string(id) }
func (id RunID) String() string      { return ID(id).String() }
func (k ScenarioKey) String() string { return string(k) }

// NewScenarioKey builds the canonical scenario key from an SSP name and year.
func NewScenarioKey(ssp string, year int) ScenarioKey {
	return ScenarioKey(fmt.Sprintf("%s-%d", strings.ToUpper(ssp), year))
}

// ParseCityID parses a string into a CityID
func ParseCityID(s string) (CityID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("city ID cannot be empty")
	}
	return CityID(strings.TrimSpace(s)), nil
}

// ParseRunID parses a string into a RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// YearWeek is the composite time key of the panel, e.g. "2017-34".
type YearWeek string

// NewYearWeek builds the canonical year-week key.
func NewYearWeek(year, week int) YearWeek {
	return YearWeek(fmt.Sprintf("%d-%02d", year, week))
}

func (yw YearWeek) String() string { return string(yw) }
