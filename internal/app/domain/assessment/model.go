// Package assessment holds the sustainability assessment records, per-farm
// usage metrics and the scoring rules that turn sub-scores into a tier.
package assessment

import (
	"math"

	"github.com/R3E-Network/sustainability_layer/internal/app/auth"
	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
)

// ValidityPeriod is the number of block heights an assessment or certificate
// stays valid after creation: roughly one year at one block per ten minutes.
const ValidityPeriod uint64 = 52560

// ExpiryFrom returns the end of a validity window opened at now. Heights so
// close to the top of the range that the window would wrap are rejected.
func ExpiryFrom(now uint64) (uint64, error) {
	if now > math.MaxUint64-ValidityPeriod {
		return 0, apperrors.InvalidInput("now", "validity window exceeds the height range").
			WithDetails("height", now)
	}
	return now + ValidityPeriod, nil
}

// ID identifies an assessment. Ids start at 1 and are never reused.
type ID uint64

// Scores are the five sub-scores of an assessment, each in [0,100].
type Scores struct {
	Water        int `json:"water_score" db:"water_score"`
	Energy       int `json:"energy_score" db:"energy_score"`
	Chemical     int `json:"chemical_score" db:"chemical_score"`
	Organic      int `json:"organic_score" db:"organic_score"`
	Biodiversity int `json:"biodiversity_score" db:"biodiversity_score"`
}

// Assessment is an immutable scoring record for a farm.
type Assessment struct {
	ID        ID     `json:"id" db:"id"`
	FarmID    uint64 `json:"farm_id" db:"farm_id"`
	CreatedAt uint64 `json:"created_at" db:"created_at"`
	Scores
	OverallScore int            `json:"overall_score" db:"overall_score"`
	Tier         Tier           `json:"tier" db:"tier"`
	Assessor     auth.Principal `json:"assessor" db:"assessor"`
	ValidUntil   uint64         `json:"valid_until" db:"valid_until"`
}

// ValidAt reports whether the assessment is still within its validity window.
func (a Assessment) ValidAt(now uint64) bool {
	return now < a.ValidUntil
}

// FarmMetrics are the raw usage totals used for automated scoring. One record
// per farm; updates overwrite.
type FarmMetrics struct {
	FarmID        uint64 `json:"farm_id" db:"farm_id"`
	TotalWater    uint64 `json:"total_water" db:"total_water"`
	TotalEnergy   uint64 `json:"total_energy" db:"total_energy"`
	TotalChemical uint64 `json:"total_chemical" db:"total_chemical"`
	OrganicCount  uint64 `json:"organic_count" db:"organic_count"`
	TotalCount    uint64 `json:"total_count" db:"total_count"`
	FarmSize      uint64 `json:"farm_size" db:"farm_size"`
}
