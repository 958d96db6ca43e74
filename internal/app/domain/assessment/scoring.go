package assessment

import (
	"math"
	"math/bits"

	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
)

// Score weights. They sum to 100.
const (
	WeightWater        = 25
	WeightEnergy       = 25
	WeightChemical     = 20
	WeightOrganic      = 20
	WeightBiodiversity = 10

	MaxScore = 100

	// DefaultBiodiversityScore is used by automated assessments, which have no
	// biodiversity input.
	DefaultBiodiversityScore = 70
)

// Tier thresholds, evaluated highest first.
const (
	PlatinumThreshold = 90
	GoldThreshold     = 80
	SilverThreshold   = 70
	BronzeThreshold   = 60
)

// Validate checks every sub-score is within [0,100]. The first offending field
// is reported.
func (s Scores) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"water", s.Water},
		{"energy", s.Energy},
		{"chemical", s.Chemical},
		{"organic", s.Organic},
		{"biodiversity", s.Biodiversity},
	}
	for _, f := range fields {
		if f.value < 0 || f.value > MaxScore {
			return apperrors.InvalidScore(f.name, f.value)
		}
	}
	return nil
}

// OverallScore computes the weighted score with floor division. Callers must
// validate the sub-scores first.
func OverallScore(s Scores) int {
	total := s.Water*WeightWater +
		s.Energy*WeightEnergy +
		s.Chemical*WeightChemical +
		s.Organic*WeightOrganic +
		s.Biodiversity*WeightBiodiversity
	return total / 100
}

// ClassifyTier maps an overall score to its tier.
func ClassifyTier(score int) Tier {
	switch {
	case score >= PlatinumThreshold:
		return TierPlatinum
	case score >= GoldThreshold:
		return TierGold
	case score >= SilverThreshold:
		return TierSilver
	case score >= BronzeThreshold:
		return TierBronze
	default:
		return TierBasic
	}
}

// usageStep is one band of a per-hectare usage step function.
type usageStep struct {
	maxPerHectare uint64
	score         int
}

// FloorUsageScore is the score for usage above every band.
const FloorUsageScore = 25

var (
	waterSteps = []usageStep{
		{1000, 100},
		{2500, 75},
		{5000, 50},
	}
	energySteps = []usageStep{
		{500, 100},
		{1000, 75},
		{2000, 50},
	}
	chemicalSteps = []usageStep{
		{10, 100},
		{25, 75},
		{50, 50},
	}
)

func stepScore(total, hectares uint64, steps []usageStep) int {
	perHectare := total / hectares
	for _, step := range steps {
		if perHectare <= step.maxPerHectare {
			return step.score
		}
	}
	return FloorUsageScore
}

// DeriveScores turns raw farm metrics into sub-scores. A zero farm size is
// treated as one hectare. The organic score is not clamped: an organic count
// above the total count yields a score above 100 and is rejected on submission.
func DeriveScores(m FarmMetrics) Scores {
	hectares := m.FarmSize
	if hectares == 0 {
		hectares = 1
	}

	return Scores{
		Water:        stepScore(m.TotalWater, hectares, waterSteps),
		Energy:       stepScore(m.TotalEnergy, hectares, energySteps),
		Chemical:     stepScore(m.TotalChemical, hectares, chemicalSteps),
		Organic:      organicScore(m.OrganicCount, m.TotalCount),
		Biodiversity: DefaultBiodiversityScore,
	}
}

// organicScore is floor(organic*100/total) computed in 128 bits. Quotients
// beyond the int range saturate; they are far above MaxScore either way.
func organicScore(organic, total uint64) int {
	if total == 0 {
		return 0
	}
	hi, lo := bits.Mul64(organic, 100)
	if hi >= total {
		return math.MaxInt
	}
	q, _ := bits.Div64(hi, lo, total)
	if q > math.MaxInt {
		return math.MaxInt
	}
	return int(q)
}
