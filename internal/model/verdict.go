package model

import "time"

// RatingBand is one of four ordered fit-quality classifications derived
// from a numeric score.
type RatingBand string

// Rating bands, worst to best.
const (
	RatingRejected  RatingBand = "rejected"
	RatingPoor      RatingBand = "poor"
	RatingGood      RatingBand = "good"
	RatingExcellent RatingBand = "excellent"
)

// KnownRatingBand reports whether s names one of the four recognized bands.
func KnownRatingBand(s string) bool {
	switch RatingBand(s) {
	case RatingRejected, RatingPoor, RatingGood, RatingExcellent:
		return true
	}
	return false
}

// BandThresholds holds the configurable score floors for each band. Bands
// are half-open upward: a score exactly at a floor belongs to that band.
type BandThresholds struct {
	ExcellentFloor int
	GoodFloor      int
	PoorFloor      int
}

// DefaultBandThresholds returns the standard cut points. Operators tune
// these through configuration; pipeline logic never hardcodes them.
func DefaultBandThresholds() BandThresholds {
	return BandThresholds{
		ExcellentFloor: 80,
		GoodFloor:      60,
		PoorFloor:      40,
	}
}

// RatingForScore classifies a score into its band under these thresholds.
func (t BandThresholds) RatingForScore(score int) RatingBand {
	switch {
	case score >= t.ExcellentFloor:
		return RatingExcellent
	case score >= t.GoodFloor:
		return RatingGood
	case score >= t.PoorFloor:
		return RatingPoor
	default:
		return RatingRejected
	}
}

// AnalysisTypeAI marks verdicts produced by the AI scoring collaborator.
const AnalysisTypeAI = "ai"

// FitVerdict is the normalized result of scoring a listing against the
// business profile. Exactly one current verdict exists per
// (listing, analysis type); re-analysis overwrites, never appends.
type FitVerdict struct {
	AnalyzedAt      time.Time
	ListingID       string
	AnalysisType    string
	Rating          RatingBand
	Reasoning       string
	Recommendation  string
	InstitutionType string
	ProjectType     string
	BudgetEstimate  string
	KeyRequirements []string
	Technologies    []string
	RedFlags        []string
	Opportunities   []string
	Score           int
	Confidence      int
}
