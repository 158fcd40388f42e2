package analyze

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ScoreResponse is the strict schema the scoring collaborator must return.
// Field names match the collaborator's JSON contract.
type ScoreResponse struct {
	FitRating       string   `json:"fitRating"`
	Reasoning       string   `json:"reasoning"`
	BudgetEstimate  string   `json:"budgetEstimate,omitempty"`
	InstitutionType string   `json:"institutionType"`
	ProjectType     string   `json:"projectType"`
	Recommendation  string   `json:"recommendation"`
	KeyRequirements []string `json:"keyRequirements"`
	Technologies    []string `json:"technologies"`
	RedFlags        []string `json:"redFlags"`
	Opportunities   []string `json:"opportunities"`
	FitScore        int      `json:"fitScore"`
	Confidence      int      `json:"confidence"`
}

// ParsedScore is the tagged result of validating a scorer response. The
// malformed branch is a designed outcome, not an exception path: callers
// switch on Malformed() and substitute the fallback verdict.
type ParsedScore struct {
	Response *ScoreResponse
	Raw      string
}

// Malformed reports whether the response failed validation.
func (p ParsedScore) Malformed() bool {
	return p.Response == nil
}

// ParseScoreResponse validates a raw collaborator response against the
// schema. Any deviation (absent JSON, unknown fields, out-of-range values)
// yields the malformed branch carrying the original text.
func ParseScoreResponse(raw string) ParsedScore {
	cleaned := extractJSONObject(raw)
	if cleaned == "" {
		return ParsedScore{Raw: raw}
	}

	var response ScoreResponse
	decoder := json.NewDecoder(strings.NewReader(cleaned))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&response); err != nil {
		return ParsedScore{Raw: raw}
	}

	if err := validateScoreResponse(&response); err != nil {
		return ParsedScore{Raw: raw}
	}

	return ParsedScore{Response: &response, Raw: raw}
}

func validateScoreResponse(response *ScoreResponse) error {
	if response.FitScore < 0 || response.FitScore > 100 {
		return fmt.Errorf("fitScore %d outside [0,100]", response.FitScore)
	}
	if response.Confidence < 0 || response.Confidence > 100 {
		return fmt.Errorf("confidence %d outside [0,100]", response.Confidence)
	}
	if strings.TrimSpace(response.Reasoning) == "" {
		return fmt.Errorf("missing reasoning")
	}
	return nil
}

// extractJSONObject trims any prose around the first top-level JSON object
// in the response.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
