package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validResponse = `{
	"fitScore": 85,
	"fitRating": "excellent",
	"reasoning": "Strong match for our web development profile.",
	"keyRequirements": ["responsive design", "CMS migration"],
	"budgetEstimate": "$150,000",
	"technologies": ["drupal", "react"],
	"institutionType": "university",
	"projectType": "website redesign",
	"redFlags": [],
	"opportunities": ["long-term maintenance contract"],
	"recommendation": "Pursue.",
	"confidence": 90
}`

func TestParseScoreResponse_Valid(t *testing.T) {
	parsed := ParseScoreResponse(validResponse)

	require.False(t, parsed.Malformed())
	assert.Equal(t, 85, parsed.Response.FitScore)
	assert.Equal(t, "excellent", parsed.Response.FitRating)
	assert.Equal(t, 90, parsed.Response.Confidence)
	assert.Equal(t, []string{"drupal", "react"}, parsed.Response.Technologies)
}

func TestParseScoreResponse_FencedJSON(t *testing.T) {
	parsed := ParseScoreResponse("```json\n" + validResponse + "\n```")
	require.False(t, parsed.Malformed())
	assert.Equal(t, 85, parsed.Response.FitScore)
}

func TestParseScoreResponse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty response", raw: ""},
		{name: "prose without JSON", raw: "I am unable to score this listing."},
		{name: "truncated JSON", raw: `{"fitScore": 85, "fitRating": "excel`},
		{name: "unknown field", raw: `{"fitScore": 85, "fitRating": "good", "reasoning": "ok", "surprise": true}`},
		{name: "score above range", raw: `{"fitScore": 120, "fitRating": "excellent", "reasoning": "ok"}`},
		{name: "negative score", raw: `{"fitScore": -5, "fitRating": "rejected", "reasoning": "ok"}`},
		{name: "confidence above range", raw: `{"fitScore": 85, "fitRating": "excellent", "reasoning": "ok", "confidence": 300}`},
		{name: "missing reasoning", raw: `{"fitScore": 85, "fitRating": "excellent", "reasoning": "  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := ParseScoreResponse(tt.raw)
			assert.True(t, parsed.Malformed())
			assert.Equal(t, tt.raw, parsed.Raw)
		})
	}
}
