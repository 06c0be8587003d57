package prompt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetResponseSchema_MatchesAnalysisShape(t *testing.T) {
	b, err := json.Marshal(GetResponseSchema())
	require.NoError(t, err)

	var got struct {
		Type       string `json:"type"`
		Properties map[string]struct {
			Type string   `json:"type"`
			Enum []string `json:"enum"`
		} `json:"properties"`
		Required             []string `json:"required"`
		AdditionalProperties bool     `json:"additionalProperties"`
	}
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, "object", got.Type)
	assert.ElementsMatch(t, []string{"species", "edibility", "description", "confidence"}, got.Required)
	assert.Len(t, got.Properties, 4)
	assert.Equal(t, "string", got.Properties["species"].Type)
	assert.Equal(t, "string", got.Properties["description"].Type)
	assert.Equal(t, "number", got.Properties["confidence"].Type)
	assert.Equal(t, []string{"Edible", "Poisonous", "Inedible", "Unknown"}, got.Properties["edibility"].Enum)
	assert.False(t, got.AdditionalProperties)
}

func TestPrompts(t *testing.T) {
	sys := GetSystemPrompt()
	assert.Contains(t, sys, "expert mycologist")
	assert.Contains(t, sys, "not 100% accurate")
	assert.Contains(t, sys, "must begin with that warning")

	user := GetUserPrompt()
	assert.Contains(t, user, "scientific name")
	assert.Contains(t, user, "confidence score from 0 to 1")
}
