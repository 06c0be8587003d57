package prompt

import (
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/bryanwahyu/mushroom-id/internal/domain/mushroom"
)

// SchemaName is the name the structured output schema is registered under.
const SchemaName = "mushroom_analysis"

// GetSystemPrompt sets the mycologist persona and the mandatory safety warning.
func GetSystemPrompt() string {
	return `You are an expert mycologist. Analyze mushroom images with extreme caution. Your primary goal is safety and education.

Requirements:
- For any identification, you MUST include a strong disclaimer that AI identification is not 100% accurate and that no one should ever eat a wild mushroom based on an app's identification.
- The description field must begin with that warning, before any other text.
- If the image does not show a mushroom or cannot be identified, say so in the description, use "Unknown" for edibility and a low confidence.
- Structure your response strictly according to the provided JSON schema. Output one JSON object only, with no markdown and no commentary.`
}

// GetUserPrompt is the instruction that accompanies the image.
func GetUserPrompt() string {
	return "Identify the mushroom in this image. Provide its common and scientific name, its edibility status, a confidence score from 0 to 1, and a short description."
}

// GetResponseSchema describes the exact shape of mushroom.Analysis.
func GetResponseSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"species": {
				Type:        jsonschema.String,
				Description: "The common and scientific name of the mushroom.",
			},
			"edibility": {
				Type:        jsonschema.String,
				Enum:        mushroom.EdibilityValues(),
				Description: "The edibility status of the mushroom.",
			},
			"description": {
				Type:        jsonschema.String,
				Description: "A brief description of the mushroom, its characteristics, habitat, and look-alikes. Crucially, start this description with a warning about the dangers of misidentification.",
			},
			"confidence": {
				Type:        jsonschema.Number,
				Description: "A confidence score for the identification, from 0.0 to 1.0.",
			},
		},
		Required:             []string{"species", "edibility", "description", "confidence"},
		AdditionalProperties: false,
	}
}
