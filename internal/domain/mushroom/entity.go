package mushroom

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

// Analysis is one identification produced by the model. It is handed around
// by value and never modified after validation.
type Analysis struct {
	Species     string    `json:"species"`
	Edibility   Edibility `json:"edibility"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
}

// Validate checks the field constraints and names the first violation.
func (a Analysis) Validate() error {
	const op = "mushroom.Analysis.Validate"
	if strings.TrimSpace(a.Species) == "" {
		return ValidationFailure(op, "species is empty")
	}
	if !a.Edibility.Valid() {
		return ValidationFailure(op, fmt.Sprintf("edibility %s is not allowed", a.Edibility))
	}
	if strings.TrimSpace(a.Description) == "" {
		return ValidationFailure(op, "description is empty")
	}
	if math.IsNaN(a.Confidence) || a.Confidence < 0 || a.Confidence > 1 {
		return ValidationFailure(op, fmt.Sprintf("confidence %v outside [0, 1]", a.Confidence))
	}
	return nil
}

// ImagePayload is an uploaded image ready for transport.
type ImagePayload struct {
	Data      string // standard base64
	MediaType string
}

// DataURL renders the payload as an RFC 2397 data URL.
func (p ImagePayload) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MediaType, p.Data)
}

// Size returns the decoded byte length.
func (p ImagePayload) Size() int {
	return base64.StdEncoding.DecodedLen(len(p.Data)) - strings.Count(p.Data[max(0, len(p.Data)-2):], "=")
}

// Disclaimer accompanies every identification shown to a user.
const Disclaimer = "For educational use only. Never consume a wild mushroom based on this or any other app's identification. AI is not infallible and misidentification can be fatal. Always consult with a human expert before eating any wild fungi."
