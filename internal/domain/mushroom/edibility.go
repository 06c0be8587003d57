package mushroom

import (
	"encoding/json"
	"fmt"
)

// Edibility is the closed set of edibility classifications a model may report.
// The zero value is not a valid classification.
type Edibility uint8

const (
	edibilityInvalid Edibility = iota
	EdibilityEdible
	EdibilityPoisonous
	EdibilityInedible
	EdibilityUnknown
)

var edibilityNames = map[Edibility]string{
	EdibilityEdible:    "Edible",
	EdibilityPoisonous: "Poisonous",
	EdibilityInedible:  "Inedible",
	EdibilityUnknown:   "Unknown",
}

// EdibilityValues lists the wire names in schema order.
func EdibilityValues() []string {
	return []string{"Edible", "Poisonous", "Inedible", "Unknown"}
}

// ParseEdibility maps a wire name to its Edibility. Matching is case-sensitive.
func ParseEdibility(s string) (Edibility, error) {
	for e, name := range edibilityNames {
		if name == s {
			return e, nil
		}
	}
	return edibilityInvalid, fmt.Errorf("unknown edibility %q", s)
}

func (e Edibility) Valid() bool {
	_, ok := edibilityNames[e]
	return ok
}

func (e Edibility) String() string {
	if name, ok := edibilityNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Edibility(%d)", uint8(e))
}

func (e Edibility) MarshalJSON() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid edibility %d", uint8(e))
	}
	return json.Marshal(e.String())
}

func (e *Edibility) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("edibility must be a string: %w", err)
	}
	v, err := ParseEdibility(s)
	if err != nil {
		return err
	}
	*e = v
	return nil
}
