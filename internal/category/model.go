// Package category provides the fixed agent taxonomy and the
// confidence-weighted links between agents and categories.
package category

import "errors"

// GeneralName is the catch-all category for agents with no heuristic match.
const GeneralName = "general"

// Names is the closed taxonomy, seeded once at initialization. The set is
// fixed but all lookups go by name; nothing may depend on slice positions.
var Names = []string{
	GeneralName,
	"coding",
	"trading",
	"crypto",
	"research",
	"writing",
	"design",
	"automation",
	"community",
	"data",
	"marketing",
	"gaming",
	"music",
	"news",
	"education",
	"entertainment",
	"assistant",
}

// ErrUnknownCategory is returned when a name is not part of the taxonomy.
var ErrUnknownCategory = errors.New("unknown category")

// ErrInvalidConfidence is returned when a confidence value is outside [0, 1].
var ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")

// Category is one fixed taxonomy entry.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PostCount   int    `json:"post_count"`
}

// AgentCategory links an agent to a category with a confidence in [0, 1].
// At most one confidence exists per (agent, category) pair within a pass;
// each categorization pass fully replaces the prior link set.
type AgentCategory struct {
	AgentID    string  `json:"agent_id"`
	CategoryID string  `json:"category_id"`
	Confidence float64 `json:"confidence"`
}

// Validate checks the link's confidence bounds.
func (ac *AgentCategory) Validate() error {
	if ac.Confidence < 0.0 || ac.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	return nil
}

// Valid reports whether name belongs to the closed taxonomy.
func Valid(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}
