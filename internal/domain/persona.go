package domain

import (
	"errors"
	"fmt"
)

// Validation errors for persona records.
var (
	ErrMissingAgentID = errors.New("agent descriptor missing agent_id")
	ErrTraitRange     = errors.New("trait value out of range")
)

// AgentDescriptor represents one synthetic shopper persona.
// Corresponds to the personas table in PostgreSQL. Loaded once at
// startup and treated as read-only for the rest of the run.
type AgentDescriptor struct {
	AgentID           string    `json:"agent_id"`
	PriceSensitivity  float64   `json:"price_sensitivity"`  // [0,1], 1 = only buys cheap items
	ShoppingFrequency float64   `json:"shopping_frequency"` // [0,1], base per-cycle shop probability
	HourAffinity      []float64 `json:"hour_affinity"`      // 24 multipliers, index = simulated hour
	DayAffinity       []float64 `json:"day_affinity"`       // 7 multipliers, index = time.Weekday
	BudgetCents       int64     `json:"budget_cents"`       // per-checkout spend ceiling
}

// Validate checks the descriptor once at load time.
func (d *AgentDescriptor) Validate() error {
	if d.AgentID == "" {
		return ErrMissingAgentID
	}
	if d.PriceSensitivity < 0 || d.PriceSensitivity > 1 {
		return fmt.Errorf("%w: agent %s price_sensitivity=%f", ErrTraitRange, d.AgentID, d.PriceSensitivity)
	}
	if d.ShoppingFrequency < 0 || d.ShoppingFrequency > 1 {
		return fmt.Errorf("%w: agent %s shopping_frequency=%f", ErrTraitRange, d.AgentID, d.ShoppingFrequency)
	}
	if len(d.HourAffinity) != 24 {
		return fmt.Errorf("%w: agent %s hour_affinity has %d entries, want 24", ErrTraitRange, d.AgentID, len(d.HourAffinity))
	}
	if len(d.DayAffinity) != 7 {
		return fmt.Errorf("%w: agent %s day_affinity has %d entries, want 7", ErrTraitRange, d.AgentID, len(d.DayAffinity))
	}
	for i, v := range d.HourAffinity {
		if v < 0 {
			return fmt.Errorf("%w: agent %s hour_affinity[%d]=%f", ErrTraitRange, d.AgentID, i, v)
		}
	}
	for i, v := range d.DayAffinity {
		if v < 0 {
			return fmt.Errorf("%w: agent %s day_affinity[%d]=%f", ErrTraitRange, d.AgentID, i, v)
		}
	}
	if d.BudgetCents < 0 {
		return fmt.Errorf("%w: agent %s budget_cents=%d", ErrTraitRange, d.AgentID, d.BudgetCents)
	}
	return nil
}
