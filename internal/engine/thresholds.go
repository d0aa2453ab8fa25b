package engine

import "fmt"

// Thresholds holds the policy ladder cut points. The ladder is only
// meaningful when RequireElevated <= Quarantine <= Lockdown; an
// inverted configuration would short-circuit at the wrong tier, so
// ordering is rejected at construction rather than at evaluation time.
type Thresholds struct {
	RequireElevated float64 `json:"require_elevated" yaml:"require_elevated"`
	Quarantine      float64 `json:"quarantine" yaml:"quarantine"`
	Lockdown        float64 `json:"lockdown" yaml:"lockdown"`
}

// DefaultThresholds returns the day-zero ladder.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RequireElevated: 0.5,
		Quarantine:      0.7,
		Lockdown:        0.9,
	}
}

// Validate rejects inverted or out-of-range ladders.
func (t Thresholds) Validate() error {
	if t.RequireElevated <= 0 || t.Lockdown > 1 {
		return fmt.Errorf("thresholds out of range (0, 1]: elevated=%g lockdown=%g", t.RequireElevated, t.Lockdown)
	}
	if t.RequireElevated > t.Quarantine || t.Quarantine > t.Lockdown {
		return fmt.Errorf("threshold ladder inverted: elevated=%g quarantine=%g lockdown=%g",
			t.RequireElevated, t.Quarantine, t.Lockdown)
	}
	return nil
}
