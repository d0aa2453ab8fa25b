package engine

import "testing"

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      Thresholds
		wantErr bool
	}{
		{"defaults", DefaultThresholds(), false},
		{"equal tiers", Thresholds{RequireElevated: 0.5, Quarantine: 0.5, Lockdown: 0.5}, false},
		{"inverted quarantine", Thresholds{RequireElevated: 0.8, Quarantine: 0.5, Lockdown: 0.9}, true},
		{"inverted lockdown", Thresholds{RequireElevated: 0.3, Quarantine: 0.95, Lockdown: 0.9}, true},
		{"zero elevated", Thresholds{RequireElevated: 0, Quarantine: 0.5, Lockdown: 0.9}, true},
		{"lockdown above one", Thresholds{RequireElevated: 0.5, Quarantine: 0.7, Lockdown: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
