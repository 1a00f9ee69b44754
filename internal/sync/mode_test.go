package sync

import (
	"testing"
)

func TestMode_IsValid(t *testing.T) {
	tests := []struct {
		mode  Mode
		valid bool
	}{
		{ModePending, true},
		{ModeAll, true},
		{Mode("invalid"), false},
		{Mode(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.IsValid(); got != tt.valid {
				t.Errorf("Mode(%q).IsValid() = %v, want %v", tt.mode, got, tt.valid)
			}
		})
	}
}

func TestAllModes(t *testing.T) {
	modes := AllModes()
	if len(modes) != 2 {
		t.Errorf("Expected 2 modes, got %d", len(modes))
	}
	for _, m := range modes {
		if !m.IsValid() {
			t.Errorf("AllModes() returned invalid mode: %s", m)
		}
		if m.Description() == "Unknown mode" {
			t.Errorf("mode %s has no description", m)
		}
	}
}
