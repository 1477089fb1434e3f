package severity

import "testing"

func TestFromString(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"Critical", Critical},
		{"CRITICAL", Critical},
		{"crit", Critical},
		{"High", High},
		{"error", High},
		{"Medium", Medium},
		{"moderate", Medium},
		{"WARNING", Medium},
		{"Low", Low},
		{"note", Low},
		{"info", Low},
		{"  high  ", High},
		{"", Unknown},
		{"bogus", Unknown},
	}

	for _, tt := range tests {
		if got := FromString(tt.input); got != tt.want {
			t.Errorf("FromString(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestPriorityOrdering(t *testing.T) {
	levels := AllLevels()
	for i := 1; i < len(levels); i++ {
		if !levels[i-1].IsHigherThan(levels[i]) {
			t.Errorf("expected %v to be higher than %v", levels[i-1], levels[i])
		}
	}
}

func TestIsAtLeast(t *testing.T) {
	if !Critical.IsAtLeast(High) {
		t.Error("Critical should be at least High")
	}
	if !High.IsAtLeast(High) {
		t.Error("High should be at least High")
	}
	if Low.IsAtLeast(Medium) {
		t.Error("Low should not be at least Medium")
	}
}

func TestIsValid(t *testing.T) {
	for _, l := range AllLevels() {
		if !l.IsValid() {
			t.Errorf("%v should be valid", l)
		}
	}
	if Level("informational").IsValid() {
		t.Error("unexpected valid level")
	}
}
