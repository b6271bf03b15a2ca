package models

import (
	"testing"
	"time"
)

func TestBracket(t *testing.T) {
	r := Bracket(3 * time.Second)
	if r.Time != 3*time.Second {
		t.Errorf("Time = %v, want 3s", r.Time)
	}
	if !r.IsBracket() {
		t.Error("Bracket row should report IsBracket")
	}
}

func TestIsBracket(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		want bool
	}{
		{"empty", Row{}, false},
		{"cpu only zero", Row{CPU: Uint64(0)}, false},
		{"non-zero memory", Row{CPU: Uint64(0), Memory: Uint64(1), DiskRead: Uint64(0), DiskWrite: Uint64(0)}, false},
		{"all zero", Bracket(0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.row.IsBracket(); got != tt.want {
				t.Errorf("IsBracket() = %v, want %v", got, tt.want)
			}
		})
	}
}
