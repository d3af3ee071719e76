package model

import (
	"testing"
)

func TestToCents(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		want  int64
	}{
		{"whole number", 99, 9900},
		{"with cents", 123.45, 12345},
		{"zero", 0, 0},
		{"small value", 0.01, 1},
		{"rounds to nearest", 0.129, 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToCents(tt.input); got != tt.want {
				t.Errorf("ToCents(%v) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		currency string
		cents    int64
		want     string
	}{
		{"Rs. ", 120050, "Rs. 1200.50"},
		{"Rs. ", 10000, "Rs. 100.00"},
		{"", 5, "0.05"},
		{"$", -250, "$-2.50"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatCents(tt.currency, tt.cents); got != tt.want {
				t.Errorf("FormatCents(%q, %d) = %q, want %q", tt.currency, tt.cents, got, tt.want)
			}
		})
	}
}
