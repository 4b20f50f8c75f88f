package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeDecimal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain integer", "103", "103.00000000"},
		{"plain fraction", "105654.78", "105654.78000000"},
		{"scientific lower", "5e-8", "0.00000005"},
		{"scientific upper", "5E-8", "0.00000005"},
		{"scientific positive exp", "1.2e3", "1200.00000000"},
		{"zero sentinel", "0E-8", "0.00000000"},
		{"negative", "-42.5", "-42.50000000"},
		{"surrounding whitespace", "  7.25 ", "7.25000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NormalizeDecimal(tt.in)
			if err != nil {
				t.Fatalf("NormalizeDecimal(%q) returned error: %v", tt.in, err)
			}
			if got := FormatDecimal(d); got != tt.want {
				t.Errorf("NormalizeDecimal(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeDecimal_Idempotent(t *testing.T) {
	d, err := NormalizeDecimal("5E-8")
	if err != nil {
		t.Fatal(err)
	}
	again, err := NormalizeDecimal(d.String())
	if err != nil {
		t.Fatalf("re-normalizing %q: %v", d.String(), err)
	}
	if !d.Equal(again) {
		t.Errorf("normalization not idempotent: %s vs %s", d, again)
	}
}

func TestNormalizeDecimal_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "--5"} {
		_, err := NormalizeDecimal(in)
		if err == nil {
			t.Errorf("NormalizeDecimal(%q): expected error, got nil", in)
			continue
		}
		if !errors.Is(err, ErrInvalidNumber) {
			t.Errorf("NormalizeDecimal(%q): error %v is not ErrInvalidNumber", in, err)
		}
	}
}

func TestFormatDecimal_NeverScientific(t *testing.T) {
	tiny := decimal.New(5, -8) // 5 * 10^-8
	if got := FormatDecimal(tiny); got != "0.00000005" {
		t.Errorf("FormatDecimal = %s, want 0.00000005", got)
	}
}
