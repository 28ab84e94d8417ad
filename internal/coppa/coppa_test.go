package coppa

import (
	"testing"
	"time"
)

var reference = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

func TestCalculateAge(t *testing.T) {
	tests := []struct {
		name string
		dob  time.Time
		want int
	}{
		{"birthday already passed this year", time.Date(2014, time.March, 1, 0, 0, 0, 0, time.UTC), 12},
		{"birthday later this year", time.Date(2014, time.December, 1, 0, 0, 0, 0, time.UTC), 11},
		{"birthday today", time.Date(2014, time.June, 15, 0, 0, 0, 0, time.UTC), 12},
		{"birthday tomorrow", time.Date(2014, time.June, 16, 0, 0, 0, 0, time.UTC), 11},
		{"adult", time.Date(1990, time.January, 2, 0, 0, 0, 0, time.UTC), 36},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateAge(tt.dob, reference); got != tt.want {
				t.Fatalf("CalculateAge(%v) = %d, want %d", tt.dob, got, tt.want)
			}
		})
	}
}

func TestIsMinor(t *testing.T) {
	twelve := reference.AddDate(-12, 0, 0)
	if !IsMinor(twelve, reference) {
		t.Fatal("12-year-old should be a minor under COPPA")
	}

	thirteen := reference.AddDate(-13, 0, 0)
	if IsMinor(thirteen, reference) {
		t.Fatal("13-year-old should not be a minor under COPPA")
	}
}

func TestIsValidDateOfBirth(t *testing.T) {
	tests := []struct {
		name string
		dob  time.Time
		want bool
	}{
		{"future date", reference.AddDate(0, 0, 1), false},
		{"too young", reference.AddDate(-2, 0, 0), false},
		{"minimum age", reference.AddDate(-3, 0, 0), true},
		{"typical adult", reference.AddDate(-40, 0, 0), true},
		{"over 120", reference.AddDate(-121, 0, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidDateOfBirth(tt.dob, reference); got != tt.want {
				t.Fatalf("IsValidDateOfBirth(%v) = %v, want %v", tt.dob, got, tt.want)
			}
		})
	}
}
