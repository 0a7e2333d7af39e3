package config

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "100ms", want: 100 * time.Millisecond},
		{in: "1h30m", want: 90 * time.Minute},
		{in: "2d", want: 48 * time.Hour},
		{in: "1d2h", want: 26 * time.Hour},
		{in: " 5m ", want: 5 * time.Minute},
		{in: "banana", wantErr: true},
		{in: "1d banana", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDurationOr(t *testing.T) {
	got, err := DurationOr("", time.Second)
	if err != nil || got != time.Second {
		t.Fatalf("DurationOr(\"\") = %v, %v", got, err)
	}
	got, err = DurationOr("3s", time.Second)
	if err != nil || got != 3*time.Second {
		t.Fatalf("DurationOr(\"3s\") = %v, %v", got, err)
	}
}

func TestLoadLocation(t *testing.T) {
	for _, name := range []string{"", "UTC", "Z"} {
		loc, err := LoadLocation(name)
		if err != nil || loc != time.UTC {
			t.Errorf("LoadLocation(%q) = %v, %v", name, loc, err)
		}
	}
	if _, err := LoadLocation("Mars/Olympus_Mons"); err == nil {
		t.Error("expected error for unknown zone")
	}
}
