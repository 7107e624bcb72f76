package session

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    float64 // seconds
		wantErr bool
	}{
		{"83.456", 83.456, false},
		{"45", 45, false},
		{"1:23.456", 83.456, false},
		{"0:59.999", 59.999, false},
		{"1:02:03.456", 3723.456, false},
		{" 1:23.456 ", 83.456, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1:2:3:4", 0, true},
		{"-5", 0, true},
		{"1:-2.0", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDuration(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDuration(%q): %v", tt.in, err)
			continue
		}
		if math.Abs(got.Seconds()-tt.want) > 1e-6 {
			t.Errorf("ParseDuration(%q) = %vs, want %vs", tt.in, got.Seconds(), tt.want)
		}
	}
}

func TestDurationUnmarshalJSON(t *testing.T) {
	var d Duration

	if err := json.Unmarshal([]byte(`83.456`), &d); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if math.Abs(d.Seconds()-83.456) > 1e-6 {
		t.Errorf("number form = %vs, want 83.456s", d.Seconds())
	}

	if err := json.Unmarshal([]byte(`"1:23.456"`), &d); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if math.Abs(d.Seconds()-83.456) > 1e-6 {
		t.Errorf("string form = %vs, want 83.456s", d.Seconds())
	}

	if err := json.Unmarshal([]byte(`"garbage"`), &d); err == nil {
		t.Error("expected error for malformed clock string")
	}
	if err := json.Unmarshal([]byte(`true`), &d); err == nil {
		t.Error("expected error for non-numeric value")
	}
}

func TestDurationMarshalJSON(t *testing.T) {
	d := Duration(90*time.Second + 500*time.Millisecond)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "90.5" {
		t.Errorf("marshal = %s, want 90.5", b)
	}
}

func TestSecondsPtr(t *testing.T) {
	if got := SecondsPtr(nil); got != nil {
		t.Errorf("SecondsPtr(nil) = %v, want nil", got)
	}
	d := Duration(2 * time.Second)
	got := SecondsPtr(&d)
	if got == nil || *got != 2 {
		t.Errorf("SecondsPtr(2s) = %v, want 2", got)
	}
}
