package config

import (
	"testing"
	"time"
)

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input any
		want  time.Duration
	}{
		{"250ms", 250 * time.Millisecond},
		{"2s", 2 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{2, 2 * time.Second},
		{0.5, 500 * time.Millisecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestAsIntListCoercesScalar(t *testing.T) {
	got, err := asIntList(3)
	if err != nil {
		t.Fatalf("asIntList(3) error = %v", err)
	}
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("asIntList(3) = %v, want [3]", got)
	}
}

func TestAsIntListFromSlice(t *testing.T) {
	got, err := asIntList([]any{2, "3", 4.0})
	if err != nil {
		t.Fatalf("asIntList error = %v", err)
	}
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("asIntList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("asIntList[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestAsDurationListCoercesScalar(t *testing.T) {
	got, err := asDurationList("100ms")
	if err != nil {
		t.Fatalf("asDurationList error = %v", err)
	}
	if len(got) != 1 || got[0] != 100*time.Millisecond {
		t.Fatalf("asDurationList = %v, want [100ms]", got)
	}
}

func TestAsStringListCoercesScalar(t *testing.T) {
	got, err := asStringList("login")
	if err != nil {
		t.Fatalf("asStringList error = %v", err)
	}
	if len(got) != 1 || got[0] != "login" {
		t.Fatalf("asStringList = %v, want [login]", got)
	}
}

func TestLookupSettingCaseInsensitive(t *testing.T) {
	settings := map[string]any{"run_time": "10s"}
	if _, ok := lookupSetting(settings, "Run_Time", "runtime"); !ok {
		t.Fatal("expected lookup to find run_time via lowercase fallback")
	}
}
