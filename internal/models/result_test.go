package models

import "testing"

func TestStatusPriority_Ordering(t *testing.T) {
	order := []Status{StatusSkip, StatusPass, StatusWarn, StatusFail, StatusUndef}
	for i := 1; i < len(order); i++ {
		if order[i-1].Priority() >= order[i].Priority() {
			t.Errorf("%s priority %d should be below %s priority %d",
				order[i-1], order[i-1].Priority(), order[i], order[i].Priority())
		}
	}
}

func TestCombineStatus(t *testing.T) {
	tests := []struct {
		current, next, want Status
	}{
		{StatusSkip, StatusPass, StatusPass},
		{StatusPass, StatusSkip, StatusPass},
		{StatusPass, StatusWarn, StatusWarn},
		{StatusWarn, StatusPass, StatusWarn},
		{StatusFail, StatusWarn, StatusFail},
		{StatusFail, StatusUndef, StatusUndef},
		{StatusSkip, StatusSkip, StatusSkip},
	}
	for _, tt := range tests {
		if got := CombineStatus(tt.current, tt.next); got != tt.want {
			t.Errorf("CombineStatus(%s, %s) = %s, want %s", tt.current, tt.next, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus(" warn "); !ok || s != StatusWarn {
		t.Errorf("ParseStatus(warn) = %q, %v", s, ok)
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Error("ParseStatus should reject unknown statuses")
	}
}

func TestSeverityWeight(t *testing.T) {
	tests := []struct {
		sev  Severity
		want float64
	}{
		{SeverityLow, 1},
		{SeverityMedium, 2},
		{SeverityHigh, 3},
		{Severity("unknown"), 1},
	}
	for _, tt := range tests {
		if got := tt.sev.Weight(); got != tt.want {
			t.Errorf("Weight(%s) = %v, want %v", tt.sev, got, tt.want)
		}
	}
}
