package oplock

import (
	"strings"
	"testing"
	"time"
)

func TestCheckStamp_NoClientStamp(t *testing.T) {
	now := time.Now()
	if got := CheckStamp(now, nil, time.Second); got != NoCheckRequested {
		t.Errorf("expected NoCheckRequested, got %v", got)
	}
}

func TestCheckStamp_ExactMatch(t *testing.T) {
	now := time.Now()
	client := now
	if got := CheckStamp(now, &client, time.Second); got != OK {
		t.Errorf("expected OK, got %v", got)
	}
}

func TestCheckStamp_WithinTolerance(t *testing.T) {
	now := time.Now()
	client := now.Add(-999 * time.Millisecond)
	if got := CheckStamp(now, &client, time.Second); got != OK {
		t.Errorf("999ms skew should be accepted, got %v", got)
	}
}

func TestCheckStamp_ClientAhead(t *testing.T) {
	// Serialization rounding can put the client stamp slightly ahead of the
	// stored one; the window applies in both directions.
	now := time.Now()
	client := now.Add(500 * time.Millisecond)
	if got := CheckStamp(now, &client, time.Second); got != OK {
		t.Errorf("client stamp ahead within tolerance should be accepted, got %v", got)
	}
}

func TestCheckStamp_OutsideTolerance(t *testing.T) {
	now := time.Now()
	client := now.Add(-1001 * time.Millisecond)
	if got := CheckStamp(now, &client, time.Second); got != Conflict {
		t.Errorf("1001ms skew should conflict, got %v", got)
	}
}

func TestCheckStamp_StaleByMinutes(t *testing.T) {
	now := time.Now()
	client := now.Add(-5 * time.Minute)
	if got := CheckStamp(now, &client, time.Second); got != Conflict {
		t.Errorf("expected Conflict, got %v", got)
	}
}

func TestCheckStamp_ZeroToleranceUsesDefault(t *testing.T) {
	now := time.Now()
	client := now.Add(-500 * time.Millisecond)
	if got := CheckStamp(now, &client, 0); got != OK {
		t.Errorf("expected default tolerance to accept 500ms skew, got %v", got)
	}
}

func TestConflictError_CarriesBothStamps(t *testing.T) {
	current := time.Date(2023, 5, 1, 12, 0, 5, 0, time.UTC)
	submitted := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	err := &ConflictError{CurrentVersion: current, SubmittedVersion: submitted}

	msg := err.Error()
	if !strings.Contains(msg, "2023-05-01T12:00:05Z") {
		t.Errorf("expected current stamp in message, got %q", msg)
	}
	if !strings.Contains(msg, "2023-05-01T12:00:00Z") {
		t.Errorf("expected submitted stamp in message, got %q", msg)
	}
}

func TestOutcome_String(t *testing.T) {
	cases := map[Outcome]string{
		NoCheckRequested: "no-check-requested",
		OK:               "ok",
		Conflict:         "conflict",
	}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
