package oplock

import (
	"fmt"
	"time"
)

// DefaultTolerance absorbs clock and serialization rounding between the read
// path that handed a stamp to the client and the write path comparing it.
// Tunable via config; one second matches the skew observed in practice.
const DefaultTolerance = time.Second

// Outcome is the result of the pre-write version-stamp comparison.
type Outcome int

const (
	// NoCheckRequested means the client did not supply a stamp; the write
	// proceeds unconditionally (clients unaware of locking keep working).
	NoCheckRequested Outcome = iota
	// OK means the client stamp matches the current stamp within tolerance.
	OK
	// Conflict means another writer updated the entity after the client
	// last read it. The write must not occur.
	Conflict
)

func (o Outcome) String() string {
	switch o {
	case NoCheckRequested:
		return "no-check-requested"
	case OK:
		return "ok"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}

// CheckStamp compares the entity's current version stamp against the stamp
// the client last read. Stamps within tolerance of each other are treated as
// equal. This pre-check exists to fail fast with a useful error; the
// authoritative check is the conditional UPDATE at the storage layer.
func CheckStamp(current time.Time, client *time.Time, tolerance time.Duration) Outcome {
	if client == nil {
		return NoCheckRequested
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	delta := current.Sub(*client)
	if delta < 0 {
		delta = -delta
	}
	if delta <= tolerance {
		return OK
	}
	return Conflict
}

// ConflictError reports a lost optimistic-lock race. It carries both stamps
// so the client can offer a "someone else edited this — reload?" flow.
type ConflictError struct {
	CurrentVersion   time.Time
	SubmittedVersion time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: record was modified at %s, client submitted %s",
		e.CurrentVersion.UTC().Format(time.RFC3339), e.SubmittedVersion.UTC().Format(time.RFC3339))
}
