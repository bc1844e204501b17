package traffic

import (
	"sync"
	"time"
)

// Outcome classifies a finished query request for health computation.
type Outcome int

const (
	// Success is any answered request, including 4xx for bad dates.
	Success Outcome = iota
	// Error is a request that failed on the dataset (5xx).
	Error
	// Denied is a request rejected by the rate limiter (429).
	Denied
)

// retention bounds memory; health windows longer than this see truncated counts.
const retention = 5 * time.Minute

var defaultTracker Tracker

// RecordSuccess records an answered request.
func RecordSuccess() { defaultTracker.Record(Success) }

// RecordError records a request that failed on the dataset.
func RecordError() { defaultTracker.Record(Error) }

// RecordDenied records a rate-limit denial.
func RecordDenied() { defaultTracker.Record(Denied) }

// RequestCount returns all outcomes (success + error + denied) within the window.
func RequestCount(window time.Duration) int {
	c := defaultTracker.Counts(window)
	return c.Success + c.Error + c.Denied
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.Counts(window).Denied
}

// ErrorRate returns (errors, total) within the window; denials are excluded from total.
func ErrorRate(window time.Duration) (errors, total int) {
	c := defaultTracker.Counts(window)
	return c.Error, c.Error + c.Success
}

// Reset clears all recorded outcomes. For tests only.
func Reset() { defaultTracker.Reset() }

// Counts is a per-outcome tally.
type Counts struct {
	Success int
	Error   int
	Denied  int
}

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker keeps timestamped outcomes in arrival order.
type Tracker struct {
	mu     sync.Mutex
	events []event
	now    func() time.Time
}

// Record appends an outcome at the current time.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// Counts tallies outcomes recorded at or after now-window.
func (t *Tracker) Counts(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	t.pruneLocked(now)
	cutoff := now.Add(-window)
	var c Counts
	for _, e := range t.events {
		if e.at.Before(cutoff) {
			continue
		}
		switch e.outcome {
		case Success:
			c.Success++
		case Error:
			c.Error++
		case Denied:
			c.Denied++
		}
	}
	return c
}

// Reset drops every recorded outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// pruneLocked drops events older than retention. Events are appended in time
// order so the expired ones form a prefix.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for i < len(t.events) && t.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
