package errors

import (
	"sort"
	"sync"
	"time"
)

// ErrorTracker tracks error counts per category for the recovery summary.
type ErrorTracker struct {
	mu             sync.RWMutex
	errorCounts    map[ErrorCategory]uint64
	lastOccurrence map[ErrorCategory]time.Time
	lastError      map[ErrorCategory]error
	criticalAlerts []CriticalAlert
	onRecord       func(ErrorCategory)
}

// CriticalAlert represents a critical error that requires attention.
type CriticalAlert struct {
	Category    ErrorCategory
	Error       error
	OccurredAt  time.Time
	Description string
}

func NewErrorTracker() *ErrorTracker {
	return &ErrorTracker{
		errorCounts:    make(map[ErrorCategory]uint64),
		lastOccurrence: make(map[ErrorCategory]time.Time),
		lastError:      make(map[ErrorCategory]error),
		criticalAlerts: make([]CriticalAlert, 0),
	}
}

// OnRecord registers a hook called after every recorded error (metrics export).
func (et *ErrorTracker) OnRecord(fn func(ErrorCategory)) {
	et.mu.Lock()
	defer et.mu.Unlock()
	et.onRecord = fn
}

// RecordError records an error occurrence.
func (et *ErrorTracker) RecordError(err error, category ErrorCategory) {
	et.mu.Lock()

	now := time.Now()
	et.errorCounts[category]++
	et.lastOccurrence[category] = now
	et.lastError[category] = err

	if category == ErrorCritical {
		et.criticalAlerts = append(et.criticalAlerts, CriticalAlert{
			Category:    category,
			Error:       err,
			OccurredAt:  now,
			Description: err.Error(),
		})

		// Keep only last 100 alerts
		if len(et.criticalAlerts) > 100 {
			et.criticalAlerts = et.criticalAlerts[len(et.criticalAlerts)-100:]
		}
	}
	hook := et.onRecord
	et.mu.Unlock()

	if hook != nil {
		hook(category)
	}
}

func (et *ErrorTracker) GetErrorCount(category ErrorCategory) uint64 {
	et.mu.RLock()
	defer et.mu.RUnlock()
	return et.errorCounts[category]
}

func (et *ErrorTracker) GetLastOccurrence(category ErrorCategory) time.Time {
	et.mu.RLock()
	defer et.mu.RUnlock()
	return et.lastOccurrence[category]
}

// GetLastError returns the most recent error recorded for a category, or nil.
func (et *ErrorTracker) GetLastError(category ErrorCategory) error {
	et.mu.RLock()
	defer et.mu.RUnlock()
	return et.lastError[category]
}

// Counts returns a copy of all non-zero counts.
func (et *ErrorTracker) Counts() map[ErrorCategory]uint64 {
	et.mu.RLock()
	defer et.mu.RUnlock()

	out := make(map[ErrorCategory]uint64, len(et.errorCounts))
	for k, v := range et.errorCounts {
		out[k] = v
	}
	return out
}

// Categories returns the categories seen so far in a stable order.
func (et *ErrorTracker) Categories() []ErrorCategory {
	et.mu.RLock()
	defer et.mu.RUnlock()

	cats := make([]ErrorCategory, 0, len(et.errorCounts))
	for k := range et.errorCounts {
		cats = append(cats, k)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

func (et *ErrorTracker) GetCriticalAlerts() []CriticalAlert {
	et.mu.RLock()
	defer et.mu.RUnlock()

	alerts := make([]CriticalAlert, len(et.criticalAlerts))
	copy(alerts, et.criticalAlerts)
	return alerts
}

// Reset clears all error tracking data.
func (et *ErrorTracker) Reset() {
	et.mu.Lock()
	defer et.mu.Unlock()

	et.errorCounts = make(map[ErrorCategory]uint64)
	et.lastOccurrence = make(map[ErrorCategory]time.Time)
	et.lastError = make(map[ErrorCategory]error)
	et.criticalAlerts = make([]CriticalAlert, 0)
}
