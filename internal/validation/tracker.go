package validation

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	dayKeyFormat  = "2006-01-02"
	retentionDays = 7
)

type changeEntry struct {
	at     time.Time
	amount decimal.Decimal // absolute value
}

// ChangeTracker keeps rolling per-customer totals of absolute balance
// change, bucketed by calendar day. Buckets older than seven days are
// evicted on every write.
type ChangeTracker struct {
	mu      sync.Mutex
	buckets map[string]map[string][]changeEntry // customer -> day key -> entries
	now     func() time.Time
}

// NewChangeTracker creates an empty tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{
		buckets: make(map[string]map[string][]changeEntry),
		now:     time.Now,
	}
}

// Record appends the absolute value of a balance change to the
// customer's rolling window.
func (t *ChangeTracker) Record(customerID string, amount decimal.Decimal) {
	now := t.now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	days, ok := t.buckets[customerID]
	if !ok {
		days = make(map[string][]changeEntry)
		t.buckets[customerID] = days
	}

	dayKey := now.Format(dayKeyFormat)
	days[dayKey] = append(days[dayKey], changeEntry{at: now, amount: amount.Abs()})

	t.evictStale(customerID, now)
}

// Totals returns the customer's absolute change totals over the trailing
// 24 hours and 7 days.
func (t *ChangeTracker) Totals(customerID string) (day, week decimal.Decimal) {
	now := t.now().UTC()
	dayCutoff := now.Add(-24 * time.Hour)
	weekCutoff := now.AddDate(0, 0, -retentionDays)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictStale(customerID, now)

	for _, entries := range t.buckets[customerID] {
		for _, entry := range entries {
			if entry.at.Before(weekCutoff) {
				continue
			}
			week = week.Add(entry.amount)
			if !entry.at.Before(dayCutoff) {
				day = day.Add(entry.amount)
			}
		}
	}
	return day, week
}

// evictStale drops whole day buckets older than the retention window.
// Caller must hold the lock.
func (t *ChangeTracker) evictStale(customerID string, now time.Time) {
	days, ok := t.buckets[customerID]
	if !ok {
		return
	}

	oldestKept := now.AddDate(0, 0, -retentionDays).Format(dayKeyFormat)
	for dayKey := range days {
		if dayKey < oldestKept {
			delete(days, dayKey)
		}
	}
	if len(days) == 0 {
		delete(t.buckets, customerID)
	}
}
