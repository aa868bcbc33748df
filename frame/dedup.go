package frame

import (
	"sync"
	"time"
)

const (
	dedupWindowSize = 1000
	dedupWindowTTL  = 5 * time.Minute
)

// dedupEntry tracks a seen event sequence number.
type dedupEntry struct {
	sn   int64
	seen time.Time
}

// DedupWindow is a sliding window of event sequence numbers for one
// endpoint. It outlives a connection so that events replayed after a
// resumed identify are recognized. It remembers up to dedupWindowSize
// numbers or dedupWindowTTL, whichever is reached first.
type DedupWindow struct {
	mu      sync.Mutex
	entries []dedupEntry
	now     func() time.Time
}

// NewDedupWindow creates a new dedup window.
func NewDedupWindow() *DedupWindow {
	return &DedupWindow{
		entries: make([]dedupEntry, 0, 64),
		now:     time.Now,
	}
}

// IsDuplicate returns true if sn has already been seen. If not a
// duplicate, it records sn.
func (d *DedupWindow) IsDuplicate(sn int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	// Evict expired entries
	cutoff := now.Add(-dedupWindowTTL)
	start := 0
	for start < len(d.entries) && d.entries[start].seen.Before(cutoff) {
		start++
	}
	if start > 0 {
		d.entries = d.entries[start:]
	}

	for _, e := range d.entries {
		if e.sn == sn {
			return true
		}
	}

	// Evict oldest if at capacity
	if len(d.entries) >= dedupWindowSize {
		d.entries = d.entries[1:]
	}

	d.entries = append(d.entries, dedupEntry{sn: sn, seen: now})
	return false
}

// Reset forgets every recorded number. Call it when a connection starts
// without resuming.
func (d *DedupWindow) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = d.entries[:0]
}

// Len returns the current number of tracked sequence numbers.
func (d *DedupWindow) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
