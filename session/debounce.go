package session

import "time"

// debouncer ignores a repeat hit on the same note inside the window,
// measured from the first accepted hit.
type debouncer struct {
	window time.Duration
	now    func() time.Time
	last   map[uint8]time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window: window,
		now:    time.Now,
		last:   make(map[uint8]time.Time),
	}
}

func (d *debouncer) reset() {
	d.last = make(map[uint8]time.Time)
}

// accept records the hit and reports whether it counts.
func (d *debouncer) accept(note uint8) bool {
	now := d.now()
	if t, ok := d.last[note]; ok && now.Sub(t) < d.window {
		return false
	}
	d.last[note] = now
	return true
}
