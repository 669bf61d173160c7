package watcher

import (
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events to prevent index thrashing.
// Events for the same path within the debounce window are merged according
// to these rules:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing (file never really existed)
//   - MODIFY + DELETE = DELETE (file is gone)
//   - DELETE + CREATE = MODIFY (file was replaced)
//
// Otherwise the latest operation wins.
type Debouncer struct {
	window  time.Duration
	pending map[string]FileEvent
	mu      sync.Mutex
	output  chan []FileEvent
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a new debouncer with the given window duration.
// Events are coalesced within this window before being emitted.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, 16),
	}
}

// Add adds an event to be debounced.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged, keep := coalesce(existing, event)
		if keep {
			d.pending[event.Path] = merged
		} else {
			delete(d.pending, event.Path)
		}
	} else {
		d.pending[event.Path] = event
	}

	d.scheduleFlush()
}

// coalesce merges a pending event with a newer one for the same path.
// keep=false means the two cancel out.
func coalesce(existing, next FileEvent) (FileEvent, bool) {
	switch existing.Operation {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			existing.Timestamp = next.Timestamp
			return existing, true
		case OpDelete:
			return FileEvent{}, false
		}
	case OpDelete:
		if next.Operation == OpCreate {
			next.Operation = OpModify
			return next, true
		}
	}
	return next, true
}

// scheduleFlush schedules a flush after the debounce window.
// Callers hold d.mu.
func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits all pending events as one batch, ordered by path. If the
// output is full the batch stays pending and is retried after the window.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]FileEvent, 0, len(d.pending))
	for _, ev := range d.pending {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
		d.pending = make(map[string]FileEvent)
	default:
		d.scheduleFlush()
	}
}

// Pending returns the number of paths waiting to be flushed.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Output returns the channel of debounced batches. It is never closed;
// consumers stop reading when their own lifecycle ends.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and stops future flushes.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]FileEvent)
}
