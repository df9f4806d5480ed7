package events

import (
	"sync"
	"time"
)

const (
	// DefaultRingSize is the number of events kept per run
	DefaultRingSize = 100
	// DefaultMaxRuns bounds how many runs have buffers at once
	DefaultMaxRuns = 1000
)

type ring struct {
	buf   []Event
	start int
	count int
}

func (r *ring) push(ev Event) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = ev
		r.count++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) snapshot() []Event {
	out := make([]Event, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Ring keeps the most recent events of each run in memory.
// When more than maxRuns runs have buffers the oldest buffer is dropped.
type Ring struct {
	mu      sync.Mutex
	size    int
	maxRuns int
	runs    map[string]*ring
	order   []string
}

// NewRing creates a Ring holding size events per run; size <= 0 uses DefaultRingSize
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{
		size:    size,
		maxRuns: DefaultMaxRuns,
		runs:    make(map[string]*ring),
	}
}

// Emit appends ev to the run's buffer, evicting the oldest event when full
func (r *Ring) Emit(runID string, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.runs[runID]
	if !ok {
		buf = &ring{buf: make([]Event, r.size)}
		r.runs[runID] = buf
		r.order = append(r.order, runID)
		for len(r.order) > r.maxRuns {
			delete(r.runs, r.order[0])
			r.order = r.order[1:]
		}
	}
	buf.push(ev)
}

// Snapshot returns the buffered events of a run, oldest first
func (r *Ring) Snapshot(runID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.runs[runID]
	if !ok {
		return []Event{}
	}
	return buf.snapshot()
}

// Forget drops a run's buffer
func (r *Ring) Forget(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[runID]; !ok {
		return
	}
	delete(r.runs, runID)
	for i, id := range r.order {
		if id == runID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
