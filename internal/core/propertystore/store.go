// Package propertystore implements the authoritative in-memory Property
// Store and its change-notification fan-out, per spec.md §4.8. Fan-out
// reuses github.com/asynkron/protoactor-go/eventstream, already in the
// teacher's dependency graph and used the same way there for the
// battery-control actor's hold-switch update events.
package propertystore

import (
	"math"
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/eventstream"
)

// Entry is one Property Store record: the latest value, a monotonic
// per-path revision, and the wall-clock time it last changed.
type Entry struct {
	Path      string
	Value     any
	Revision  uint64
	ChangedAt time.Time
}

// Change is broadcast on the event stream whenever Publish detects a
// semantic change.
type Change struct {
	Entry Entry
}

// Store is the authoritative map from path to Entry, mutated only by the
// control-engine task's end-of-tick publisher function.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	stream  *eventstream.EventStream
}

func NewStore(stream *eventstream.EventStream) *Store {
	return &Store{entries: map[string]Entry{}, stream: stream}
}

// Stream exposes the underlying event stream so a caller outside the
// control-engine task (the HTTP /api/events handler, the MQTT
// publish-bus exporter) can build its own Subscriber.
func (s *Store) Stream() *eventstream.EventStream {
	return s.stream
}

// Get returns the current entry for path, if any.
func (s *Store) Get(path string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[path]
	return e, ok
}

// Snapshot returns a copy of every entry, for the HTTP status endpoint.
func (s *Store) Snapshot() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Publish compares value to the previous value at path by semantic
// equality (an epsilon of 1e-2 for the energy path, 1e-3 for every other
// float value, exact for non-float values) and, if changed,
// bumps the revision and fans out a Change. Delivery to the event stream
// is fire-and-forget: a slow subscriber must never stall Publish, so the
// bounded/coalescing behaviour lives entirely in the subscriber wrapper
// (Subscriber), not here.
func (s *Store) Publish(path string, value any) {
	now := time.Now()

	s.mu.Lock()
	prev, existed := s.entries[path]
	if existed && semanticEqual(path, prev.Value, value) {
		s.mu.Unlock()
		return
	}
	rev := uint64(1)
	if existed {
		rev = prev.Revision + 1
	}
	entry := Entry{Path: path, Value: value, Revision: rev, ChangedAt: now}
	s.entries[path] = entry
	s.mu.Unlock()

	s.stream.Publish(Change{Entry: entry})
}

const (
	epsilonPower  = 1e-3
	epsilonEnergy = 1e-2
)

func semanticEqual(path string, a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		eps := epsilonPower
		if isEnergyPath(path) {
			eps = epsilonEnergy
		}
		return math.Abs(af-bf) <= eps
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func isEnergyPath(path string) bool {
	return path == "/Ac/Energy/Forward"
}
