package propertystore

import (
	"sync"

	"github.com/asynkron/protoactor-go/eventstream"
)

// Subscriber wraps one eventstream subscription with a bounded,
// coalescing buffer: if the consumer falls behind, the oldest unread
// change for a given path is dropped in favour of the latest value for
// that path, so a slow SSE client or publish-bus exporter never stalls
// Store.Publish, per spec.md §4.8.
type Subscriber struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending map[string]Entry
	order   []string
	closed  bool

	sub *eventstream.Subscription
}

// NewSubscriber registers a subscription on stream and returns a
// Subscriber the caller drains with Next/TryNext.
func NewSubscriber(stream *eventstream.EventStream) *Subscriber {
	s := &Subscriber{pending: map[string]Entry{}}
	s.cond = sync.NewCond(&s.mu)
	s.sub = stream.Subscribe(func(v any) {
		change, ok := v.(Change)
		if !ok {
			return
		}
		s.mu.Lock()
		if _, exists := s.pending[change.Entry.Path]; !exists {
			s.order = append(s.order, change.Entry.Path)
		}
		s.pending[change.Entry.Path] = change.Entry
		s.mu.Unlock()
		s.cond.Signal()
	})
	return s
}

// Next blocks until a coalesced change is available or Close is called,
// in which case ok is false.
func (s *Subscriber) Next() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.order) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.order) == 0 {
		return Entry{}, false
	}
	path := s.order[0]
	s.order = s.order[1:]
	entry := s.pending[path]
	delete(s.pending, path)
	return entry, true
}

// TryNext returns immediately with ok=false if nothing is pending,
// letting an SSE handler poll without blocking its response goroutine
// forever on a request context that might be cancelled.
func (s *Subscriber) TryNext() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return Entry{}, false
	}
	path := s.order[0]
	s.order = s.order[1:]
	entry := s.pending[path]
	delete(s.pending, path)
	return entry, true
}

func (s *Subscriber) Close(stream *eventstream.EventStream) {
	stream.Unsubscribe(s.sub)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}
