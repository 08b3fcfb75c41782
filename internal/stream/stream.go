// Package stream fans audit events out to live subscribers, e.g. an admin
// dashboard following logins and lockouts over SSE.
package stream

import (
	"context"
	"sync"

	"gatelist.org/internal/audit"
)

// Stream fan-outs audit entries to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan audit.Entry
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan audit.Entry)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// entries. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan audit.Entry {
	ch := make(chan audit.Entry, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the entry to all subscribers.
func (s *Stream) Publish(entry audit.Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- entry:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Tee decorates an audit sink so every appended entry is also published.
func (s *Stream) Tee(next audit.Sink) audit.Sink {
	return &teeSink{next: next, stream: s}
}

type teeSink struct {
	next   audit.Sink
	stream *Stream
}

func (t *teeSink) Append(ctx context.Context, entry *audit.Entry) error {
	if err := t.next.Append(ctx, entry); err != nil {
		return err
	}
	t.stream.Publish(*entry)
	return nil
}
