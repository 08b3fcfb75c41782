package stream

import (
	"context"
	"testing"
	"time"

	"gatelist.org/internal/audit"
)

func TestSubscribeReceivesPublished(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	s.Publish(audit.Entry{ID: "e1", Action: audit.ActionLogin})

	select {
	case got := <-ch:
		if got.ID != "e1" {
			t.Fatalf("unexpected entry: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no entry received")
	}
}

func TestSubscribeChannelClosesWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Subscribe(ctx)
	// Never read; the buffer fills and further publishes must not block.
	for i := 0; i < 100; i++ {
		s.Publish(audit.Entry{ID: "e"})
	}
}

type recordingSink struct {
	entries []*audit.Entry
}

func (r *recordingSink) Append(ctx context.Context, e *audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestTeePersistsAndPublishes(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	sink := &recordingSink{}
	tee := s.Tee(sink)

	entry := &audit.Entry{ID: "e1", Action: audit.ActionLock}
	if err := tee.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(sink.entries) != 1 {
		t.Fatalf("entry not persisted")
	}
	select {
	case got := <-ch:
		if got.Action != audit.ActionLock {
			t.Fatalf("unexpected entry: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("entry not published")
	}
}
