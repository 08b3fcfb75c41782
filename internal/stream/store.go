package stream

import (
	"context"

	"gatelist.org/internal/audit"
	"gatelist.org/internal/auth"
)

// WrapStore returns a Store identical to st except that every audit entry it
// persists is also published to s.
func WrapStore(st auth.Store, s *Stream) auth.Store {
	return &auditedStore{Store: st, stream: s}
}

type auditedStore struct {
	auth.Store
	stream *Stream
}

func (a *auditedStore) Audit(ctx context.Context) audit.Sink {
	return a.stream.Tee(a.Store.Audit(ctx))
}
