// Package audit records security-relevant identity events in an append-only
// log. Entries are immutable once written and reference users and sessions by
// id only, so they survive deletion of either. Writing an entry is
// best-effort: a failed append never aborts the operation that produced it.
package audit

import (
	"context"
	"time"

	"gatelist.org/internal/ids"
	"gatelist.org/internal/obs"
)

// Action identifies the kind of event being recorded.
type Action string

const (
	ActionLogin    Action = "LOGIN"
	ActionLogout   Action = "LOGOUT"
	ActionRegister Action = "REGISTER"
	ActionVerify   Action = "VERIFY"
	ActionLock     Action = "LOCK"
)

// Entry is one immutable audit record.
type Entry struct {
	ID           string
	Action       Action
	ResourceType string
	UserID       string
	Detail       string
	IPAddress    string
	UserAgent    string
	OccurredAt   time.Time
}

// Sink appends entries to durable storage.
type Sink interface {
	Append(ctx context.Context, entry *Entry) error
}

// Recorder writes entries to a Sink and mirrors them as structured log lines.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// NewRecorder constructs a Recorder. A nil sink is allowed; entries are then
// only emitted as log lines.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (r *Recorder) WithClock(fn func() time.Time) *Recorder {
	if fn != nil {
		r.now = fn
	}
	return r
}

// Record appends one entry. Append failures are logged and swallowed: audit
// logging must never fail the operation being audited.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}

	obs.Log(map[string]any{
		"ts":       entry.OccurredAt.Format(time.RFC3339Nano),
		"type":     "audit",
		"action":   string(entry.Action),
		"resource": entry.ResourceType,
		"user_id":  entry.UserID,
		"detail":   entry.Detail,
	})

	if r.sink == nil {
		return
	}
	if err := r.sink.Append(ctx, &entry); err != nil {
		obs.Error("audit append failed", err, map[string]any{
			"action":   string(entry.Action),
			"resource": entry.ResourceType,
		})
	}
}
