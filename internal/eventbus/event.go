// Package eventbus fans file events out to registered plugins. A plugin
// failure is isolated unless it is validation-shaped, in which case it
// propagates and can block the commit that triggered it.
package eventbus

import (
	"time"

	"github.com/Sumatoshi-tech/codefang-index/internal/errs"
)

// EventType enumerates the file-event kinds.
type EventType string

// Event types.
const (
	EventWrite    EventType = "write"
	EventDelete   EventType = "delete"
	EventCommit   EventType = "commit"
	EventRollback EventType = "rollback"
)

// Event is one file-level occurrence inside a transaction. OldContent and
// NewContent are nil when not applicable.
type Event struct {
	Type       EventType
	Path       string
	TxnID      string
	OldContent []byte
	NewContent []byte
	Timestamp  time.Time
}

// NewEvent constructs an event and enforces the schema invariants: a
// non-empty transaction id, a positive timestamp, content present on
// writes, and content absent on deletes.
func NewEvent(eventType EventType, path, txnID string, oldContent, newContent []byte, ts time.Time) (Event, error) {
	if txnID == "" {
		return Event{}, &errs.ValidationError{Field: "txn_id", Reason: "must not be empty"}
	}

	if ts.IsZero() || ts.Unix() <= 0 {
		return Event{}, &errs.ValidationError{Field: "timestamp", Reason: "must be positive"}
	}

	switch eventType {
	case EventWrite:
		if newContent == nil {
			return Event{}, &errs.ValidationError{Field: "new_content", Reason: "required for write events"}
		}
	case EventDelete:
		if newContent != nil {
			return Event{}, &errs.ValidationError{Field: "new_content", Reason: "must be nil for delete events"}
		}
	case EventCommit, EventRollback:
		// no content constraints
	default:
		return Event{}, &errs.ValidationError{Field: "type", Reason: "unknown event type " + string(eventType)}
	}

	return Event{
		Type:       eventType,
		Path:       path,
		TxnID:      txnID,
		OldContent: oldContent,
		NewContent: newContent,
		Timestamp:  ts,
	}, nil
}
