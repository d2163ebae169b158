// Package domain holds the event-sourced aggregates: Board and
// UndoRedoTracker. Every mutator records an event and applies it in place;
// state is a pure fold over the aggregate's ordered event stream.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/g960059/boardd/internal/eventlog"
)

// Aggregate is an entity whose state is a fold over its own event stream.
// Fold replays one stored event; Pending returns events recorded since the
// last save, in order.
type Aggregate interface {
	ID() uuid.UUID
	Version() int64
	Fold(ev eventlog.StoredEvent) error
	Pending() []eventlog.StoredEvent
	ClearPending()
	MarshalState() (json.RawMessage, error)
	UnmarshalState(id uuid.UUID, version int64, state json.RawMessage) error
}

// Recorder provides the id/version/pending bookkeeping shared by all
// aggregates. Embed it and route mutators through raise.
type Recorder struct {
	id      uuid.UUID
	version int64
	pending []eventlog.StoredEvent
}

func (r *Recorder) ID() uuid.UUID {
	return r.id
}

func (r *Recorder) Version() int64 {
	return r.version
}

func (r *Recorder) Pending() []eventlog.StoredEvent {
	return r.pending
}

func (r *Recorder) ClearPending() {
	r.pending = nil
}

func (r *Recorder) setIdentity(id uuid.UUID, version int64) {
	r.id = id
	r.version = version
}

// record appends the event to the pending list and advances the version.
// The caller applies the event to its own state afterwards; an apply error
// poisons the instance, which the caller must then discard unsaved.
func (r *Recorder) record(kind string, payload any) (eventlog.StoredEvent, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return eventlog.StoredEvent{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	ev := eventlog.StoredEvent{
		OriginatorID:      r.id,
		OriginatorVersion: r.version + 1,
		Kind:              kind,
		Payload:           encoded,
		RecordedAt:        time.Now().UTC(),
	}
	r.pending = append(r.pending, ev)
	r.version = ev.OriginatorVersion
	return ev, nil
}

// fold advances the version to the stored event's and hands the event to the
// aggregate's applier. Used by the repository during replay.
func (r *Recorder) fold(ev eventlog.StoredEvent, apply func(eventlog.StoredEvent) error) error {
	if r.id == uuid.Nil {
		r.id = ev.OriginatorID
	}
	if err := apply(ev); err != nil {
		return err
	}
	r.version = ev.OriginatorVersion
	return nil
}
