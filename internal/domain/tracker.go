package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/g960059/boardd/internal/eventlog"
	"github.com/g960059/boardd/internal/undoredo"
)

// Tracker event kinds. The arithmetic events re-run the strategy on apply, so
// a tracker reconstituted from its log lands on the same cursor and commit map
// as the live instance.
const (
	KindTrackerCreated   = "TRACKER_CREATED"
	KindIncrVersionCursor = "INCR_VERSION_CURSOR"
	KindUndo             = "UNDO"
	KindRedo             = "REDO"
	KindCommit           = "COMMIT"
)

// TrackerMinVersion is the earliest mutable board version: the one right
// after the tracker-link event on a fresh board.
const TrackerMinVersion = 2

type trackerCreatedPayload struct {
	BoardID uuid.UUID `json:"board_id"`
}

type redoPayload struct {
	MaximumVersion int64 `json:"maximum_version"`
}

type commitPayload struct {
	CommitVersion    int64 `json:"commit_version"`
	ReferenceVersion int64 `json:"reference_version"`
}

// UndoRedoTracker is the per-board aggregate holding the undo/redo cursor
// and commit map. Board and tracker reference each other by id only; neither
// owns the other.
type UndoRedoTracker struct {
	Recorder
	BoardID  uuid.UUID
	Strategy undoredo.Strategy
}

func NewUndoRedoTracker(boardID uuid.UUID) (*UndoRedoTracker, error) {
	t := EmptyUndoRedoTracker()
	t.setIdentity(uuid.New(), 0)
	if err := t.raise(KindTrackerCreated, trackerCreatedPayload{BoardID: boardID}); err != nil {
		return nil, err
	}
	return t, nil
}

func EmptyUndoRedoTracker() *UndoRedoTracker {
	return &UndoRedoTracker{}
}

func (t *UndoRedoTracker) raise(kind string, payload any) error {
	ev, err := t.record(kind, payload)
	if err != nil {
		return err
	}
	return t.apply(ev)
}

func (t *UndoRedoTracker) VersionCursor() int64 {
	return t.Strategy.VersionCursor
}

func (t *UndoRedoTracker) IncrementVersionCursor() error {
	return t.raise(KindIncrVersionCursor, struct{}{})
}

func (t *UndoRedoTracker) Undo() error {
	return t.raise(KindUndo, struct{}{})
}

func (t *UndoRedoTracker) Redo(maximumVersion int64) error {
	return t.raise(KindRedo, redoPayload{MaximumVersion: maximumVersion})
}

func (t *UndoRedoTracker) Commit(commitVersion, referenceVersion int64) error {
	if err := t.raise(KindCommit, commitPayload{CommitVersion: commitVersion, ReferenceVersion: referenceVersion}); err != nil {
		return err
	}
	return t.Strategy.Validate()
}

func (t *UndoRedoTracker) Fold(ev eventlog.StoredEvent) error {
	return t.fold(ev, t.apply)
}

func (t *UndoRedoTracker) apply(ev eventlog.StoredEvent) error {
	switch ev.Kind {
	case KindTrackerCreated:
		var p trackerCreatedPayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		t.BoardID = p.BoardID
		t.Strategy = undoredo.New(TrackerMinVersion)
		return nil
	case KindIncrVersionCursor:
		t.Strategy.IncrementVersionCursor()
		return nil
	case KindUndo:
		t.Strategy.Undo()
		return nil
	case KindRedo:
		var p redoPayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		t.Strategy.Redo(p.MaximumVersion)
		return nil
	case KindCommit:
		var p commitPayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		t.Strategy.Commit(p.CommitVersion, p.ReferenceVersion)
		return nil
	default:
		return fmt.Errorf("unknown tracker event kind %q", ev.Kind)
	}
}

type trackerState struct {
	BoardID  uuid.UUID         `json:"board_id"`
	Strategy undoredo.Strategy `json:"strategy"`
}

func (t *UndoRedoTracker) MarshalState() (json.RawMessage, error) {
	return json.Marshal(trackerState{
		BoardID:  t.BoardID,
		Strategy: t.Strategy.Clone(),
	})
}

func (t *UndoRedoTracker) UnmarshalState(id uuid.UUID, version int64, state json.RawMessage) error {
	var decoded trackerState
	if err := json.Unmarshal(state, &decoded); err != nil {
		return fmt.Errorf("decode tracker snapshot: %w", err)
	}
	t.setIdentity(id, version)
	t.BoardID = decoded.BoardID
	t.Strategy = decoded.Strategy
	if t.Strategy.UndoCommits == nil {
		t.Strategy.UndoCommits = map[int64]int64{}
	}
	return nil
}
