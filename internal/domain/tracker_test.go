package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewTrackerStartsAtMinVersion(t *testing.T) {
	boardID := uuid.New()
	tracker, err := NewUndoRedoTracker(boardID)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	if tracker.BoardID != boardID {
		t.Fatalf("expected board id %s, got %s", boardID, tracker.BoardID)
	}
	if tracker.VersionCursor() != TrackerMinVersion {
		t.Fatalf("expected cursor %d, got %d", TrackerMinVersion, tracker.VersionCursor())
	}
	if tracker.Version() != 1 {
		t.Fatalf("expected tracker version 1, got %d", tracker.Version())
	}
}

func TestTrackerReplayReachesSameCursor(t *testing.T) {
	tracker, err := NewUndoRedoTracker(uuid.New())
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	for i := 0; i < 6; i++ {
		if err := tracker.IncrementVersionCursor(); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := tracker.Undo(); err != nil {
			t.Fatalf("undo: %v", err)
		}
	}
	if err := tracker.Redo(8); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if err := tracker.Commit(9, tracker.VersionCursor()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	replayed := EmptyUndoRedoTracker()
	for _, ev := range tracker.Pending() {
		if err := replayed.Fold(ev); err != nil {
			t.Fatalf("fold %s: %v", ev.Kind, err)
		}
	}
	if replayed.VersionCursor() != tracker.VersionCursor() {
		t.Fatalf("replayed cursor %d != live %d", replayed.VersionCursor(), tracker.VersionCursor())
	}
	if replayed.Version() != tracker.Version() {
		t.Fatalf("replayed version %d != live %d", replayed.Version(), tracker.Version())
	}
	if len(replayed.Strategy.UndoCommits) != len(tracker.Strategy.UndoCommits) {
		t.Fatalf("replayed commit map %+v != live %+v", replayed.Strategy.UndoCommits, tracker.Strategy.UndoCommits)
	}
	for k, v := range tracker.Strategy.UndoCommits {
		if replayed.Strategy.UndoCommits[k] != v {
			t.Fatalf("replayed commit map %+v != live %+v", replayed.Strategy.UndoCommits, tracker.Strategy.UndoCommits)
		}
	}
}

func TestTrackerSnapshotRoundTrip(t *testing.T) {
	tracker, err := NewUndoRedoTracker(uuid.New())
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := tracker.IncrementVersionCursor(); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if err := tracker.Commit(8, 4); err != nil {
		t.Fatalf("commit: %v", err)
	}

	state, err := tracker.MarshalState()
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	restored := EmptyUndoRedoTracker()
	if err := restored.UnmarshalState(tracker.ID(), tracker.Version(), state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if restored.VersionCursor() != tracker.VersionCursor() {
		t.Fatalf("restored cursor %d != %d", restored.VersionCursor(), tracker.VersionCursor())
	}
	if restored.Strategy.UndoCommits[8] != 4 || restored.Strategy.UndoCommits[4] != 8 {
		t.Fatalf("restored commit map diverged: %+v", restored.Strategy.UndoCommits)
	}
}
