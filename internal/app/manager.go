package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/g960059/boardd/internal/domain"
	"github.com/g960059/boardd/internal/eventlog"
)

// StateManager owns the undo/redo trackers: the board-to-tracker id cache,
// per-board write serialisation, and the commit-on-edit path that glues an
// edit-after-undo branch onto the prior history.
type StateManager struct {
	log      eventlog.Store
	boards   *Repository[*domain.Board]
	trackers *Repository[*domain.UndoRedoTracker]

	mu             sync.Mutex
	trackerByBoard map[uuid.UUID]uuid.UUID
	boardLocks     map[uuid.UUID]*boardLockEntry
}

type boardLockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewStateManager(log eventlog.Store, boards *Repository[*domain.Board], trackers *Repository[*domain.UndoRedoTracker]) *StateManager {
	return &StateManager{
		log:            log,
		boards:         boards,
		trackers:       trackers,
		trackerByBoard: map[uuid.UUID]uuid.UUID{},
		boardLocks:     map[uuid.UUID]*boardLockEntry{},
	}
}

// LockBoard serialises writes per board id. The returned func releases the
// lock and drops the entry once no caller holds a reference.
func (m *StateManager) LockBoard(boardID uuid.UUID) func() {
	m.mu.Lock()
	entry, ok := m.boardLocks[boardID]
	if !ok {
		entry = &boardLockEntry{}
		m.boardLocks[boardID] = entry
	}
	entry.refs++
	m.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		m.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.boardLocks, boardID)
		}
		m.mu.Unlock()
	}
}

// CreateTracker creates and persists the tracker half of a new board pair.
func (m *StateManager) CreateTracker(ctx context.Context, boardID uuid.UUID) (uuid.UUID, error) {
	tracker, err := domain.NewUndoRedoTracker(boardID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := m.trackers.Save(ctx, tracker); err != nil {
		return uuid.Nil, err
	}
	m.mu.Lock()
	m.trackerByBoard[boardID] = tracker.ID()
	m.mu.Unlock()
	return tracker.ID(), nil
}

// CommitUndoState runs before a mutation. When the cursor sits at the board
// tip nothing happens. Otherwise the past state at the cursor is restored
// into the live board, a marker event is recorded yielding a new tip, a
// snapshot pins that tip to the restored state, and the tracker glues the
// branch with a commit pair.
func (m *StateManager) CommitUndoState(ctx context.Context, board *domain.Board) error {
	tracker, err := m.trackerFor(ctx, board.ID())
	if err != nil {
		return err
	}
	cursor := tracker.VersionCursor()
	if cursor == board.Version() {
		return nil
	}
	if cursor > board.Version() {
		// A prior mutation advanced the tracker without the board save
		// landing. The cursor is authoritative; fall back to the tip.
		log.Printf("boardd: tracker cursor %d ahead of board %s tip %d", cursor, board.ID(), board.Version())
		return nil
	}

	reference, err := m.boards.Get(ctx, board.ID(), cursor)
	if err != nil {
		return fmt.Errorf("load reference version %d: %w", cursor, err)
	}
	board.RestoreFrom(reference)
	if err := board.CommitUndoState(); err != nil {
		return err
	}
	if err := m.boards.Save(ctx, board); err != nil {
		return err
	}

	state, err := board.MarshalState()
	if err != nil {
		return err
	}
	if err := m.log.PutSnapshot(ctx, eventlog.Snapshot{
		OriginatorID:      board.ID(),
		OriginatorVersion: board.Version(),
		State:             state,
	}); err != nil {
		return fmt.Errorf("pin commit snapshot: %w", err)
	}

	if err := tracker.Commit(board.Version(), cursor); err != nil {
		return err
	}
	return m.trackers.Save(ctx, tracker)
}

func (m *StateManager) IncrementVersionCursor(ctx context.Context, boardID uuid.UUID) error {
	tracker, err := m.trackerFor(ctx, boardID)
	if err != nil {
		return err
	}
	if err := tracker.IncrementVersionCursor(); err != nil {
		return err
	}
	return m.trackers.Save(ctx, tracker)
}

func (m *StateManager) Undo(ctx context.Context, boardID uuid.UUID) error {
	tracker, err := m.trackerFor(ctx, boardID)
	if err != nil {
		return err
	}
	if err := tracker.Undo(); err != nil {
		return err
	}
	return m.trackers.Save(ctx, tracker)
}

func (m *StateManager) Redo(ctx context.Context, boardID uuid.UUID) error {
	latest, err := m.log.MaxVersion(ctx, boardID)
	if err != nil {
		return err
	}
	tracker, err := m.trackerFor(ctx, boardID)
	if err != nil {
		return err
	}
	if err := tracker.Redo(latest); err != nil {
		return err
	}
	return m.trackers.Save(ctx, tracker)
}

func (m *StateManager) VersionCursor(ctx context.Context, boardID uuid.UUID) (int64, error) {
	tracker, err := m.trackerFor(ctx, boardID)
	if err != nil {
		return 0, err
	}
	return tracker.VersionCursor(), nil
}

// trackerFor resolves the board's tracker, caching the id mapping. The cache
// is write-once per board: board and tracker are created as a pair and never
// re-linked.
func (m *StateManager) trackerFor(ctx context.Context, boardID uuid.UUID) (*domain.UndoRedoTracker, error) {
	m.mu.Lock()
	trackerID, ok := m.trackerByBoard[boardID]
	m.mu.Unlock()
	if !ok {
		board, err := m.boards.Get(ctx, boardID, 0)
		if err != nil {
			return nil, err
		}
		trackerID = board.UndoRedoTrackerID
		if trackerID == uuid.Nil {
			return nil, fmt.Errorf("%w: board %s has no undo tracker", eventlog.ErrNotFound, boardID)
		}
		m.mu.Lock()
		m.trackerByBoard[boardID] = trackerID
		m.mu.Unlock()
	}
	return m.trackers.Get(ctx, trackerID, 0)
}
