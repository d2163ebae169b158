package app

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/g960059/boardd/internal/domain"
	"github.com/g960059/boardd/internal/eventlog"
)

const defaultSnapshotEvery = 50

// App is the board command surface. Every mutation runs commit-apply-increment:
// commit the undo state if the user was in the past, apply the mutators and
// save, then advance the cursor once per persisted event.
type App struct {
	log     eventlog.Store
	boards  *Repository[*domain.Board]
	manager *StateManager
}

type Options struct {
	// SnapshotEvery bounds board replay cost; 0 uses the default interval.
	SnapshotEvery int64
}

func New(log eventlog.Store) *App {
	return NewWithOptions(log, Options{})
}

func NewWithOptions(log eventlog.Store, opts Options) *App {
	snapshotEvery := opts.SnapshotEvery
	if snapshotEvery <= 0 {
		snapshotEvery = defaultSnapshotEvery
	}
	boards := NewRepository(log, domain.EmptyBoard, true, snapshotEvery)
	trackers := NewRepository(log, domain.EmptyUndoRedoTracker, false, 0)
	return &App{
		log:     log,
		boards:  boards,
		manager: NewStateManager(log, boards, trackers),
	}
}

// CreateBoard creates the board/tracker pair and links them: BOARD_CREATED is
// version 1 and UNDO_TRACKER_LINKED version 2, the tracker's min version.
func (a *App) CreateBoard(ctx context.Context) (uuid.UUID, error) {
	board, err := domain.NewBoard()
	if err != nil {
		return uuid.Nil, err
	}
	trackerID, err := a.manager.CreateTracker(ctx, board.ID())
	if err != nil {
		return uuid.Nil, err
	}
	if err := board.LinkUndoTracker(trackerID); err != nil {
		return uuid.Nil, err
	}
	if err := a.boards.Save(ctx, board); err != nil {
		return uuid.Nil, err
	}
	return board.ID(), nil
}

func (a *App) EditBoardTitle(ctx context.Context, boardID uuid.UUID, title string) error {
	return a.mutate(ctx, boardID, func(board *domain.Board) error {
		return board.EditTitle(title)
	})
}

func (a *App) AddColumn(ctx context.Context, boardID uuid.UUID) (uuid.UUID, error) {
	columnID := uuid.New()
	err := a.mutate(ctx, boardID, func(board *domain.Board) error {
		return board.AddColumn(columnID)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return columnID, nil
}

func (a *App) RemoveColumn(ctx context.Context, boardID, columnID uuid.UUID) error {
	return a.mutate(ctx, boardID, func(board *domain.Board) error {
		return board.RemoveColumn(columnID)
	})
}

func (a *App) MoveColumn(ctx context.Context, boardID, columnID uuid.UUID, newIndex int) error {
	return a.mutate(ctx, boardID, func(board *domain.Board) error {
		return board.MoveColumn(columnID, newIndex)
	})
}

func (a *App) EditColumnTitle(ctx context.Context, boardID, columnID uuid.UUID, title string) error {
	return a.mutate(ctx, boardID, func(board *domain.Board) error {
		return board.EditColumnTitle(columnID, title)
	})
}

func (a *App) AddCard(ctx context.Context, boardID, columnID uuid.UUID) (uuid.UUID, error) {
	cardID := uuid.New()
	err := a.mutate(ctx, boardID, func(board *domain.Board) error {
		return board.AddCard(columnID, cardID, nil, nil)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return cardID, nil
}

func (a *App) RemoveCard(ctx context.Context, boardID, columnID, cardID uuid.UUID) error {
	return a.mutate(ctx, boardID, func(board *domain.Board) error {
		return board.RemoveCard(columnID, cardID)
	})
}

// MoveCard moves a card within a column, or across columns when the source
// and target differ. A cross-column move persists remove, add and move events
// so identity, title and content survive the transfer.
func (a *App) MoveCard(ctx context.Context, boardID, fromColumnID, toColumnID, cardID uuid.UUID, newIndex int) error {
	return a.mutate(ctx, boardID, func(board *domain.Board) error {
		if fromColumnID != toColumnID {
			card, err := board.GetCard(fromColumnID, cardID)
			if err != nil {
				return err
			}
			if err := board.RemoveCard(fromColumnID, cardID); err != nil {
				return err
			}
			if err := board.AddCard(toColumnID, cardID, &card.Title, &card.Content); err != nil {
				return err
			}
		}
		return board.MoveCard(toColumnID, cardID, newIndex)
	})
}

func (a *App) EditCardTitle(ctx context.Context, boardID, columnID, cardID uuid.UUID, title string) error {
	return a.mutate(ctx, boardID, func(board *domain.Board) error {
		return board.EditCardTitle(columnID, cardID, title)
	})
}

func (a *App) EditCardContent(ctx context.Context, boardID, columnID, cardID uuid.UUID, content string) error {
	return a.mutate(ctx, boardID, func(board *domain.Board) error {
		return board.EditCardContent(columnID, cardID, content)
	})
}

func (a *App) Undo(ctx context.Context, boardID uuid.UUID) error {
	unlock := a.manager.LockBoard(boardID)
	defer unlock()
	return a.manager.Undo(ctx, boardID)
}

func (a *App) Redo(ctx context.Context, boardID uuid.UUID) error {
	unlock := a.manager.LockBoard(boardID)
	defer unlock()
	return a.manager.Redo(ctx, boardID)
}

func (a *App) VersionCursor(ctx context.Context, boardID uuid.UUID) (int64, error) {
	return a.manager.VersionCursor(ctx, boardID)
}

// RenderBoard materialises the board at the tracker's cursor. The cursor is
// authoritative; if the board stream is momentarily behind it, the render
// clamps to the latest stored version.
func (a *App) RenderBoard(ctx context.Context, boardID uuid.UUID) (*domain.Board, error) {
	cursor, err := a.manager.VersionCursor(ctx, boardID)
	if err != nil {
		return nil, err
	}
	latest, err := a.log.MaxVersion(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if latest == 0 {
		return nil, eventlog.ErrNotFound
	}
	if cursor > latest {
		cursor = latest
	}
	return a.boards.Get(ctx, boardID, cursor)
}

// mutate is the commit-apply-increment wrapper shared by every board command.
// A version conflict means another writer advanced the stream; the whole
// sequence is recomputed against the new tip once.
func (a *App) mutate(ctx context.Context, boardID uuid.UUID, fn func(*domain.Board) error) error {
	unlock := a.manager.LockBoard(boardID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		err := a.mutateOnce(ctx, boardID, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, eventlog.ErrVersionConflict) && attempt == 0 {
			continue
		}
		return err
	}
}

func (a *App) mutateOnce(ctx context.Context, boardID uuid.UUID, fn func(*domain.Board) error) error {
	board, err := a.boards.Get(ctx, boardID, 0)
	if err != nil {
		return err
	}
	if err := a.manager.CommitUndoState(ctx, board); err != nil {
		return err
	}
	if err := fn(board); err != nil {
		return err
	}
	persisted := len(board.Pending())
	if err := a.boards.Save(ctx, board); err != nil {
		return err
	}
	for i := 0; i < persisted; i++ {
		if err := a.manager.IncrementVersionCursor(ctx, boardID); err != nil {
			return err
		}
	}
	return nil
}
