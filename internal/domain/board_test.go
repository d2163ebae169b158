package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewBoardRecordsCreationEvent(t *testing.T) {
	board, err := NewBoard()
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	if board.Version() != 1 {
		t.Fatalf("expected version 1, got %d", board.Version())
	}
	pending := board.Pending()
	if len(pending) != 1 || pending[0].Kind != KindBoardCreated {
		t.Fatalf("expected one BOARD_CREATED event, got %+v", pending)
	}
	if pending[0].OriginatorVersion != 1 {
		t.Fatalf("expected originator_version 1, got %d", pending[0].OriginatorVersion)
	}
}

func TestLinkUndoTrackerSetsBackReference(t *testing.T) {
	board, err := NewBoard()
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	trackerID := uuid.New()
	if err := board.LinkUndoTracker(trackerID); err != nil {
		t.Fatalf("link tracker: %v", err)
	}
	if board.UndoRedoTrackerID != trackerID {
		t.Fatalf("expected tracker id %s, got %s", trackerID, board.UndoRedoTrackerID)
	}
	if board.Version() != 2 {
		t.Fatalf("expected version 2 after link, got %d", board.Version())
	}
}

func TestColumnAndCardMutations(t *testing.T) {
	board := newTestBoard(t)
	colID := uuid.New()
	if err := board.AddColumn(colID); err != nil {
		t.Fatalf("add column: %v", err)
	}
	if err := board.EditColumnTitle(colID, "To Do"); err != nil {
		t.Fatalf("edit column title: %v", err)
	}
	cardID := uuid.New()
	if err := board.AddCard(colID, cardID, nil, nil); err != nil {
		t.Fatalf("add card: %v", err)
	}
	if err := board.EditCardTitle(colID, cardID, "Write tests"); err != nil {
		t.Fatalf("edit card title: %v", err)
	}
	if err := board.EditCardContent(colID, cardID, "cover the fold"); err != nil {
		t.Fatalf("edit card content: %v", err)
	}

	if len(board.Columns) != 1 {
		t.Fatalf("expected 1 column, got %d", len(board.Columns))
	}
	col := board.Columns[0]
	if col.Title != "To Do" {
		t.Fatalf("expected column title To Do, got %q", col.Title)
	}
	if len(col.Cards) != 1 {
		t.Fatalf("expected 1 card, got %d", len(col.Cards))
	}
	card := col.Cards[0]
	if card.Title != "Write tests" || card.Content != "cover the fold" {
		t.Fatalf("unexpected card state: %+v", card)
	}
}

func TestRemoveMissingColumnFails(t *testing.T) {
	board := newTestBoard(t)
	err := board.RemoveColumn(uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveMissingCardFails(t *testing.T) {
	board := newTestBoard(t)
	colID := uuid.New()
	if err := board.AddColumn(colID); err != nil {
		t.Fatalf("add column: %v", err)
	}
	err := board.RemoveCard(colID, uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMoveColumnClipsIndexToTail(t *testing.T) {
	board := newTestBoard(t)
	col1, col2 := uuid.New(), uuid.New()
	mustAddColumns(t, board, col1, col2)

	if err := board.MoveColumn(col1, 5); err != nil {
		t.Fatalf("move column: %v", err)
	}
	assertColumnOrder(t, board, col2, col1)
}

func TestMoveColumnToExplicitIndex(t *testing.T) {
	board := newTestBoard(t)
	col1, col2, col3 := uuid.New(), uuid.New(), uuid.New()
	mustAddColumns(t, board, col1, col2, col3)

	if err := board.MoveColumn(col3, 0); err != nil {
		t.Fatalf("move column: %v", err)
	}
	assertColumnOrder(t, board, col3, col1, col2)

	if err := board.MoveColumn(col3, 1); err != nil {
		t.Fatalf("move column: %v", err)
	}
	assertColumnOrder(t, board, col1, col3, col2)
}

func TestMoveCardWithinColumn(t *testing.T) {
	board := newTestBoard(t)
	colID := uuid.New()
	mustAddColumns(t, board, colID)
	card1, card2 := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{card1, card2} {
		if err := board.AddCard(colID, id, nil, nil); err != nil {
			t.Fatalf("add card: %v", err)
		}
	}

	if err := board.MoveCard(colID, card1, 2); err != nil {
		t.Fatalf("move card: %v", err)
	}
	cards := board.Columns[0].Cards
	if cards[0].ID != card2 || cards[1].ID != card1 {
		t.Fatalf("expected order [%s %s], got %+v", card2, card1, cards)
	}
}

func TestReplayFoldMatchesLiveState(t *testing.T) {
	board := newTestBoard(t)
	colID := uuid.New()
	mustAddColumns(t, board, colID)
	cardID := uuid.New()
	if err := board.AddCard(colID, cardID, nil, nil); err != nil {
		t.Fatalf("add card: %v", err)
	}
	if err := board.EditCardTitle(colID, cardID, "replayed"); err != nil {
		t.Fatalf("edit card title: %v", err)
	}
	if err := board.EditTitle("Board"); err != nil {
		t.Fatalf("edit board title: %v", err)
	}

	replayed := EmptyBoard()
	for _, ev := range board.Pending() {
		if err := replayed.Fold(ev); err != nil {
			t.Fatalf("fold %s: %v", ev.Kind, err)
		}
	}
	if replayed.ID() != board.ID() {
		t.Fatalf("replayed id %s != %s", replayed.ID(), board.ID())
	}
	if replayed.Version() != board.Version() {
		t.Fatalf("replayed version %d != %d", replayed.Version(), board.Version())
	}
	if replayed.Title != board.Title {
		t.Fatalf("replayed title %q != %q", replayed.Title, board.Title)
	}
	if len(replayed.Columns) != 1 || replayed.Columns[0].Cards[0].Title != "replayed" {
		t.Fatalf("replayed columns diverged: %+v", replayed.Columns)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	board := newTestBoard(t)
	colID := uuid.New()
	mustAddColumns(t, board, colID)
	if err := board.EditColumnTitle(colID, "Done"); err != nil {
		t.Fatalf("edit column title: %v", err)
	}

	state, err := board.MarshalState()
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	restored := EmptyBoard()
	if err := restored.UnmarshalState(board.ID(), board.Version(), state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if restored.Version() != board.Version() || restored.UndoRedoTrackerID != board.UndoRedoTrackerID {
		t.Fatalf("restored identity diverged: %+v", restored)
	}
	if len(restored.Columns) != 1 || restored.Columns[0].Title != "Done" {
		t.Fatalf("restored columns diverged: %+v", restored.Columns)
	}
}

func TestRestoreFromDeepCopiesColumns(t *testing.T) {
	reference := newTestBoard(t)
	colID := uuid.New()
	mustAddColumns(t, reference, colID)
	cardID := uuid.New()
	if err := reference.AddCard(colID, cardID, nil, nil); err != nil {
		t.Fatalf("add card: %v", err)
	}

	board := newTestBoard(t)
	board.RestoreFrom(reference)
	board.Columns[0].Cards[0].Title = "mutated"
	if reference.Columns[0].Cards[0].Title != "" {
		t.Fatalf("restore aliased the reference cards")
	}
}

func newTestBoard(t *testing.T) *Board {
	t.Helper()
	board, err := NewBoard()
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	if err := board.LinkUndoTracker(uuid.New()); err != nil {
		t.Fatalf("link tracker: %v", err)
	}
	return board
}

func mustAddColumns(t *testing.T, board *Board, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		if err := board.AddColumn(id); err != nil {
			t.Fatalf("add column: %v", err)
		}
	}
}

func assertColumnOrder(t *testing.T, board *Board, want ...uuid.UUID) {
	t.Helper()
	if len(board.Columns) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(board.Columns))
	}
	for i, id := range want {
		if board.Columns[i].ID != id {
			t.Fatalf("column %d: expected %s, got %s", i, id, board.Columns[i].ID)
		}
	}
}
