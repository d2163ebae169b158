package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/g960059/boardd/internal/eventlog"
	"github.com/g960059/boardd/internal/model"
)

// ErrNotFound is returned when a column or card id is not present where a
// mutator looks it up. Nothing is persisted; the caller discards the instance.
var ErrNotFound = errors.New("not found")

// Board event kinds.
const (
	KindBoardCreated      = "BOARD_CREATED"
	KindUndoTrackerLinked = "UNDO_TRACKER_LINKED"
	KindBoardTitleEdited  = "BOARD_TITLE_EDITED"
	KindColumnAdded       = "COLUMN_ADDED"
	KindColumnRemoved     = "COLUMN_REMOVED"
	KindColumnMoved       = "COLUMN_MOVED"
	KindColumnTitleEdited = "COLUMN_TITLE_EDITED"
	KindCardAdded         = "CARD_ADDED"
	KindCardRemoved       = "CARD_REMOVED"
	KindCardMoved         = "CARD_MOVED"
	KindCardTitleEdited   = "CARD_TITLE_EDITED"
	KindCardContentEdited = "CARD_CONTENT_EDITED"
	KindCommitUndoState   = "COMMIT_UNDO_STATE"
)

type trackerLinkedPayload struct {
	TrackerID uuid.UUID `json:"tracker_id"`
}

type titlePayload struct {
	Title string `json:"title"`
}

type columnPayload struct {
	ColumnID uuid.UUID `json:"column_id"`
}

type columnMovedPayload struct {
	ColumnID uuid.UUID `json:"column_id"`
	NewIndex int       `json:"new_index"`
}

type columnTitlePayload struct {
	ColumnID uuid.UUID `json:"column_id"`
	Title    string    `json:"title"`
}

type cardAddedPayload struct {
	ColumnID uuid.UUID `json:"column_id"`
	CardID   uuid.UUID `json:"card_id"`
	Title    *string   `json:"title,omitempty"`
	Content  *string   `json:"content,omitempty"`
}

type cardPayload struct {
	ColumnID uuid.UUID `json:"column_id"`
	CardID   uuid.UUID `json:"card_id"`
}

type cardMovedPayload struct {
	ColumnID uuid.UUID `json:"column_id"`
	CardID   uuid.UUID `json:"card_id"`
	NewIndex int       `json:"new_index"`
}

type cardTitlePayload struct {
	ColumnID uuid.UUID `json:"column_id"`
	CardID   uuid.UUID `json:"card_id"`
	Title    string    `json:"title"`
}

type cardContentPayload struct {
	ColumnID uuid.UUID `json:"column_id"`
	CardID   uuid.UUID `json:"card_id"`
	Content  string    `json:"content"`
}

// Board is the kanban board aggregate.
type Board struct {
	Recorder
	Title             string
	Columns           []model.Column
	UndoRedoTrackerID uuid.UUID
}

// NewBoard creates a blank board and records BOARD_CREATED as version 1.
func NewBoard() (*Board, error) {
	b := EmptyBoard()
	b.setIdentity(uuid.New(), 0)
	if err := b.raise(KindBoardCreated, struct{}{}); err != nil {
		return nil, err
	}
	return b, nil
}

// EmptyBoard returns an unidentified instance for the repository to fold into.
func EmptyBoard() *Board {
	return &Board{Columns: []model.Column{}}
}

func (b *Board) raise(kind string, payload any) error {
	ev, err := b.record(kind, payload)
	if err != nil {
		return err
	}
	return b.apply(ev)
}

// LinkUndoTracker sets the back-reference to the board's tracker aggregate.
func (b *Board) LinkUndoTracker(trackerID uuid.UUID) error {
	return b.raise(KindUndoTrackerLinked, trackerLinkedPayload{TrackerID: trackerID})
}

func (b *Board) EditTitle(title string) error {
	return b.raise(KindBoardTitleEdited, titlePayload{Title: title})
}

func (b *Board) AddColumn(columnID uuid.UUID) error {
	return b.raise(KindColumnAdded, columnPayload{ColumnID: columnID})
}

func (b *Board) RemoveColumn(columnID uuid.UUID) error {
	return b.raise(KindColumnRemoved, columnPayload{ColumnID: columnID})
}

func (b *Board) MoveColumn(columnID uuid.UUID, newIndex int) error {
	return b.raise(KindColumnMoved, columnMovedPayload{ColumnID: columnID, NewIndex: newIndex})
}

func (b *Board) EditColumnTitle(columnID uuid.UUID, title string) error {
	return b.raise(KindColumnTitleEdited, columnTitlePayload{ColumnID: columnID, Title: title})
}

// AddCard appends a card to the column. Title and content are optional; a
// cross-column move passes the moving card's fields through them.
func (b *Board) AddCard(columnID, cardID uuid.UUID, title, content *string) error {
	return b.raise(KindCardAdded, cardAddedPayload{ColumnID: columnID, CardID: cardID, Title: title, Content: content})
}

func (b *Board) RemoveCard(columnID, cardID uuid.UUID) error {
	return b.raise(KindCardRemoved, cardPayload{ColumnID: columnID, CardID: cardID})
}

func (b *Board) MoveCard(columnID, cardID uuid.UUID, newIndex int) error {
	return b.raise(KindCardMoved, cardMovedPayload{ColumnID: columnID, CardID: cardID, NewIndex: newIndex})
}

func (b *Board) EditCardTitle(columnID, cardID uuid.UUID, title string) error {
	return b.raise(KindCardTitleEdited, cardTitlePayload{ColumnID: columnID, CardID: cardID, Title: title})
}

func (b *Board) EditCardContent(columnID, cardID uuid.UUID, content string) error {
	return b.raise(KindCardContentEdited, cardContentPayload{ColumnID: columnID, CardID: cardID, Content: content})
}

// CommitUndoState records the marker event gluing an edit-after-undo branch.
// It carries no state mutation; the state manager pins the resulting version
// with a snapshot instead.
func (b *Board) CommitUndoState() error {
	return b.raise(KindCommitUndoState, struct{}{})
}

// GetCard looks a card up without mutating.
func (b *Board) GetCard(columnID, cardID uuid.UUID) (model.Card, error) {
	ci := b.columnIndex(columnID)
	if ci < 0 {
		return model.Card{}, fmt.Errorf("%w: column %s", ErrNotFound, columnID)
	}
	for _, card := range b.Columns[ci].Cards {
		if card.ID == cardID {
			return card, nil
		}
	}
	return model.Card{}, fmt.Errorf("%w: card %s in column %s", ErrNotFound, cardID, columnID)
}

// RestoreFrom copies the reference board's materialised fields into this
// instance. Used before CommitUndoState so a mutation in the same command
// applies on top of the restored past state.
func (b *Board) RestoreFrom(reference *Board) {
	b.Title = reference.Title
	b.Columns = model.CloneColumns(reference.Columns)
}

func (b *Board) Fold(ev eventlog.StoredEvent) error {
	return b.fold(ev, b.apply)
}

func (b *Board) apply(ev eventlog.StoredEvent) error {
	switch ev.Kind {
	case KindBoardCreated:
		b.Title = ""
		b.Columns = []model.Column{}
		b.UndoRedoTrackerID = uuid.Nil
		return nil
	case KindUndoTrackerLinked:
		var p trackerLinkedPayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		b.UndoRedoTrackerID = p.TrackerID
		return nil
	case KindBoardTitleEdited:
		var p titlePayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		b.Title = p.Title
		return nil
	case KindColumnAdded:
		var p columnPayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		b.Columns = append(b.Columns, model.NewColumn(p.ColumnID))
		return nil
	case KindColumnRemoved:
		var p columnPayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		ci := b.columnIndex(p.ColumnID)
		if ci < 0 {
			return fmt.Errorf("%w: column %s", ErrNotFound, p.ColumnID)
		}
		b.Columns = append(b.Columns[:ci], b.Columns[ci+1:]...)
		return nil
	case KindColumnMoved:
		var p columnMovedPayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		ci := b.columnIndex(p.ColumnID)
		if ci < 0 {
			return fmt.Errorf("%w: column %s", ErrNotFound, p.ColumnID)
		}
		b.Columns = moveAt(b.Columns, ci, p.NewIndex)
		return nil
	case KindColumnTitleEdited:
		var p columnTitlePayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		ci := b.columnIndex(p.ColumnID)
		if ci < 0 {
			return fmt.Errorf("%w: column %s", ErrNotFound, p.ColumnID)
		}
		b.Columns[ci].Title = p.Title
		return nil
	case KindCardAdded:
		var p cardAddedPayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		ci := b.columnIndex(p.ColumnID)
		if ci < 0 {
			return fmt.Errorf("%w: column %s", ErrNotFound, p.ColumnID)
		}
		card := model.NewCard(p.CardID)
		if p.Title != nil {
			card.Title = *p.Title
		}
		if p.Content != nil {
			card.Content = *p.Content
		}
		b.Columns[ci].Cards = append(b.Columns[ci].Cards, card)
		return nil
	case KindCardRemoved:
		var p cardPayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		ci, di := b.cardIndex(p.ColumnID, p.CardID)
		if di < 0 {
			return fmt.Errorf("%w: card %s in column %s", ErrNotFound, p.CardID, p.ColumnID)
		}
		cards := b.Columns[ci].Cards
		b.Columns[ci].Cards = append(cards[:di], cards[di+1:]...)
		return nil
	case KindCardMoved:
		var p cardMovedPayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		ci, di := b.cardIndex(p.ColumnID, p.CardID)
		if di < 0 {
			return fmt.Errorf("%w: card %s in column %s", ErrNotFound, p.CardID, p.ColumnID)
		}
		b.Columns[ci].Cards = moveAt(b.Columns[ci].Cards, di, p.NewIndex)
		return nil
	case KindCardTitleEdited:
		var p cardTitlePayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		ci, di := b.cardIndex(p.ColumnID, p.CardID)
		if di < 0 {
			return fmt.Errorf("%w: card %s in column %s", ErrNotFound, p.CardID, p.ColumnID)
		}
		b.Columns[ci].Cards[di].Title = p.Title
		return nil
	case KindCardContentEdited:
		var p cardContentPayload
		if err := decodePayload(ev, &p); err != nil {
			return err
		}
		ci, di := b.cardIndex(p.ColumnID, p.CardID)
		if di < 0 {
			return fmt.Errorf("%w: card %s in column %s", ErrNotFound, p.CardID, p.ColumnID)
		}
		b.Columns[ci].Cards[di].Content = p.Content
		return nil
	case KindCommitUndoState:
		// Marker only. The state manager pins the resulting version with a
		// snapshot of the restored reference state.
		return nil
	default:
		return fmt.Errorf("unknown board event kind %q", ev.Kind)
	}
}

type boardState struct {
	Title             string         `json:"title"`
	Columns           []model.Column `json:"columns"`
	UndoRedoTrackerID uuid.UUID      `json:"undo_redo_tracker_id"`
}

func (b *Board) MarshalState() (json.RawMessage, error) {
	return json.Marshal(boardState{
		Title:             b.Title,
		Columns:           b.Columns,
		UndoRedoTrackerID: b.UndoRedoTrackerID,
	})
}

func (b *Board) UnmarshalState(id uuid.UUID, version int64, state json.RawMessage) error {
	var decoded boardState
	if err := json.Unmarshal(state, &decoded); err != nil {
		return fmt.Errorf("decode board snapshot: %w", err)
	}
	b.setIdentity(id, version)
	b.Title = decoded.Title
	b.Columns = decoded.Columns
	if b.Columns == nil {
		b.Columns = []model.Column{}
	}
	b.UndoRedoTrackerID = decoded.UndoRedoTrackerID
	return nil
}

func (b *Board) columnIndex(columnID uuid.UUID) int {
	for i, col := range b.Columns {
		if col.ID == columnID {
			return i
		}
	}
	return -1
}

func (b *Board) cardIndex(columnID, cardID uuid.UUID) (int, int) {
	ci := b.columnIndex(columnID)
	if ci < 0 {
		return -1, -1
	}
	for di, card := range b.Columns[ci].Cards {
		if card.ID == cardID {
			return ci, di
		}
	}
	return ci, -1
}

// moveAt removes the element at from and reinserts it at newIndex, clipping
// newIndex to the sequence length after removal.
func moveAt[T any](items []T, from, newIndex int) []T {
	item := items[from]
	rest := make([]T, 0, len(items)-1)
	rest = append(rest, items[:from]...)
	rest = append(rest, items[from+1:]...)
	if newIndex > len(rest) {
		newIndex = len(rest)
	}
	if newIndex < 0 {
		newIndex = 0
	}
	out := make([]T, 0, len(items))
	out = append(out, rest[:newIndex]...)
	out = append(out, item)
	out = append(out, rest[newIndex:]...)
	return out
}

func decodePayload(ev eventlog.StoredEvent, into any) error {
	if len(ev.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(ev.Payload, into); err != nil {
		return fmt.Errorf("decode %s payload: %w", ev.Kind, err)
	}
	return nil
}
