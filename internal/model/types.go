package model

import "github.com/google/uuid"

// Card is a board card. It is owned exclusively by its containing column;
// its id stays the same when it moves to another column.
type Card struct {
	ID      uuid.UUID `json:"id"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
}

// Column is an ordered sequence of cards owned by a single board.
type Column struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Cards []Card    `json:"cards"`
}

func NewCard(cardID uuid.UUID) Card {
	return Card{ID: cardID}
}

func NewColumn(columnID uuid.UUID) Column {
	return Column{ID: columnID, Cards: []Card{}}
}

// Clone deep-copies the column so two board instances never share card slices.
func (c Column) Clone() Column {
	out := c
	out.Cards = make([]Card, len(c.Cards))
	copy(out.Cards, c.Cards)
	return out
}

func CloneColumns(columns []Column) []Column {
	out := make([]Column, len(columns))
	for i, col := range columns {
		out[i] = col.Clone()
	}
	return out
}

// Error codes defined by the API contract.
const (
	ErrRefInvalid         = "E_REF_INVALID"
	ErrRefNotFound        = "E_REF_NOT_FOUND"
	ErrVersionConflict    = "E_VERSION_CONFLICT"
	ErrInvariantViolation = "E_INVARIANT_VIOLATION"
	ErrStoreUnavailable   = "E_STORE_UNAVAILABLE"
)
