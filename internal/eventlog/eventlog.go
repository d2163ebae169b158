package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an originator has no stored events or
	// snapshots in the requested range.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when an append targets an
	// (originator_id, originator_version) slot that is already taken.
	ErrVersionConflict = errors.New("version conflict")
	// ErrStoreUnavailable wraps transient I/O failures from the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoredEvent is one journal entry. Versions are dense per originator,
// starting at 1.
type StoredEvent struct {
	OriginatorID      uuid.UUID
	OriginatorVersion int64
	Kind              string
	Payload           json.RawMessage
	RecordedAt        time.Time
}

// Snapshot pins an originator's materialised state at a version. Replays that
// find a snapshot at or below the requested version start from it instead of
// folding the full stream.
type Snapshot struct {
	OriginatorID      uuid.UUID
	OriginatorVersion int64
	State             json.RawMessage
	RecordedAt        time.Time
}

// Store is the append-only event log contract. Append is atomic across the
// given events; on failure nothing is written.
type Store interface {
	Append(ctx context.Context, events ...StoredEvent) error
	// Read returns the dense ordered events in [fromVersion, toVersion].
	// toVersion <= 0 reads to the latest stored version.
	Read(ctx context.Context, originatorID uuid.UUID, fromVersion, toVersion int64) ([]StoredEvent, error)
	// MaxVersion returns the latest stored version for the originator, 0 if none.
	MaxVersion(ctx context.Context, originatorID uuid.UUID) (int64, error)
	PutSnapshot(ctx context.Context, snap Snapshot) error
	// LatestSnapshot returns the newest snapshot at or below the given version.
	LatestSnapshot(ctx context.Context, originatorID uuid.UUID, atOrBelow int64) (Snapshot, error)
	Close() error
}
