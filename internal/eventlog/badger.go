package eventlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerStore is the KV event log backend, selected with -backend badger.
// Keys: ev/<originator_id>/<version be64> and sn/<originator_id>/<version be64>;
// the big-endian version suffix keeps lexicographic order equal to version order.
type BadgerStore struct {
	db *badger.DB
}

const (
	eventKeyPrefix    = "ev/"
	snapshotKeyPrefix = "sn/"
)

type BadgerOptions struct {
	Dir      string
	InMemory bool
}

func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithLogger(nil)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type badgerEventRecord struct {
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

type badgerSnapshotRecord struct {
	State      json.RawMessage `json:"state"`
	RecordedAt time.Time       `json:"recorded_at"`
}

func (s *BadgerStore) Append(ctx context.Context, events ...StoredEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, ev := range events {
			key := eventKey(ev.OriginatorID, ev.OriginatorVersion)
			_, err := txn.Get(key)
			if err == nil {
				return fmt.Errorf("%w: %s@%d", ErrVersionConflict, ev.OriginatorID, ev.OriginatorVersion)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("check event key: %w", err)
			}
			recordedAt := ev.RecordedAt
			if recordedAt.IsZero() {
				recordedAt = time.Now().UTC()
			}
			value, err := json.Marshal(badgerEventRecord{
				Kind:       ev.Kind,
				Payload:    ev.Payload,
				RecordedAt: recordedAt,
			})
			if err != nil {
				return fmt.Errorf("encode event record: %w", err)
			}
			if err := txn.Set(key, value); err != nil {
				return fmt.Errorf("set event key: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return err
		}
		if errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("%w: concurrent append", ErrVersionConflict)
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *BadgerStore) Read(ctx context.Context, originatorID uuid.UUID, fromVersion, toVersion int64) ([]StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fromVersion < 1 {
		fromVersion = 1
	}
	out := make([]StoredEvent, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(eventKeyPrefix + originatorID.String() + "/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(eventKey(originatorID, fromVersion)); it.Valid(); it.Next() {
			item := it.Item()
			version, ok := versionFromKey(item.Key())
			if !ok {
				return fmt.Errorf("malformed event key: %q", item.Key())
			}
			if toVersion > 0 && version > toVersion {
				break
			}
			var record badgerEventRecord
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &record)
			}); err != nil {
				return fmt.Errorf("decode event record: %w", err)
			}
			out = append(out, StoredEvent{
				OriginatorID:      originatorID,
				OriginatorVersion: version,
				Kind:              record.Kind,
				Payload:           record.Payload,
				RecordedAt:        record.RecordedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) MaxVersion(ctx context.Context, originatorID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var max int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = []byte(eventKeyPrefix + originatorID.String() + "/")
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(eventKey(originatorID, int64(^uint64(0)>>1)))
		if !it.Valid() {
			return nil
		}
		version, ok := versionFromKey(it.Item().Key())
		if !ok {
			return fmt.Errorf("malformed event key: %q", it.Item().Key())
		}
		max = version
		return nil
	})
	if err != nil {
		return 0, err
	}
	return max, nil
}

func (s *BadgerStore) PutSnapshot(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recordedAt := snap.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	value, err := json.Marshal(badgerSnapshotRecord{
		State:      snap.State,
		RecordedAt: recordedAt,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.OriginatorID, snap.OriginatorVersion), value)
	})
	if err != nil {
		return fmt.Errorf("%w: put snapshot: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *BadgerStore) LatestSnapshot(ctx context.Context, originatorID uuid.UUID, atOrBelow int64) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(snapshotKeyPrefix + originatorID.String() + "/")
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(snapshotKey(originatorID, atOrBelow))
		if !it.Valid() {
			return nil
		}
		item := it.Item()
		version, ok := versionFromKey(item.Key())
		if !ok {
			return fmt.Errorf("malformed snapshot key: %q", item.Key())
		}
		var record badgerSnapshotRecord
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		}); err != nil {
			return fmt.Errorf("decode snapshot record: %w", err)
		}
		snap = Snapshot{
			OriginatorID:      originatorID,
			OriginatorVersion: version,
			State:             record.State,
			RecordedAt:        record.RecordedAt,
		}
		found = true
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	if !found {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func eventKey(originatorID uuid.UUID, version int64) []byte {
	return recordKey(eventKeyPrefix, originatorID, version)
}

func snapshotKey(originatorID uuid.UUID, version int64) []byte {
	return recordKey(snapshotKeyPrefix, originatorID, version)
}

func recordKey(prefix string, originatorID uuid.UUID, version int64) []byte {
	key := make([]byte, 0, len(prefix)+36+1+8)
	key = append(key, prefix...)
	key = append(key, originatorID.String()...)
	key = append(key, '/')
	var suffix [8]byte
	binary.BigEndian.PutUint64(suffix[:], uint64(version))
	return append(key, suffix[:]...)
}

func versionFromKey(key []byte) (int64, bool) {
	if len(key) < 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(key[len(key)-8:])), true
}
