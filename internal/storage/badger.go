// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// BadgerSink stores artifacts in an embedded Badger database.
//   - snapshots: key = "snap:<asset>" (JSON, latest only)
//   - progress:  key = "prog:<asset>" (JSON, latest only)
//   - timeline:  key = "tl:<asset>:<ts>-<runId>" (JSON)
type BadgerSink struct {
	db *badger.DB
}

func OpenBadgerSink(path string) (*BadgerSink, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerSink{db: db}, nil
}

func (s *BadgerSink) Close() error { return s.db.Close() }

func snapKey(a model.Asset) []byte        { return []byte("snap:" + string(a)) }
func progKey(a model.Asset) []byte        { return []byte("prog:" + string(a)) }
func timelinePrefix(a model.Asset) []byte { return []byte("tl:" + string(a) + ":") }

func (s *BadgerSink) put(key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

func (s *BadgerSink) get(key []byte, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *BadgerSink) WriteSnapshot(_ context.Context, asset model.Asset, snap dailyrun.Snapshot) error {
	return s.put(snapKey(asset), snap)
}

func (s *BadgerSink) WriteProgress(_ context.Context, asset model.Asset, st *model.State) error {
	return s.put(progKey(asset), st)
}

func (s *BadgerSink) WriteTimeline(_ context.Context, asset model.Asset, e dailyrun.TimelineEntry) error {
	key := append(timelinePrefix(asset), timelineKey(e)...)
	return s.put(key, e)
}

func (s *BadgerSink) LatestSnapshot(_ context.Context, asset model.Asset) (dailyrun.Snapshot, error) {
	var snap dailyrun.Snapshot
	err := s.get(snapKey(asset), &snap)
	return snap, err
}

func (s *BadgerSink) Progress(_ context.Context, asset model.Asset) (*model.State, error) {
	var st model.State
	if err := s.get(progKey(asset), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *BadgerSink) Timeline(_ context.Context, asset model.Asset, limit int) ([]dailyrun.TimelineEntry, error) {
	prefix := timelinePrefix(asset)
	out := []dailyrun.TimelineEntry{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var e dailyrun.TimelineEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
