// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	xglog "github.com/ManuGH/fractal/internal/log"
)

// FileSink stores artifacts as JSON files below a root directory:
//
//	<root>/<asset>/snapshot.json
//	<root>/<asset>/progress.json
//	<root>/<asset>/timeline/<ts>-<runId>.json
//
// Every file is written atomically and durably.
type FileSink struct {
	root string
}

func NewFileSink(root string) (*FileSink, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FileSink{root: root}, nil
}

func (f *FileSink) assetDir(asset model.Asset) string {
	return filepath.Join(f.root, strings.ToLower(string(asset)))
}

func (f *FileSink) WriteSnapshot(ctx context.Context, asset model.Asset, snap dailyrun.Snapshot) error {
	return writeJSON(ctx, filepath.Join(f.assetDir(asset), "snapshot.json"), snap)
}

func (f *FileSink) WriteProgress(ctx context.Context, asset model.Asset, st *model.State) error {
	return writeJSON(ctx, filepath.Join(f.assetDir(asset), "progress.json"), st)
}

func (f *FileSink) WriteTimeline(ctx context.Context, asset model.Asset, e dailyrun.TimelineEntry) error {
	return writeJSON(ctx, filepath.Join(f.assetDir(asset), "timeline", timelineKey(e)+".json"), e)
}

func (f *FileSink) LatestSnapshot(_ context.Context, asset model.Asset) (dailyrun.Snapshot, error) {
	var snap dailyrun.Snapshot
	err := readJSON(filepath.Join(f.assetDir(asset), "snapshot.json"), &snap)
	return snap, err
}

func (f *FileSink) Progress(_ context.Context, asset model.Asset) (*model.State, error) {
	var st model.State
	if err := readJSON(filepath.Join(f.assetDir(asset), "progress.json"), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (f *FileSink) Timeline(_ context.Context, asset model.Asset, limit int) ([]dailyrun.TimelineEntry, error) {
	dir := filepath.Join(f.assetDir(asset), "timeline")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []dailyrun.TimelineEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read timeline dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	out := make([]dailyrun.TimelineEntry, 0, len(names))
	for _, name := range names {
		var e dailyrun.TimelineEntry
		if err := readJSON(filepath.Join(dir, name), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *FileSink) Close() error { return nil }

// writeJSON replaces path atomically: temp file, fsync, rename.
func writeJSON(ctx context.Context, path string, v any) error {
	logger := xglog.FromContext(ctx)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create dir for %s: %w", filepath.Base(path), err)
	}
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("create pending file %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Str("path", path).Msg("cleanup pending file")
		}
	}()

	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the sink root
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
