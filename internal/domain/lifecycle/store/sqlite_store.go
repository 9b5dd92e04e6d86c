package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/persistence/sqlite"
)

const (
	schemaVersion = 2 // v2: daily_runs
)

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (or creates) the lifecycle database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lifecycle store: migration failed: %w", err)
	}

	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS lifecycle_states (
		asset TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		system_mode TEXT NOT NULL,
		live_samples INTEGER NOT NULL,
		drift_severity TEXT NOT NULL,
		constitution_hash TEXT,
		warmup_target_days INTEGER NOT NULL,
		warmup_started_at_ms INTEGER,
		last_transition_reason TEXT,
		applied_at_ms INTEGER,
		revoked_at_ms INTEGER,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lifecycle_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		asset TEXT NOT NULL,
		type TEXT NOT NULL,
		from_status TEXT,
		to_status TEXT NOT NULL,
		reason TEXT,
		ts_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lifecycle_events_asset ON lifecycle_events(asset, seq);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}

	if currentVersion < 2 {
		runs := `
		CREATE TABLE IF NOT EXISTS daily_runs (
			run_id TEXT PRIMARY KEY,
			asset TEXT NOT NULL,
			status TEXT NOT NULL,
			finished_at_ms INTEGER NOT NULL,
			record_json TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_daily_runs_asset ON daily_runs(asset, finished_at_ms);
		`
		if _, err := tx.Exec(runs); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}

	return tx.Commit()
}

// --- States ---

const stateColumns = `asset, status, system_mode, live_samples, drift_severity, constitution_hash,
	warmup_target_days, warmup_started_at_ms, last_transition_reason, applied_at_ms, revoked_at_ms,
	created_at_ms, updated_at_ms`

func (s *SqliteStore) Get(ctx context.Context, asset model.Asset) (*model.State, error) {
	return scanState(s.DB.QueryRowContext(ctx, "SELECT "+stateColumns+" FROM lifecycle_states WHERE asset = ?", asset))
}

func (s *SqliteStore) List(ctx context.Context) ([]*model.State, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT "+stateColumns+" FROM lifecycle_states ORDER BY asset")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SqliteStore) Update(ctx context.Context, asset model.Asset, fn UpdateFunc) (*model.State, []model.Event, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanState(tx.QueryRowContext(ctx, "SELECT "+stateColumns+" FROM lifecycle_states WHERE asset = ?", asset))
	if err != nil {
		return nil, nil, err
	}

	next, events, err := fn(cur.Clone())
	if err != nil {
		return nil, nil, err
	}
	if err := checkNext(asset, cur, next, events); err != nil {
		return nil, nil, err
	}

	if next != nil {
		if err := putState(ctx, tx, next); err != nil {
			return nil, nil, err
		}
	}

	appended := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.ModelID == "" {
			ev.ModelID = asset
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO lifecycle_events (asset, type, from_status, to_status, reason, ts_ms) VALUES (?, ?, ?, ?, ?, ?)",
			ev.ModelID, ev.Type, ev.FromStatus, ev.ToStatus, ev.Reason, ev.Timestamp.UnixMilli())
		if err != nil {
			return nil, nil, err
		}
		if ev.Seq, err = res.LastInsertId(); err != nil {
			return nil, nil, err
		}
		appended = append(appended, ev)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	if next == nil {
		return cur, appended, nil
	}
	return next, appended, nil
}

func putState(ctx context.Context, tx *sql.Tx, st *model.State) error {
	query := `
	INSERT INTO lifecycle_states (` + stateColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(asset) DO UPDATE SET
		status = excluded.status,
		system_mode = excluded.system_mode,
		live_samples = excluded.live_samples,
		drift_severity = excluded.drift_severity,
		constitution_hash = excluded.constitution_hash,
		warmup_target_days = excluded.warmup_target_days,
		warmup_started_at_ms = excluded.warmup_started_at_ms,
		last_transition_reason = excluded.last_transition_reason,
		applied_at_ms = excluded.applied_at_ms,
		revoked_at_ms = excluded.revoked_at_ms,
		updated_at_ms = excluded.updated_at_ms
	`
	_, err := tx.ExecContext(ctx, query,
		st.Asset, st.Status, st.SystemMode, st.LiveSamples, st.DriftSeverity, st.ConstitutionHash,
		st.WarmupTargetDays, timeToNullMs(st.WarmupStartedAt), st.LastTransitionReason,
		timeToNullMs(st.AppliedAt), timeToNullMs(st.RevokedAt),
		st.CreatedAt.UnixMilli(), st.UpdatedAt.UnixMilli(),
	)
	return err
}

func scanState(scanner interface {
	Scan(dest ...any) error
}) (*model.State, error) {
	var (
		st                         model.State
		hash, reason               sql.NullString
		warmupAt, appliedAt, revAt sql.NullInt64
		createdMs, updatedMs       int64
	)
	err := scanner.Scan(
		&st.Asset, &st.Status, &st.SystemMode, &st.LiveSamples, &st.DriftSeverity, &hash,
		&st.WarmupTargetDays, &warmupAt, &reason, &appliedAt, &revAt,
		&createdMs, &updatedMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.ConstitutionHash = hash.String
	st.LastTransitionReason = reason.String
	st.WarmupStartedAt = nullMsToTime(warmupAt)
	st.AppliedAt = nullMsToTime(appliedAt)
	st.RevokedAt = nullMsToTime(revAt)
	st.CreatedAt = time.UnixMilli(createdMs).UTC()
	st.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &st, nil
}

// --- Events ---

func (s *SqliteStore) Events(ctx context.Context, q EventQuery) ([]model.Event, error) {
	query := "SELECT seq, asset, type, from_status, to_status, reason, ts_ms FROM lifecycle_events WHERE seq > ?"
	args := []any{q.AfterSeq}
	if q.Asset != "" {
		query += " AND asset = ?"
		args = append(args, q.Asset)
	}
	query += " ORDER BY seq DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []model.Event{}
	for rows.Next() {
		var (
			ev        model.Event
			from, why sql.NullString
			tsMs      int64
		)
		if err := rows.Scan(&ev.Seq, &ev.ModelID, &ev.Type, &from, &ev.ToStatus, &why, &tsMs); err != nil {
			return nil, err
		}
		ev.FromStatus = model.Status(from.String)
		ev.Reason = why.String
		ev.Timestamp = time.UnixMilli(tsMs).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SqliteStore) LastEventSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.DB.QueryRowContext(ctx, "SELECT MAX(seq) FROM lifecycle_events").Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// --- Runs ---

func (s *SqliteStore) SaveRun(ctx context.Context, rec *model.RunRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("lifecycle store: encode run: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
	INSERT INTO daily_runs (run_id, asset, status, finished_at_ms, record_json)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		status = excluded.status,
		finished_at_ms = excluded.finished_at_ms,
		record_json = excluded.record_json
	`, rec.Meta.RunID, rec.Asset, rec.Meta.Status, rec.TS.UnixMilli(), raw)
	return err
}

func (s *SqliteStore) LastRun(ctx context.Context, asset model.Asset) (*model.RunRecord, error) {
	runs, err := s.ListRuns(ctx, asset, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

func (s *SqliteStore) ListRuns(ctx context.Context, asset model.Asset, limit int) ([]*model.RunRecord, error) {
	query := "SELECT record_json FROM daily_runs"
	var args []any
	if asset != "" {
		query += " WHERE asset = ?"
		args = append(args, asset)
	}
	query += " ORDER BY finished_at_ms DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.RunRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec model.RunRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("lifecycle store: decode run: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func timeToNullMs(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullMsToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
