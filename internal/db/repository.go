package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"integration-school-portal/internal/model"
	perrors "integration-school-portal/pkg/errors"
)

type Repository interface {
	SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) (int64, error)
	LatestSnapshot(ctx context.Context, identifier string) (*model.Snapshot, error)
	ListSnapshots(ctx context.Context, identifier string, limit int) ([]model.Snapshot, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const snapshotColumns = `id, identifier, week_start, grades, timetable, attendance, status, errors, created_at`

// SaveSnapshot stores the snapshot and one row per grade in a single
// transaction and returns the new snapshot id.
func (r *repository) SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) (int64, error) {
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `INSERT INTO portal_snapshots (identifier, week_start, grades, timetable, attendance, status, errors)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, query, snapshot.Identifier, snapshot.WeekStart,
		payload[0], payload[1], payload[2], payload[3], payload[4])
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	gradeQuery := `INSERT INTO snapshot_grades (snapshot_id, subject, value, category, grade_date, semester)
				   VALUES (?, ?, ?, ?, ?, ?)`
	for _, g := range snapshot.Grades {
		var date *string
		if g.Date != nil {
			d := model.FormatDate(*g.Date)
			date = &d
		}
		if _, err := tx.ExecContext(ctx, gradeQuery, id, g.Subject, g.Value, g.Category, date, g.Semester); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	snapshot.ID = id
	return id, nil
}

func (r *repository) LatestSnapshot(ctx context.Context, identifier string) (*model.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM portal_snapshots
			  WHERE identifier = ? ORDER BY created_at DESC, id DESC LIMIT 1`

	snapshot, err := scanSnapshot(r.db.QueryRowContext(ctx, query, identifier))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, perrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (r *repository) ListSnapshots(ctx context.Context, identifier string, limit int) ([]model.Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + snapshotColumns + ` FROM portal_snapshots
			  WHERE identifier = ? ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, identifier, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := []model.Snapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *s)
	}
	return snapshots, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*model.Snapshot, error) {
	var (
		s                                             model.Snapshot
		week                                          time.Time
		grades, timetable, attendance, status, errsJS []byte
	)
	if err := row.Scan(&s.ID, &s.Identifier, &week, &grades, &timetable, &attendance, &status, &errsJS, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.WeekStart = model.FormatDate(week)

	fields := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"grades", grades, &s.Grades},
		{"timetable", timetable, &s.Timetable},
		{"attendance", attendance, &s.Attendance},
		{"status", status, &s.Status},
		{"errors", errsJS, &s.Errors},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %d %s: %w", s.ID, f.name, err)
		}
	}
	return &s, nil
}

func encodeSnapshot(s *model.Snapshot) ([5][]byte, error) {
	var out [5][]byte
	for i, v := range []any{s.Grades, s.Timetable, s.Attendance, s.Status, s.Errors} {
		data, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("failed to encode snapshot: %w", err)
		}
		out[i] = data
	}
	return out, nil
}
