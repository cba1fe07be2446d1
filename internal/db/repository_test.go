package db

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integration-school-portal/internal/model"
	perrors "integration-school-portal/pkg/errors"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, mock
}

func sampleSnapshot() *model.Snapshot {
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	return &model.Snapshot{
		Identifier: "jan.kowalski",
		WeekStart:  "2026-03-02",
		Grades: []model.GradeEntry{
			{Subject: "Matematyka", Value: "5", Category: "sprawdzian", Date: &date, Semester: 2},
			{Subject: "Fizyka", Value: "3+", Semester: 1},
		},
		Timetable: model.TimetableMap{"2026-03-02": {{LessonNumber: 1, Subject: "Fizyka"}}},
		Attendance: model.Summarize([]model.AttendanceRecord{
			{Label: "nieobecność", Category: model.AttendanceAbsence},
		}),
		Status: map[model.Resource]model.ResourceStatus{model.ResourceGrades: model.ResourceOK},
		Errors: map[model.Resource]string{},
	}
}

func TestSaveSnapshot(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewRepository(conn)
	snapshot := sampleSnapshot()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO portal_snapshots")).
		WithArgs("jan.kowalski", "2026-03-02", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO snapshot_grades")).
		WithArgs(int64(7), "Matematyka", "5", "sprawdzian", "2026-02-10", int64(2)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO snapshot_grades")).
		WithArgs(int64(7), "Fizyka", "3+", "", nil, int64(1)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	id, err := repo.SaveSnapshot(context.Background(), snapshot)
	require.NoError(t, err)

	assert.Equal(t, int64(7), id)
	assert.Equal(t, int64(7), snapshot.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSnapshotRollsBackOnGradeFailure(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewRepository(conn)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO portal_snapshots")).
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO snapshot_grades")).
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	_, err := repo.SaveSnapshot(context.Background(), sampleSnapshot())

	assert.EqualError(t, err, "deadlock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func snapshotRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "identifier", "week_start", "grades", "timetable", "attendance", "status", "errors", "created_at"})
}

func TestLatestSnapshot(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewRepository(conn)
	created := time.Date(2026, 3, 4, 7, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM portal_snapshots")).
		WithArgs("jan.kowalski").
		WillReturnRows(snapshotRows().AddRow(
			int64(9), "jan.kowalski", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			[]byte(`[{"subject":"Fizyka","value":"3+","semester":1}]`),
			[]byte(`{"2026-03-02":[{"lesson_number":1,"subject":"Fizyka"}]}`),
			[]byte(`{"labels":{},"categories":{},"total":0,"unclassified":0,"presence_percentage":100}`),
			[]byte(`{"grades":"ok","timetable":"degraded"}`),
			nil,
			created,
		))

	s, err := repo.LatestSnapshot(context.Background(), "jan.kowalski")
	require.NoError(t, err)

	assert.Equal(t, int64(9), s.ID)
	assert.Equal(t, "2026-03-02", s.WeekStart)
	assert.Equal(t, created, s.CreatedAt)
	require.Len(t, s.Grades, 1)
	assert.Equal(t, "3+", s.Grades[0].Value)
	assert.Len(t, s.Timetable["2026-03-02"], 1)
	assert.Equal(t, 100, s.Attendance.PresencePercentage)
	assert.Equal(t, model.ResourceDegraded, s.Status[model.ResourceTimetable])
	assert.Nil(t, s.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSnapshotNotFound(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewRepository(conn)

	mock.ExpectQuery(regexp.QuoteMeta("FROM portal_snapshots")).
		WithArgs("nobody").
		WillReturnRows(snapshotRows())

	_, err := repo.LatestSnapshot(context.Background(), "nobody")

	assert.True(t, errors.Is(err, perrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSnapshotCorruptPayload(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewRepository(conn)

	mock.ExpectQuery(regexp.QuoteMeta("FROM portal_snapshots")).
		WillReturnRows(snapshotRows().AddRow(
			int64(1), "x", time.Now(), []byte(`{`), []byte(`{}`), []byte(`{}`), []byte(`{}`), nil, time.Now(),
		))

	_, err := repo.LatestSnapshot(context.Background(), "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "grades")
}

func TestListSnapshots(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewRepository(conn)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM portal_snapshots")).
		WithArgs("jan.kowalski", int64(10)).
		WillReturnRows(snapshotRows().
			AddRow(int64(2), "jan.kowalski", now, []byte(`[]`), []byte(`{}`), []byte(`{}`), []byte(`{}`), nil, now).
			AddRow(int64(1), "jan.kowalski", now, []byte(`[]`), []byte(`{}`), []byte(`{}`), []byte(`{}`), nil, now))

	snapshots, err := repo.ListSnapshots(context.Background(), "jan.kowalski", 0)
	require.NoError(t, err)

	require.Len(t, snapshots, 2)
	assert.Equal(t, int64(2), snapshots[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS portal_snapshots")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS snapshot_grades")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), conn))
	assert.NoError(t, mock.ExpectationsWereMet())
}
