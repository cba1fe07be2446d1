package db

import (
	"context"
	"database/sql"

	"integration-school-portal/internal/config"

	_ "github.com/go-sql-driver/mysql"
)

func NewConnection(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS portal_snapshots (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		identifier VARCHAR(128) NOT NULL,
		week_start DATE NOT NULL,
		grades JSON NOT NULL,
		timetable JSON NOT NULL,
		attendance JSON NOT NULL,
		status JSON NOT NULL,
		errors JSON NULL,
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		INDEX idx_snapshots_identifier_created (identifier, created_at)
	) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS snapshot_grades (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		snapshot_id BIGINT NOT NULL,
		subject VARCHAR(255) NOT NULL,
		value VARCHAR(32) NOT NULL,
		category VARCHAR(255) NOT NULL DEFAULT '',
		grade_date DATE NULL,
		semester TINYINT NOT NULL,
		INDEX idx_snapshot_grades_snapshot (snapshot_id),
		FOREIGN KEY (snapshot_id) REFERENCES portal_snapshots (id) ON DELETE CASCADE
	) DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the snapshot tables when they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
