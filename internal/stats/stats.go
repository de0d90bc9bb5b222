// Package stats provides a PostgreSQL-backed counter of served downloads.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS download_stats (
	app_name      TEXT NOT NULL,
	platform      TEXT NOT NULL,
	download_count BIGINT NOT NULL DEFAULT 0,
	last_download  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (app_name, platform)
)`

// Entry is one row of per-app, per-platform download counts.
type Entry struct {
	AppName      string    `json:"app_name"`
	Platform     string    `json:"platform"`
	Count        int64     `json:"download_count"`
	LastDownload time.Time `json:"last_download"`
}

// Store records and reports download counts.
type Store struct {
	db *sql.DB
}

// New opens the database and ensures the stats table exists.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create stats table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record increments the download counter for an app/platform pair.
func (s *Store) Record(ctx context.Context, appName, platform string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO download_stats (app_name, platform, download_count, last_download)
		 VALUES ($1, $2, 1, NOW())
		 ON CONFLICT (app_name, platform) DO UPDATE SET
			download_count = download_stats.download_count + 1,
			last_download = NOW()`,
		appName, platform)
	if err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	return nil
}

// List returns all counters ordered by count descending.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT app_name, platform, download_count, last_download
		 FROM download_stats ORDER BY download_count DESC, app_name, platform`)
	if err != nil {
		return nil, fmt.Errorf("list download stats: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.AppName, &e.Platform, &e.Count, &e.LastDownload); err != nil {
			return nil, fmt.Errorf("scan download stats: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
