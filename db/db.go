package db

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/biostream/internal/acquire"
	"github.com/banshee-data/biostream/internal/monitoring"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			simulated BOOLEAN,
			channel_count INTEGER,
			sample_rate DOUBLE,
			started_at TIMESTAMP,
			stopped_at TIMESTAMP,
			samples_emitted BIGINT,
			frames_decoded BIGINT,
			checksum_failures BIGINT,
			blocks_dropped BIGINT
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// RecordSession implements acquire.SessionRecorder.
func (db *DB) RecordSession(s acquire.SessionSummary) error {
	_, err := db.Exec(`
		INSERT INTO sessions (
			session_id, simulated, channel_count, sample_rate,
			started_at, stopped_at, samples_emitted,
			frames_decoded, checksum_failures, blocks_dropped
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Simulated, s.ChannelCount, s.SampleRate,
		s.StartedAt, s.StoppedAt, s.SamplesEmitted,
		s.FramesDecoded, s.ChecksumFailures, s.BlocksDropped)
	if err != nil {
		return fmt.Errorf("record session %s: %w", s.ID, err)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]acquire.SessionSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT session_id, simulated, channel_count, sample_rate,
			started_at, stopped_at, samples_emitted,
			frames_decoded, checksum_failures, blocks_dropped
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []acquire.SessionSummary
	for rows.Next() {
		var s acquire.SessionSummary
		var started, stopped time.Time
		if err := rows.Scan(&s.ID, &s.Simulated, &s.ChannelCount, &s.SampleRate,
			&started, &stopped, &s.SamplesEmitted,
			&s.FramesDecoded, &s.ChecksumFailures, &s.BlocksDropped); err != nil {
			return nil, err
		}
		s.StartedAt = started
		s.StoppedAt = stopped
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://sessions.db", db.DB, &tailsql.DBOptions{
		Label: "Session DB",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
}
