package internal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	remote_id   TEXT NOT NULL,
	username    TEXT NOT NULL,
	title       TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	archived_at TEXT NOT NULL,
	PRIMARY KEY (username, remote_id)
);
CREATE TABLE IF NOT EXISTS messages (
	username   TEXT NOT NULL,
	session_id TEXT NOT NULL,
	position   INTEGER NOT NULL,
	message_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	author     TEXT,
	timestamp  TEXT NOT NULL,
	PRIMARY KEY (username, session_id, position)
);
`

// ArchiveSummary is a per-user overview of an archive
type ArchiveSummary struct {
	Username     string
	Sessions     int
	Messages     int
	LastArchived string
}

// OpenArchive opens (creating if needed) a SQLite archive and applies the schema
func OpenArchive(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive ping failed: %w", err)
	}
	if err := InitArchive(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitArchive creates the archive tables on an open database
func InitArchive(db *sql.DB) error {
	if _, err := db.Exec(archiveSchema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// WriteArchive stores a snapshot of the user's remote-backed sessions.
// Sessions without a remote id are skipped; re-archiving a session replaces
// its previous rows. It returns the number of sessions written.
func WriteArchive(ctx context.Context, db *sql.DB, username string, sessions []Session) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	written := 0
	for _, s := range sessions {
		if s.RemoteID == "" {
			LogDebug("Skipping unsent session %s", s.LocalID)
			continue
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO sessions (remote_id, username, title, created_at, archived_at) VALUES (?, ?, ?, ?, ?)`,
			s.RemoteID, username, s.Title, s.CreatedAt.UTC().Format(time.RFC3339Nano), now); err != nil {
			return 0, fmt.Errorf("failed to archive session %s: %w", s.RemoteID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE username = ? AND session_id = ?`, username, s.RemoteID); err != nil {
			return 0, fmt.Errorf("failed to clear messages of %s: %w", s.RemoteID, err)
		}
		for i, m := range s.Messages {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO messages (username, session_id, position, message_id, role, content, author, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				username, s.RemoteID, i, m.ID, string(m.Role), m.Content, m.Author, m.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
				return 0, fmt.Errorf("failed to archive message %d of %s: %w", i, s.RemoteID, err)
			}
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit archive: %w", err)
	}
	return written, nil
}

// SummarizeArchive returns one row per archived user
func SummarizeArchive(ctx context.Context, db *sql.DB) ([]ArchiveSummary, error) {
	query := `
SELECT s.username,
       COUNT(DISTINCT s.remote_id),
       (SELECT COUNT(*) FROM messages m WHERE m.username = s.username),
       MAX(s.archived_at)
FROM sessions s
GROUP BY s.username
ORDER BY s.username`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []ArchiveSummary
	for rows.Next() {
		var sum ArchiveSummary
		var last sql.NullString
		if err := rows.Scan(&sum.Username, &sum.Sessions, &sum.Messages, &last); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		sum.LastArchived = last.String
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}
