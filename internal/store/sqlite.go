package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aki/agentpost/internal/core/agent"
	"github.com/aki/agentpost/internal/core/inbox"
)

const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		session       TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL DEFAULT '',
		registered_at INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		agent_id           TEXT NOT NULL,
		id                 TEXT NOT NULL,
		seq                INTEGER NOT NULL,
		sender             TEXT NOT NULL DEFAULT '',
		type               TEXT NOT NULL,
		priority           INTEGER NOT NULL DEFAULT 0,
		effective_priority INTEGER NOT NULL DEFAULT 0,
		subject            TEXT NOT NULL DEFAULT '',
		content            TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL,
		kind               TEXT NOT NULL,
		category           TEXT NOT NULL,
		state              TEXT NOT NULL,
		metadata           TEXT,
		created_at         INTEGER NOT NULL,
		read_at            INTEGER,
		expires_at         INTEGER NOT NULL DEFAULT 0,
		received_at        INTEGER NOT NULL DEFAULT 0,
		last_updated       INTEGER NOT NULL DEFAULT 0,
		response_time      INTEGER NOT NULL DEFAULT 0,
		escalation_count   INTEGER NOT NULL DEFAULT 0,
		reminder_count     INTEGER NOT NULL DEFAULT 0,
		last_reminder_at   INTEGER NOT NULL DEFAULT 0,
		acknowledged_at    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (agent_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_agent_seq ON messages(agent_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_state ON messages(agent_id, state)`,
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`,
}

// SQLite is a Store backed by a single SQLite database file
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer; WAL lets readers in other processes proceed.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db}
	if err := s.configure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) configure(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, schemaVersion)
	}
	if current < schemaVersion {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			schemaVersion, time.Now().UnixNano()); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// SaveAgent upserts an agent
func (s *SQLite) SaveAgent(ctx context.Context, a agent.Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, session, role, registered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			session = excluded.session,
			role = excluded.role`,
		a.ID, a.Name, a.Session, a.Role, toNanos(a.RegisteredAt))
	if err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}
	return nil
}

// ListAgents returns agents sorted by ID
func (s *SQLite) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, session, role, registered_at FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []agent.Agent
	for rows.Next() {
		var (
			a          agent.Agent
			registered int64
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Session, &a.Role, &registered); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		a.RegisteredAt = fromNanos(registered)
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// DeleteAgent removes an agent and its messages
func (s *SQLite) DeleteAgent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE agent_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return tx.Commit()
}

// InsertMessage stores a new message under its recipient. The arrival
// sequence is assigned inside the insert so writers in other processes
// never hand out the same one.
func (s *SQLite) InsertMessage(ctx context.Context, m inbox.ManagedMessage) (uint64, error) {
	metadata, readAt, err := encodeMessage(m)
	if err != nil {
		return 0, err
	}

	var seq int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO messages (
			agent_id, id, seq, sender, type, priority, effective_priority,
			subject, content, status, kind, category, state, metadata,
			created_at, read_at, expires_at, received_at, last_updated,
			response_time, escalation_count, reminder_count, last_reminder_at, acknowledged_at
		) VALUES (
			?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE agent_id = ?),
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)
		ON CONFLICT(agent_id, id) DO NOTHING
		RETURNING seq`,
		m.Recipient, m.ID, m.Recipient, m.Sender, string(m.Type), int(m.Priority), int(m.EffectivePriority),
		m.Subject, m.Content, string(m.Status), string(m.Kind), string(m.Category), string(m.State), metadata,
		toNanos(m.Timestamp), readAt, toNanos(m.ExpiresAt), toNanos(m.ReceivedAt), toNanos(m.LastUpdated),
		int64(m.Metrics.ResponseTime), m.Metrics.EscalationCount, m.Metrics.ReminderCount,
		toNanos(m.Metrics.LastReminderAt), toNanos(m.Metrics.AcknowledgedAt),
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	return uint64(seq), nil
}

// UpdateMessage writes the mutable columns of m, guarded by the state and
// last-updated time prev was read with
func (s *SQLite) UpdateMessage(ctx context.Context, m, prev inbox.ManagedMessage) error {
	_, readAt, err := encodeMessage(m)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE messages SET
			effective_priority = ?,
			status = ?,
			category = ?,
			state = ?,
			read_at = ?,
			expires_at = ?,
			last_updated = ?,
			response_time = ?,
			escalation_count = ?,
			reminder_count = ?,
			last_reminder_at = ?,
			acknowledged_at = ?
		WHERE agent_id = ? AND id = ? AND state = ? AND last_updated = ?`,
		int(m.EffectivePriority), string(m.Status), string(m.Category), string(m.State),
		readAt, toNanos(m.ExpiresAt), toNanos(m.LastUpdated),
		int64(m.Metrics.ResponseTime), m.Metrics.EscalationCount, m.Metrics.ReminderCount,
		toNanos(m.Metrics.LastReminderAt), toNanos(m.Metrics.AcknowledgedAt),
		m.Recipient, m.ID, string(prev.State), toNanos(prev.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM messages WHERE agent_id = ? AND id = ?`, m.Recipient, m.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check message: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return tx.Commit()
}

func encodeMessage(m inbox.ManagedMessage) (sql.NullString, sql.NullInt64, error) {
	var metadata sql.NullString
	if len(m.Metadata) > 0 {
		raw, err := json.Marshal(m.Metadata)
		if err != nil {
			return metadata, sql.NullInt64{}, fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}
	var readAt sql.NullInt64
	if m.ReadAt != nil {
		readAt = sql.NullInt64{Int64: m.ReadAt.UnixNano(), Valid: true}
	}
	return metadata, readAt, nil
}

// LoadMessages returns an agent's messages in arrival order
func (s *SQLite) LoadMessages(ctx context.Context, agentID string) ([]inbox.ManagedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, sender, type, priority, effective_priority,
			subject, content, status, kind, category, state, metadata,
			created_at, read_at, expires_at, received_at, last_updated,
			response_time, escalation_count, reminder_count, last_reminder_at, acknowledged_at
		FROM messages WHERE agent_id = ? ORDER BY seq`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []inbox.ManagedMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		m.Recipient = agentID
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(rows *sql.Rows) (inbox.ManagedMessage, error) {
	var (
		m                          inbox.ManagedMessage
		seq, responseTime          int64
		priority, effective        int
		msgType, status, kind      string
		category, state            string
		metadata                   sql.NullString
		created, expires           int64
		received, updated          int64
		readAt                     sql.NullInt64
		lastReminder, acknowledged int64
	)
	err := rows.Scan(
		&m.ID, &seq, &m.Sender, &msgType, &priority, &effective,
		&m.Subject, &m.Content, &status, &kind, &category, &state, &metadata,
		&created, &readAt, &expires, &received, &updated,
		&responseTime, &m.Metrics.EscalationCount, &m.Metrics.ReminderCount, &lastReminder, &acknowledged,
	)
	if err != nil {
		return m, fmt.Errorf("failed to scan message: %w", err)
	}

	m.Seq = uint64(seq)
	m.Type = inbox.MessageType(msgType)
	m.Priority = inbox.Priority(priority)
	m.EffectivePriority = inbox.Priority(effective)
	m.Status = inbox.DeliveryStatus(status)
	m.Kind = inbox.Kind(kind)
	m.Category = inbox.Category(category)
	m.State = inbox.State(state)
	m.Timestamp = fromNanos(created)
	m.ExpiresAt = fromNanos(expires)
	m.ReceivedAt = fromNanos(received)
	m.LastUpdated = fromNanos(updated)
	m.Metrics.ResponseTime = time.Duration(responseTime)
	m.Metrics.LastReminderAt = fromNanos(lastReminder)
	m.Metrics.AcknowledgedAt = fromNanos(acknowledged)
	if readAt.Valid {
		t := fromNanos(readAt.Int64)
		m.ReadAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
			return m, fmt.Errorf("failed to decode metadata for %s: %w", m.ID, err)
		}
	}
	return m, nil
}

// DeleteMessages removes messages by ID; unknown IDs are ignored
func (s *SQLite) DeleteMessages(ctx context.Context, agentID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM messages WHERE agent_id = ? AND id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, agentID, id); err != nil {
			return fmt.Errorf("failed to delete message %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Close closes the database
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
