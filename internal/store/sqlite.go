package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/clinica-duran/eva/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for
// local development and single-instance deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS messages (
	id                  TEXT PRIMARY KEY,
	conversation_id     TEXT NOT NULL,
	contact_id          TEXT NOT NULL,
	direction           TEXT NOT NULL,
	kind                TEXT NOT NULL DEFAULT 'text',
	body                TEXT NOT NULL,
	transcript_provider TEXT,
	used_fallback       INTEGER NOT NULL DEFAULT 0,
	severity            TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS escalations (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	reason          TEXT NOT NULL,
	priority        TEXT NOT NULL,
	severity        TEXT NOT NULL,
	notes           TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS normalization_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	processed   INTEGER NOT NULL DEFAULT 0,
	applied     INTEGER NOT NULL DEFAULT 0,
	review      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS consents (
	contact_id TEXT PRIMARY KEY,
	granted    INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_direction ON messages(direction);
CREATE INDEX IF NOT EXISTS idx_escalations_conversation ON escalations(conversation_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, msg model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, contact_id, direction, kind, body, transcript_provider, used_fallback, severity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.ContactID, string(msg.Direction), string(msg.Kind),
		msg.Body, msg.TranscriptProvider, msg.UsedFallback, msg.Severity, msg.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert message")
}

func (s *SQLiteStore) ListMessages(ctx context.Context, filter MessageFilter) ([]model.Message, error) {
	query := `SELECT id, conversation_id, contact_id, direction, kind, body, transcript_provider, used_fallback, severity, created_at FROM messages WHERE true`
	args := []any{}

	if filter.Direction != "" {
		query += ` AND direction = ?`
		args = append(args, string(filter.Direction))
	}
	if filter.ConversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, filter.ConversationID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list messages")
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var provider, severity sql.NullString

		if err := rows.Scan(&m.ID, &m.ConversationID, &m.ContactID, &m.Direction, &m.Kind,
			&m.Body, &provider, &m.UsedFallback, &severity, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan message")
		}
		m.TranscriptProvider = provider.String
		m.Severity = severity.String
		messages = append(messages, m)
	}
	return messages, eris.Wrap(rows.Err(), "sqlite: list messages iterate")
}

func (s *SQLiteStore) SaveEscalation(ctx context.Context, esc model.Escalation) error {
	if esc.ID == "" {
		esc.ID = uuid.New().String()
	}
	if esc.CreatedAt.IsZero() {
		esc.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO escalations (id, conversation_id, reason, priority, severity, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		esc.ID, esc.ConversationID, esc.Reason, esc.Priority, esc.Severity, esc.Notes, esc.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert escalation")
}

func (s *SQLiteStore) ListEscalations(ctx context.Context, limit int) ([]model.Escalation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, reason, priority, severity, notes, created_at
		 FROM escalations ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list escalations")
	}
	defer rows.Close()

	var escalations []model.Escalation
	for rows.Next() {
		var e model.Escalation
		var notes sql.NullString
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Reason, &e.Priority, &e.Severity, &notes, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan escalation")
		}
		e.Notes = notes.String
		escalations = append(escalations, e)
	}
	return escalations, eris.Wrap(rows.Err(), "sqlite: list escalations iterate")
}

func (s *SQLiteStore) CreateNormalizationRun(ctx context.Context) (*model.NormalizationRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO normalization_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert normalization run")
	}

	return &model.NormalizationRun{
		ID:        id,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishNormalizationRun(ctx context.Context, runID string, status model.RunStatus, stats model.NormalizationStats) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE normalization_runs
		 SET status = ?, processed = ?, applied = ?, review = ?, skipped = ?, failed = ?, finished_at = ?
		 WHERE id = ?`,
		string(status), stats.Processed, stats.Applied, stats.Review, stats.Skipped, stats.Failed,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish normalization run %s", runID)
	}
	return checkRowsAffected(res, "normalization run", runID)
}

func (s *SQLiteStore) SetConsent(ctx context.Context, contactID string, granted bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consents (contact_id, granted, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (contact_id) DO UPDATE SET granted = excluded.granted, updated_at = excluded.updated_at`,
		contactID, granted, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: set consent")
}

func (s *SQLiteStore) GetConsent(ctx context.Context, contactID string) (*model.Consent, error) {
	var c model.Consent
	err := s.db.QueryRowContext(ctx,
		`SELECT contact_id, granted, updated_at FROM consents WHERE contact_id = ?`,
		contactID,
	).Scan(&c.ContactID, &c.Granted, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get consent")
	}
	return &c, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
