package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/clinica-duran/eva/internal/db"
	"github.com/clinica-duran/eva/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path webhook writes.
var preparedStatements = map[string]string{
	"insert_message":    `INSERT INTO messages (id, conversation_id, contact_id, direction, kind, body, transcript_provider, used_fallback, severity, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"insert_escalation": `INSERT INTO escalations (id, conversation_id, reason, priority, severity, notes, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_consent":       `SELECT contact_id, granted, updated_at FROM consents WHERE contact_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct access (e.g., bulk history backfill).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS messages (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	conversation_id     TEXT NOT NULL,
	contact_id          TEXT NOT NULL,
	direction           TEXT NOT NULL,
	kind                TEXT NOT NULL DEFAULT 'text',
	body                TEXT NOT NULL,
	transcript_provider TEXT,
	used_fallback       BOOLEAN NOT NULL DEFAULT false,
	severity            TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS escalations (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	conversation_id TEXT NOT NULL,
	reason          TEXT NOT NULL,
	priority        TEXT NOT NULL,
	severity        TEXT NOT NULL,
	notes           TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS normalization_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status      TEXT NOT NULL DEFAULT 'running',
	processed   INTEGER NOT NULL DEFAULT 0,
	applied     INTEGER NOT NULL DEFAULT 0,
	review      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS consents (
	contact_id TEXT PRIMARY KEY,
	granted    BOOLEAN NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_direction ON messages(direction);
CREATE INDEX IF NOT EXISTS idx_escalations_conversation ON escalations(conversation_id);
CREATE INDEX IF NOT EXISTS idx_normalization_runs_status ON normalization_runs(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveMessage(ctx context.Context, msg model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, contact_id, direction, kind, body, transcript_provider, used_fallback, severity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, msg.ConversationID, msg.ContactID, string(msg.Direction), string(msg.Kind),
		msg.Body, msg.TranscriptProvider, msg.UsedFallback, msg.Severity, msg.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert message")
}

func (s *PostgresStore) ListMessages(ctx context.Context, filter MessageFilter) ([]model.Message, error) {
	query := `SELECT id, conversation_id, contact_id, direction, kind, body, transcript_provider, used_fallback, severity, created_at FROM messages WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Direction != "" {
		query += fmt.Sprintf(` AND direction = $%d`, argIdx)
		args = append(args, string(filter.Direction))
		argIdx++
	}
	if filter.ConversationID != "" {
		query += fmt.Sprintf(` AND conversation_id = $%d`, argIdx)
		args = append(args, filter.ConversationID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list messages")
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var provider, severity *string

		if err := rows.Scan(&m.ID, &m.ConversationID, &m.ContactID, &m.Direction, &m.Kind,
			&m.Body, &provider, &m.UsedFallback, &severity, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan message")
		}
		if provider != nil {
			m.TranscriptProvider = *provider
		}
		if severity != nil {
			m.Severity = *severity
		}
		messages = append(messages, m)
	}
	return messages, eris.Wrap(rows.Err(), "postgres: list messages iterate")
}

// BulkInsertMessages backfills message history via COPY. Duplicate IDs
// fail the whole batch, so callers should only backfill conversations
// that have never been imported.
func (s *PostgresStore) BulkInsertMessages(ctx context.Context, messages []model.Message) (int64, error) {
	columns := []string{"id", "conversation_id", "contact_id", "direction", "kind", "body", "transcript_provider", "used_fallback", "severity", "created_at"}
	rows := make([][]any, 0, len(messages))
	for _, m := range messages {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		rows = append(rows, []any{
			m.ID, m.ConversationID, m.ContactID, string(m.Direction), string(m.Kind),
			m.Body, m.TranscriptProvider, m.UsedFallback, m.Severity, m.CreatedAt,
		})
	}
	return db.CopyFrom(ctx, s.pool, "messages", columns, rows)
}

func (s *PostgresStore) SaveEscalation(ctx context.Context, esc model.Escalation) error {
	if esc.ID == "" {
		esc.ID = uuid.New().String()
	}
	if esc.CreatedAt.IsZero() {
		esc.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO escalations (id, conversation_id, reason, priority, severity, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		esc.ID, esc.ConversationID, esc.Reason, esc.Priority, esc.Severity, esc.Notes, esc.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert escalation")
}

func (s *PostgresStore) ListEscalations(ctx context.Context, limit int) ([]model.Escalation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, reason, priority, severity, notes, created_at
		 FROM escalations ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list escalations")
	}
	defer rows.Close()

	var escalations []model.Escalation
	for rows.Next() {
		var e model.Escalation
		var notes *string
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Reason, &e.Priority, &e.Severity, &notes, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan escalation")
		}
		if notes != nil {
			e.Notes = *notes
		}
		escalations = append(escalations, e)
	}
	return escalations, eris.Wrap(rows.Err(), "postgres: list escalations iterate")
}

func (s *PostgresStore) CreateNormalizationRun(ctx context.Context) (*model.NormalizationRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO normalization_runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert normalization run")
	}

	return &model.NormalizationRun{
		ID:        id,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) FinishNormalizationRun(ctx context.Context, runID string, status model.RunStatus, stats model.NormalizationStats) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE normalization_runs
		 SET status = $1, processed = $2, applied = $3, review = $4, skipped = $5, failed = $6, finished_at = $7
		 WHERE id = $8`,
		string(status), stats.Processed, stats.Applied, stats.Review, stats.Skipped, stats.Failed,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish normalization run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("normalization run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) SetConsent(ctx context.Context, contactID string, granted bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO consents (contact_id, granted, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (contact_id) DO UPDATE SET granted = $2, updated_at = $3`,
		contactID, granted, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: set consent")
}

func (s *PostgresStore) GetConsent(ctx context.Context, contactID string) (*model.Consent, error) {
	var c model.Consent
	err := s.pool.QueryRow(ctx,
		`SELECT contact_id, granted, updated_at FROM consents WHERE contact_id = $1`,
		contactID,
	).Scan(&c.ContactID, &c.Granted, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get consent")
	}
	return &c, nil
}
