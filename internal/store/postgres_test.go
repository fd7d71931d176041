package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinica-duran/eva/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_SaveMessage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(pgxmock.AnyArg(), "conv-1", "contact-1", "inbound", "audio",
			"necesito una cita", "groq-whisper", true, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveMessage(context.Background(), model.Message{
		ConversationID:     "conv-1",
		ContactID:          "contact-1",
		Direction:          model.DirectionInbound,
		Kind:               model.KindAudio,
		Body:               "necesito una cita",
		TranscriptProvider: "groq-whisper",
		UsedFallback:       true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMessages_FiltersAndLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "conversation_id", "contact_id", "direction", "kind", "body",
		"transcript_provider", "used_fallback", "severity", "created_at",
	}).AddRow("m1", "conv-1", "contact-1", model.DirectionOutbound, model.KindText,
		"su cita quedó agendada", (*string)(nil), false, ptr("none"), now)

	mock.ExpectQuery(`SELECT .* FROM messages WHERE true AND direction = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs("outbound", 50).
		WillReturnRows(rows)

	got, err := s.ListMessages(context.Background(), MessageFilter{
		Direction: model.DirectionOutbound,
		Limit:     50,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "su cita quedó agendada", got[0].Body)
	assert.Equal(t, "none", got[0].Severity)
	assert.Empty(t, got[0].TranscriptProvider)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveEscalation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO escalations`).
		WithArgs(pgxmock.AnyArg(), "conv-2", "medical_advice", "urgent", "critical", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveEscalation(context.Background(), model.Escalation{
		ConversationID: "conv-2",
		Reason:         "medical_advice",
		Priority:       "urgent",
		Severity:       "critical",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishNormalizationRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE normalization_runs`).
		WithArgs("complete", 10, 6, 2, 1, 1, pgxmock.AnyArg(), "missing-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishNormalizationRun(context.Background(), "missing-run", model.RunStatusComplete,
		model.NormalizationStats{Processed: 10, Applied: 6, Review: 2, Skipped: 1, Failed: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "normalization run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetConsent_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT contact_id, granted, updated_at FROM consents`).
		WithArgs("unknown-contact").
		WillReturnError(pgx.ErrNoRows)

	c, err := s.GetConsent(context.Background(), "unknown-contact")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BulkInsertMessages(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"messages"}, []string{
		"id", "conversation_id", "contact_id", "direction", "kind", "body",
		"transcript_provider", "used_fallback", "severity", "created_at",
	}).WillReturnResult(2)

	n, err := s.BulkInsertMessages(context.Background(), []model.Message{
		{ConversationID: "conv-1", ContactID: "c1", Direction: model.DirectionInbound, Kind: model.KindText, Body: "hola"},
		{ConversationID: "conv-1", ContactID: "c1", Direction: model.DirectionOutbound, Kind: model.KindText, Body: "hola, ¿en qué puedo ayudarle?"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func ptr[T any](v T) *T { return &v }
