package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinica-duran/eva/internal/agent"
	"github.com/clinica-duran/eva/internal/config"
	"github.com/clinica-duran/eva/internal/dedup"
	"github.com/clinica-duran/eva/internal/model"
	"github.com/clinica-duran/eva/internal/store"
	"github.com/clinica-duran/eva/pkg/bird"
	"github.com/clinica-duran/eva/pkg/claude"
	"github.com/clinica-duran/eva/pkg/whatsapp"
)

type stubStore struct {
	pingErr error
}

func (s *stubStore) SaveMessage(ctx context.Context, msg model.Message) error { return nil }
func (s *stubStore) ListMessages(ctx context.Context, f store.MessageFilter) ([]model.Message, error) {
	return nil, nil
}
func (s *stubStore) SaveEscalation(ctx context.Context, esc model.Escalation) error { return nil }
func (s *stubStore) ListEscalations(ctx context.Context, limit int) ([]model.Escalation, error) {
	return nil, nil
}
func (s *stubStore) CreateNormalizationRun(ctx context.Context) (*model.NormalizationRun, error) {
	return &model.NormalizationRun{}, nil
}
func (s *stubStore) FinishNormalizationRun(ctx context.Context, runID string, status model.RunStatus, stats model.NormalizationStats) error {
	return nil
}
func (s *stubStore) SetConsent(ctx context.Context, contactID string, granted bool) error {
	return nil
}
func (s *stubStore) GetConsent(ctx context.Context, contactID string) (*model.Consent, error) {
	return nil, nil
}
func (s *stubStore) Ping(ctx context.Context) error    { return s.pingErr }
func (s *stubStore) Migrate(ctx context.Context) error { return nil }
func (s *stubStore) Close() error                      { return nil }

type stubCRM struct{}

func (stubCRM) GetContact(ctx context.Context, id string) (*bird.Contact, error) {
	return &bird.Contact{ID: id}, nil
}
func (stubCRM) ListContacts(ctx context.Context, pageToken string, limit int) (*bird.ContactPage, error) {
	return &bird.ContactPage{}, nil
}
func (stubCRM) UpdateContactName(ctx context.Context, id, first, last string) error { return nil }
func (stubCRM) TagContactForReview(ctx context.Context, id, note string) error      { return nil }
func (stubCRM) ListConversationMessages(ctx context.Context, convID string, limit int) ([]bird.ConversationMessage, error) {
	return nil, nil
}
func (stubCRM) Handover(ctx context.Context, req bird.HandoverRequest) error { return nil }

type stubWA struct{}

func (stubWA) SendText(ctx context.Context, to, body string) (*whatsapp.SendResponse, error) {
	return &whatsapp.SendResponse{}, nil
}
func (stubWA) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	return nil, nil
}

type stubClaude struct{}

func (stubClaude) CreateMessage(ctx context.Context, req claude.MessageRequest) (*claude.MessageResponse, error) {
	return &claude.MessageResponse{
		Content: []claude.ContentBlock{{Type: "text", Text: "Hola, ¿en qué puedo ayudarte?"}},
	}, nil
}

const testAppSecret = "test-app-secret"

func newTestEnv(pingErr error) *appEnv {
	return &appEnv{
		Store: &stubStore{pingErr: pingErr},
		Dedup: dedup.New(time.Minute),
		Agent: agent.New(agent.Deps{
			CRM:        stubCRM{},
			WhatsApp:   stubWA{},
			Claude:     stubClaude{},
			Store:      &stubStore{},
			ReplyModel: "claude-haiku-4-5-20251001",
		}),
	}
}

func newTestRouter(env *appEnv) http.Handler {
	return newRouter(env, config.WhatsAppConfig{
		VerifyToken: "verify-me",
		AppSecret:   testAppSecret,
	}, config.BudgetConfig{TotalAllowanceMS: 8500, SafetyBufferMS: 500})
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testAppSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(newTestEnv(nil)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth_StoreDown(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(newTestEnv(errors.New("connection refused"))))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebhookVerification(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(newTestEnv(nil)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=424242")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "424242", buf.String())
}

func TestWebhookVerification_WrongToken(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(newTestEnv(nil)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

const webhookBody = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "entry-1",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"contacts": [{"wa_id": "5215512345678", "profile": {"name": "Juan"}}],
				"messages": [{
					"id": "wamid.abc",
					"from": "5215512345678",
					"type": "text",
					"text": {"body": "hola"}
				}]
			}
		}]
	}]
}`

func TestWebhookPost_RejectsBadSignature(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(newTestEnv(nil)))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhook/whatsapp", bytes.NewReader([]byte(webhookBody)))
	require.NoError(t, err)
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookPost_DeduplicatesRetries(t *testing.T) {
	env := newTestEnv(nil)
	srv := httptest.NewServer(newTestRouter(env))
	defer srv.Close()

	body := []byte(webhookBody)
	for i := 0; i < 2; i++ {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhook/whatsapp", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("X-Hub-Signature-256", sign(body))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// The retry was acknowledged but only the first delivery entered the
	// pipeline.
	assert.Equal(t, 1, env.Dedup.Len())
}

func TestEventsFromPayload(t *testing.T) {
	payload, err := whatsapp.ParsePayload([]byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"field": "messages",
				"value": {
					"contacts": [{"wa_id": "521555", "profile": {"name": "Ana"}}],
					"messages": [
						{"id": "m1", "from": "521555", "type": "text", "text": {"body": "hola"}},
						{"id": "m2", "from": "521555", "type": "audio", "audio": {"id": "media-9", "mime_type": "audio/ogg"}},
						{"id": "m3", "from": "521555", "type": "sticker"}
					]
				}
			}]
		}]
	}`))
	require.NoError(t, err)

	events := eventsFromPayload(payload)
	require.Len(t, events, 2)

	assert.Equal(t, model.KindText, events[0].Kind)
	assert.Equal(t, "hola", events[0].Text)
	assert.Equal(t, "Ana", events[0].ProfileName)

	assert.Equal(t, model.KindAudio, events[1].Kind)
	assert.Equal(t, "media-9", events[1].MediaID)
	assert.Equal(t, "audio/ogg", events[1].MediaType)
}
