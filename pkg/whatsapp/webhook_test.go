package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)

	t.Run("valid", func(t *testing.T) {
		assert.True(t, VerifySignature("app-secret", body, signBody("app-secret", body)))
	})

	t.Run("wrong_secret", func(t *testing.T) {
		assert.False(t, VerifySignature("app-secret", body, signBody("other-secret", body)))
	})

	t.Run("tampered_body", func(t *testing.T) {
		sig := signBody("app-secret", body)
		assert.False(t, VerifySignature("app-secret", []byte(`{"object":"tampered"}`), sig))
	})

	t.Run("missing_prefix", func(t *testing.T) {
		mac := hmac.New(sha256.New, []byte("app-secret"))
		mac.Write(body)
		assert.False(t, VerifySignature("app-secret", body, hex.EncodeToString(mac.Sum(nil))))
	})

	t.Run("garbage_header", func(t *testing.T) {
		assert.False(t, VerifySignature("app-secret", body, "sha256=not-hex"))
		assert.False(t, VerifySignature("app-secret", body, ""))
	})
}

func TestParsePayload(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "123",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"contacts": [{"wa_id": "5215512345678", "profile": {"name": "María"}}],
					"messages": [
						{"id": "wamid.1", "from": "5215512345678", "timestamp": "1700000000", "type": "text", "text": {"body": "hola"}},
						{"id": "wamid.2", "from": "5215512345678", "timestamp": "1700000005", "type": "audio", "audio": {"id": "media-9", "mime_type": "audio/ogg"}}
					]
				}
			}]
		}]
	}`)

	p, err := ParsePayload(body)
	require.NoError(t, err)
	require.Len(t, p.Entry, 1)
	require.Len(t, p.Entry[0].Changes, 1)

	msgs := p.Entry[0].Changes[0].Value.Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "text", msgs[0].Type)
	assert.Equal(t, "hola", msgs[0].Text.Body)
	assert.Equal(t, "audio", msgs[1].Type)
	assert.Equal(t, "media-9", msgs[1].Audio.ID)
	assert.Equal(t, "María", p.Entry[0].Changes[0].Value.Contacts[0].Profile.Name)
}

func TestParsePayload_Invalid(t *testing.T) {
	_, err := ParsePayload([]byte(`{not json`))
	require.Error(t, err)
}
