package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// WebhookPayload is the envelope WhatsApp posts to the webhook endpoint.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one account-level notification batch.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries one field update, normally "messages".
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue holds the actual inbound messages and contact profiles.
type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []ContactProfile `json:"contacts"`
	Messages         []InboundMessage `json:"messages"`
}

// ContactProfile is the sender's WhatsApp profile.
type ContactProfile struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// InboundMessage is a single received message.
type InboundMessage struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	Timestamp string        `json:"timestamp"`
	Type      string        `json:"type"`
	Text      *TextContent  `json:"text,omitempty"`
	Audio     *MediaContent `json:"audio,omitempty"`
	Image     *MediaContent `json:"image,omitempty"`
}

// TextContent is the body of a text message.
type TextContent struct {
	Body string `json:"body"`
}

// MediaContent references uploaded media by ID.
type MediaContent struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
}

// ParsePayload decodes a webhook body.
func ParsePayload(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrap(err, "whatsapp: unmarshal webhook payload")
	}
	return &p, nil
}

// VerifySignature checks the x-hub-signature-256 header against the raw
// request body using the app secret. The header carries a "sha256="
// prefix followed by the hex-encoded HMAC. Comparison is constant-time.
func VerifySignature(appSecret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
