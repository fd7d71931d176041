// Package whatsapp wraps the WhatsApp Cloud API: outbound messages,
// webhook payload types, and webhook signature verification.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://graph.facebook.com/v21.0"

// platformSendLimit is the Cloud API cap on outbound messages per second
// for a registered phone number.
const platformSendLimit = 80

// Client sends messages through the WhatsApp Cloud API.
type Client interface {
	SendText(ctx context.Context, to, body string) (*SendResponse, error)
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, error)
}

// SendResponse is the Cloud API response for a message send.
type SendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// mediaInfo is the metadata returned by GET /{media-id}.
type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default Graph API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default outbound rate limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

type httpClient struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	limiter       *rate.Limiter
	http          *http.Client
}

// NewClient creates a WhatsApp Cloud API client for one phone number.
func NewClient(accessToken, phoneNumberID string, opts ...Option) Client {
	c := &httpClient{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		baseURL:       defaultBaseURL,
		limiter:       rate.NewLimiter(rate.Limit(platformSendLimit), platformSendLimit),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

func (c *httpClient) SendText(ctx context.Context, to, body string) (*SendResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "whatsapp: rate limit wait")
	}

	payload, err := json.Marshal(sendTextRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: marshal request")
	}

	url := c.baseURL + "/" + c.phoneNumberID + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var result SendResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "whatsapp: unmarshal response")
	}
	return &result, nil
}

// DownloadMedia resolves a media ID to its download URL and fetches the
// bytes. Voice notes arrive as media IDs in webhook payloads.
func (c *httpClient) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+mediaID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: create media request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var info mediaInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, eris.Wrap(err, "whatsapp: unmarshal media info")
	}
	if info.URL == "" {
		return nil, eris.Errorf("whatsapp: media %s has no download url", mediaID)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: create download request")
	}
	dlReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	return c.do(dlReq)
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
