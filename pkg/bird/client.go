// Package bird wraps the Bird CRM API: contacts, conversation history,
// and human handover.
package bird

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.bird.com"

// Client talks to the Bird CRM for one workspace.
type Client interface {
	GetContact(ctx context.Context, contactID string) (*Contact, error)
	ListContacts(ctx context.Context, pageToken string, limit int) (*ContactPage, error)
	UpdateContactName(ctx context.Context, contactID, firstName, lastName string) error
	TagContactForReview(ctx context.Context, contactID, note string) error
	ListConversationMessages(ctx context.Context, conversationID string, limit int) ([]ConversationMessage, error)
	Handover(ctx context.Context, req HandoverRequest) error
}

// StatusError is a non-2xx API response, preserved as a type so batch
// callers can decide whether the status is worth retrying.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bird: unexpected status %d: %s", e.Code, e.Body)
}

// Contact is a CRM contact record.
type Contact struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	FirstName   string            `json:"firstName"`
	LastName    string            `json:"lastName"`
	Phone       string            `json:"phone"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ContactPage is one page of contacts plus the token for the next page.
type ContactPage struct {
	Contacts      []Contact `json:"results"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// ConversationMessage is one message from a conversation's history.
type ConversationMessage struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// HandoverRequest marks a conversation as needing a human agent.
type HandoverRequest struct {
	ConversationID string `json:"conversationId"`
	Reason         string `json:"reason"`
	Priority       string `json:"priority"`
	Notes          string `json:"notes,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
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

type httpClient struct {
	accessKey   string
	workspaceID string
	baseURL     string
	http        *http.Client
}

// NewClient creates a Bird CRM client scoped to one workspace.
func NewClient(accessKey, workspaceID string, opts ...Option) Client {
	c := &httpClient{
		accessKey:   accessKey,
		workspaceID: workspaceID,
		baseURL:     defaultBaseURL,
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

func (c *httpClient) GetContact(ctx context.Context, contactID string) (*Contact, error) {
	body, err := c.do(ctx, http.MethodGet, c.workspacePath("/contacts/"+contactID), nil)
	if err != nil {
		return nil, err
	}

	var contact Contact
	if err := json.Unmarshal(body, &contact); err != nil {
		return nil, eris.Wrap(err, "bird: unmarshal contact")
	}
	return &contact, nil
}

func (c *httpClient) ListContacts(ctx context.Context, pageToken string, limit int) (*ContactPage, error) {
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	body, err := c.do(ctx, http.MethodGet, c.workspacePath("/contacts")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var page ContactPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, eris.Wrap(err, "bird: unmarshal contact page")
	}
	return &page, nil
}

func (c *httpClient) UpdateContactName(ctx context.Context, contactID, firstName, lastName string) error {
	payload := map[string]string{
		"firstName": firstName,
		"lastName":  lastName,
	}
	_, err := c.do(ctx, http.MethodPatch, c.workspacePath("/contacts/"+contactID), payload)
	return err
}

// TagContactForReview marks a contact whose extracted name did not reach
// the apply threshold, so staff can confirm it manually.
func (c *httpClient) TagContactForReview(ctx context.Context, contactID, note string) error {
	payload := map[string]any{
		"attributes": map[string]string{
			"nameReview":     "pending",
			"nameReviewNote": note,
		},
	}
	_, err := c.do(ctx, http.MethodPatch, c.workspacePath("/contacts/"+contactID), payload)
	return err
}

func (c *httpClient) ListConversationMessages(ctx context.Context, conversationID string, limit int) ([]ConversationMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	path := c.workspacePath(fmt.Sprintf("/conversations/%s/messages?limit=%d", conversationID, limit))

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var page struct {
		Results []ConversationMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, eris.Wrap(err, "bird: unmarshal messages")
	}
	return page.Results, nil
}

func (c *httpClient) Handover(ctx context.Context, req HandoverRequest) error {
	path := c.workspacePath("/conversations/" + req.ConversationID + "/handover")
	_, err := c.do(ctx, http.MethodPost, path, req)
	return err
}

func (c *httpClient) workspacePath(suffix string) string {
	return "/workspaces/" + c.workspaceID + suffix
}

func (c *httpClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrap(err, "bird: marshal request")
		}
		reqBody = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "bird: create request")
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "AccessKey "+c.accessKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "bird: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "bird: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
