// Package groq wraps the Groq API: Whisper audio transcription and chat
// completions for transcript post-processing.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL      = "https://api.groq.com/openai/v1"
	defaultWhisperModel = "whisper-large-v3"
	defaultChatModel    = "llama-3.3-70b-versatile"
)

// Client performs transcription and chat completion against the Groq API.
type Client interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error)
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// TranscriptionRequest is the request for POST /audio/transcriptions.
type TranscriptionRequest struct {
	Audio    []byte
	Filename string
	Model    string
	Language string
	Prompt   string
}

// TranscriptionResponse is the Whisper transcription result.
type TranscriptionResponse struct {
	Text string `json:"text"`
}

// ChatCompletionRequest is the request body for POST /chat/completions.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the response from POST /chat/completions.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithWhisperModel overrides the default transcription model.
func WithWhisperModel(model string) Option {
	return func(c *httpClient) {
		c.whisperModel = model
	}
}

// WithChatModel overrides the default chat model.
func WithChatModel(model string) Option {
	return func(c *httpClient) {
		c.chatModel = model
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey       string
	baseURL      string
	whisperModel string
	chatModel    string
	http         *http.Client
}

// NewClient creates a Groq API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		whisperModel: defaultWhisperModel,
		chatModel:    defaultChatModel,
		http: &http.Client{
			Timeout: 60 * time.Second,
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

func (c *httpClient) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	if req.Model == "" {
		req.Model = c.whisperModel
	}
	filename := req.Filename
	if filename == "" {
		filename = "audio.ogg"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, eris.Wrap(err, "groq: create form file")
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, eris.Wrap(err, "groq: write audio")
	}
	if err := mw.WriteField("model", req.Model); err != nil {
		return nil, eris.Wrap(err, "groq: write model field")
	}
	if req.Language != "" {
		if err := mw.WriteField("language", req.Language); err != nil {
			return nil, eris.Wrap(err, "groq: write language field")
		}
	}
	if req.Prompt != "" {
		if err := mw.WriteField("prompt", req.Prompt); err != nil {
			return nil, eris.Wrap(err, "groq: write prompt field")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "groq: close multipart writer")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, eris.Wrap(err, "groq: create request")
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var result TranscriptionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "groq: unmarshal transcription")
	}
	return &result, nil
}

func (c *httpClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.chatModel
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "groq: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "groq: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "groq: unmarshal response")
	}
	return &result, nil
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "groq: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "groq: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("groq: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
