package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/555123/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "whatsapp", req["messaging_product"])
		assert.Equal(t, "5215512345678", req["to"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages": [{"id": "wamid.out.1"}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", "555123", WithBaseURL(srv.URL))

	resp, err := client.SendText(context.Background(), "5215512345678", "su cita quedó agendada")
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "wamid.out.1", resp.Messages[0].ID)
}

func TestSendText_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid recipient"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", "555123", WithBaseURL(srv.URL))

	_, err := client.SendText(context.Background(), "bad", "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestDownloadMedia(t *testing.T) {
	var mediaURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media-9":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"url": "` + mediaURL + `/download", "mime_type": "audio/ogg"}`))
		case "/download":
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte("ogg-audio-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	mediaURL = srv.URL

	client := NewClient("test-token", "555123", WithBaseURL(srv.URL))

	data, err := client.DownloadMedia(context.Background(), "media-9")
	require.NoError(t, err)
	assert.Equal(t, "ogg-audio-bytes", string(data))
}

func TestDownloadMedia_NoURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mime_type": "audio/ogg"}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", "555123", WithBaseURL(srv.URL))

	_, err := client.DownloadMedia(context.Background(), "media-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no download url")
}
