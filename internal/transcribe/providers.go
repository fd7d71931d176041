package transcribe

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/clinica-duran/eva/pkg/groq"
	"github.com/clinica-duran/eva/pkg/openai"
)

// GroqTranscriber is the primary Whisper provider.
type GroqTranscriber struct {
	client groq.Client
}

// NewGroqTranscriber wraps a Groq client as a Transcriber.
func NewGroqTranscriber(client groq.Client) *GroqTranscriber {
	return &GroqTranscriber{client: client}
}

func (g *GroqTranscriber) Name() string { return "groq-whisper" }

func (g *GroqTranscriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	resp, err := g.client.Transcribe(ctx, groq.TranscriptionRequest{
		Audio:    audio,
		Language: language,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// OpenAITranscriber is the fallback Whisper provider.
type OpenAITranscriber struct {
	client openai.Client
}

// NewOpenAITranscriber wraps an OpenAI client as a Transcriber.
func NewOpenAITranscriber(client openai.Client) *OpenAITranscriber {
	return &OpenAITranscriber{client: client}
}

func (o *OpenAITranscriber) Name() string { return "openai-whisper" }

func (o *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	resp, err := o.client.Transcribe(ctx, openai.TranscriptionRequest{
		Audio:    audio,
		Language: language,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// enhanceSystemPrompt asks for a cleaned transcript plus a coarse intent
// tag, returned as bare JSON so parsing stays trivial.
const enhanceSystemPrompt = `Eres un asistente que corrige transcripciones de notas de voz de pacientes de una clínica.
Corrige puntuación, ortografía y palabras mal transcritas sin cambiar el significado.
Clasifica la intención del mensaje como una de: cita, precio, ubicacion, sintomas, otro.
Responde únicamente con JSON: {"text": "...", "intent": "..."}`

// GroqPostProcessor enhances transcripts with a Groq chat model.
type GroqPostProcessor struct {
	client groq.Client
}

// NewGroqPostProcessor wraps a Groq client as a PostProcessor.
func NewGroqPostProcessor(client groq.Client) *GroqPostProcessor {
	return &GroqPostProcessor{client: client}
}

func (g *GroqPostProcessor) Enhance(ctx context.Context, transcript, language string) (string, string, error) {
	resp, err := g.client.ChatCompletion(ctx, groq.ChatCompletionRequest{
		Messages: []groq.Message{
			{Role: "system", Content: enhanceSystemPrompt},
			{Role: "user", Content: transcript},
		},
	})
	if err != nil {
		return "", "", err
	}
	if len(resp.Choices) == 0 {
		return "", "", eris.New("transcribe: empty enhancement response")
	}

	var parsed struct {
		Text   string `json:"text"`
		Intent string `json:"intent"`
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", "", eris.Wrap(err, "transcribe: parse enhancement response")
	}
	if parsed.Text == "" {
		return "", "", eris.New("transcribe: enhancement returned empty text")
	}
	return parsed.Text, parsed.Intent, nil
}
