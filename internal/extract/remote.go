package extract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/clinica-duran/eva/pkg/claude"
)

// nerSystemPrompt instructs the model to answer with bare JSON so the
// response parses without markdown stripping heroics.
const nerSystemPrompt = `Eres un extractor de nombres de pacientes para una clínica.
Analiza la conversación de WhatsApp y extrae el nombre completo del paciente si lo menciona.
Responde únicamente con JSON: {"full_name": "...", "confidence": 0.0}
Si no hay nombre, usa {"full_name": "", "confidence": 0}.
La confianza refleja qué tan explícitamente el paciente dio su propio nombre.`

// AIStrategy extracts names with a Claude Haiku call. It is the paid,
// last-resort strategy; callers bound it with the planned phase timeout.
type AIStrategy struct {
	client claude.Client
	model  string
}

// NewAIStrategy builds the remote strategy around a Claude client.
func NewAIStrategy(client claude.Client, model string) *AIStrategy {
	return &AIStrategy{client: client, model: model}
}

func (s *AIStrategy) Method() Method { return MethodAI }

// Extract sends the recent conversation and parses the model's JSON
// verdict. Model answers that fail validation are discarded rather than
// half-trusted.
func (s *AIStrategy) Extract(ctx context.Context, messages []string) (Candidate, error) {
	resp, err := s.client.CreateMessage(ctx, claude.MessageRequest{
		Model:     s.model,
		MaxTokens: 256,
		System:    nerSystemPrompt,
		Messages: []claude.Message{
			{Role: "user", Content: joinRecent(messages, 30)},
		},
	})
	if err != nil {
		return Candidate{}, eris.Wrap(err, "extract: ai strategy")
	}

	var parsed struct {
		FullName   string  `json:"full_name"`
		Confidence float64 `json:"confidence"`
	}
	text := strings.TrimSpace(resp.Text())
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Candidate{}, eris.Wrapf(err, "extract: ai strategy: unparseable answer %q", text)
	}

	if parsed.FullName == "" {
		return Candidate{Method: MethodUnknown}, nil
	}

	c := newCandidate(parsed.FullName, clamp01(parsed.Confidence), MethodAI)
	if !IsValidName(c.FirstName) {
		return Candidate{Method: MethodUnknown}, nil
	}
	return c, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
