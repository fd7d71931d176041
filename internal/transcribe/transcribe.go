// Package transcribe turns voice notes into text through an ordered
// provider chain: a low-cost primary and a higher-cost, higher-reliability
// fallback, with an optional budget-permitting enhancement pass.
package transcribe

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/clinica-duran/eva/internal/budget"
	"github.com/clinica-duran/eva/internal/chain"
)

// Transcriber converts audio bytes to text, bounded by the ctx deadline.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// PostProcessor cleans up a raw transcript and tags the caller's intent.
type PostProcessor interface {
	Enhance(ctx context.Context, transcript, language string) (text, intent string, err error)
}

// Result is a finished transcription with its provenance for cost and
// quality tracking.
type Result struct {
	Text          string
	OriginalText  string // pre-enhancement transcript, when enhanced
	Intent        string
	Provider      string
	UsedFallback  bool
	PostProcessed bool
	Elapsed       time.Duration
}

// Service runs the transcription chain. Unlike name extraction there is
// no confidence signal here: the fallback is tried strictly on primary
// failure, never preemptively.
type Service struct {
	primary  Transcriber
	fallback Transcriber
	post     PostProcessor // nil disables enhancement
}

// NewService builds the chain. post may be nil.
func NewService(primary, fallback Transcriber, post PostProcessor) *Service {
	return &Service{primary: primary, fallback: fallback, post: post}
}

// Transcribe runs primary-then-fallback under the request budget, then
// attempts enhancement if configured and the post-process phase is still
// feasible. An infeasible enhancement is skipped silently: the raw
// transcript is a complete answer on its own.
func (s *Service) Transcribe(ctx context.Context, b *budget.Budget, audio []byte, language string) (*Result, error) {
	providers := []chain.Provider[string]{
		transcriberProvider{t: s.primary, phase: budget.PhasePrimaryTranscribe, audio: audio, language: language},
		transcriberProvider{t: s.fallback, phase: budget.PhaseFallbackTranscribe, audio: audio, language: language},
	}

	res, err := chain.Attempt(ctx, "transcription", b, providers)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Text:         res.Value,
		Provider:     res.Provider,
		UsedFallback: res.UsedFallback,
		Elapsed:      res.Elapsed,
	}

	if s.post == nil {
		return result, nil
	}

	timeout, err := budget.Plan(b, budget.PhasePostProcess)
	if err != nil {
		if errors.Is(err, budget.ErrInfeasible) {
			zap.L().Debug("transcribe: skipping enhancement, phase infeasible",
				zap.String("budget", b.String()))
			return result, nil
		}
		return nil, err
	}

	postCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	enhanced, intent, err := s.post.Enhance(postCtx, result.Text, language)
	if err != nil {
		// Enhancement is best-effort; the raw transcript stands.
		zap.L().Warn("transcribe: enhancement failed", zap.Error(err))
		return result, nil
	}

	result.OriginalText = result.Text
	result.Text = enhanced
	result.Intent = intent
	result.PostProcessed = true
	return result, nil
}

// transcriberProvider adapts a Transcriber into a chain provider bound to
// its phase.
type transcriberProvider struct {
	t        Transcriber
	phase    budget.Phase
	audio    []byte
	language string
}

func (p transcriberProvider) Name() string        { return p.t.Name() }
func (p transcriberProvider) Phase() budget.Phase { return p.phase }

func (p transcriberProvider) Call(ctx context.Context) (string, error) {
	return p.t.Transcribe(ctx, p.audio, p.language)
}
