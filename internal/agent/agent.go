// Package agent runs the webhook-to-reply pipeline: budgeted
// transcription, reply generation, guardrail enforcement, delivery, and
// best-effort persistence.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clinica-duran/eva/internal/budget"
	"github.com/clinica-duran/eva/internal/extract"
	"github.com/clinica-duran/eva/internal/guardrails"
	"github.com/clinica-duran/eva/internal/model"
	"github.com/clinica-duran/eva/internal/store"
	"github.com/clinica-duran/eva/internal/transcribe"
	"github.com/clinica-duran/eva/pkg/bird"
	"github.com/clinica-duran/eva/pkg/claude"
	"github.com/clinica-duran/eva/pkg/whatsapp"
)

// historyLimit caps how many prior messages are replayed to the model.
const historyLimit = 10

// Event is one inbound WhatsApp message after webhook decoding.
type Event struct {
	MessageID      string
	ConversationID string
	ContactID      string
	From           string // E.164 phone number
	ProfileName    string
	Kind           model.Kind
	Text           string // body, or caption for media messages
	MediaID        string
	MediaType      string
}

// Reply is the outcome of one pipeline run. Degraded replies are fixed
// strings produced when the budget ran out or every provider failed.
type Reply struct {
	Text       string
	Degraded   bool
	Escalated  bool
	Severity   guardrails.Severity
	Intent     string
	Transcript *transcribe.Result
}

// Deps wires the agent's collaborators.
type Deps struct {
	CRM        bird.Client
	WhatsApp   whatsapp.Client
	Claude     claude.Client
	Transcribe *transcribe.Service
	Store      store.Store

	Allowance     time.Duration
	Buffer        time.Duration
	ReplyModel    string
	ClassifyModel string
}

// Option configures an Agent.
type Option func(*Agent)

// WithNow injects the clock used for budget accounting.
func WithNow(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// WithEscalator overrides the default CRM escalator.
func WithEscalator(esc guardrails.Escalator) Option {
	return func(a *Agent) {
		a.escalator = esc
	}
}

// Agent executes the reply pipeline for inbound events.
type Agent struct {
	crm       bird.Client
	wa        whatsapp.Client
	ai        claude.Client
	stt       *transcribe.Service
	store     store.Store
	escalator guardrails.Escalator

	allowance     time.Duration
	buffer        time.Duration
	replyModel    string
	classifyModel string
	now           func() time.Time
}

// New builds an Agent. Zero budget values fall back to the standard
// 8.5s allowance with a 500ms safety buffer.
func New(d Deps, opts ...Option) *Agent {
	a := &Agent{
		crm:           d.CRM,
		wa:            d.WhatsApp,
		ai:            d.Claude,
		stt:           d.Transcribe,
		store:         d.Store,
		allowance:     d.Allowance,
		buffer:        d.Buffer,
		replyModel:    d.ReplyModel,
		classifyModel: d.ClassifyModel,
	}
	if a.allowance <= 0 {
		a.allowance = 8500 * time.Millisecond
	}
	if a.buffer <= 0 {
		a.buffer = 500 * time.Millisecond
	}
	if a.classifyModel == "" {
		a.classifyModel = a.replyModel
	}
	a.escalator = NewCRMEscalator(d.CRM, d.Store)
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run processes one inbound event end to end and returns the reply that
// was sent. Budget exhaustion and provider failures produce deterministic
// degraded replies; only transport failures surface as errors.
func (a *Agent) Run(ctx context.Context, ev Event) (*Reply, error) {
	b := budget.New(a.allowance, a.buffer)
	if a.now != nil {
		b.WithNow(a.now)
	}
	log := zap.L().With(
		zap.String("message_id", ev.MessageID),
		zap.String("conversation_id", ev.ConversationID),
	)

	// Opt-out short-circuits before any remote call.
	if ev.Kind == model.KindText && isOptOut(ev.Text) {
		if a.store != nil {
			if err := a.store.SetConsent(ctx, ev.ContactID, false); err != nil {
				log.Warn("agent: consent write failed", zap.Error(err))
			}
		}
		return a.send(ctx, ev, b, &Reply{Text: optOutConfirmReply})
	}

	// Prefetch history and media in parallel. History is advisory; a
	// failed media download for a voice note is fatal for transcription.
	var history []claude.Message
	var media []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		msgs, err := a.crm.ListConversationMessages(gctx, ev.ConversationID, historyLimit)
		if err != nil {
			log.Warn("agent: history fetch failed", zap.Error(err))
			return nil
		}
		history = toHistory(msgs)
		return nil
	})
	if ev.MediaID != "" {
		g.Go(func() error {
			data, err := a.wa.DownloadMedia(gctx, ev.MediaID)
			if err != nil {
				return eris.Wrap(err, "agent: media download")
			}
			media = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ev.Kind == model.KindAudio {
			log.Warn("agent: voice note unavailable", zap.Error(err))
			return a.send(ctx, ev, b, &Reply{Text: degradedAudioReply, Degraded: true})
		}
		log.Warn("agent: image unavailable, replying from caption", zap.Error(err))
		media = nil
	}

	reply := &Reply{}
	userText := strings.TrimSpace(ev.Text)

	switch ev.Kind {
	case model.KindAudio:
		tr, err := a.stt.Transcribe(ctx, b, media, "es")
		if err != nil {
			if errors.Is(err, budget.ErrExceeded) {
				return a.send(ctx, ev, b, &Reply{Text: degradedBusyReply, Degraded: true})
			}
			log.Warn("agent: transcription failed", zap.Error(err))
			return a.send(ctx, ev, b, &Reply{Text: degradedAudioReply, Degraded: true})
		}
		reply.Transcript = tr
		reply.Intent = tr.Intent
		userText = tr.Text

	case model.KindImage:
		if len(media) > 0 {
			desc, err := a.describeImage(ctx, b, media, ev.MediaType)
			switch {
			case errors.Is(err, budget.ErrExceeded):
				return a.send(ctx, ev, b, &Reply{Text: degradedBusyReply, Degraded: true})
			case err != nil:
				log.Warn("agent: vision extract skipped", zap.Error(err))
			case desc != "":
				userText = strings.TrimSpace(userText + "\n[Imagen adjunta: " + desc + "]")
			}
		}
		if userText == "" {
			userText = "[El paciente envió una imagen]"
		}

	default:
		intent, err := a.classify(ctx, b, userText)
		switch {
		case errors.Is(err, budget.ErrExceeded):
			return a.send(ctx, ev, b, &Reply{Text: degradedBusyReply, Degraded: true})
		case err != nil:
			log.Debug("agent: intent classification skipped", zap.Error(err))
		default:
			reply.Intent = intent
		}
	}

	text, err := a.generateReply(ctx, b, history, userText)
	if err != nil {
		if !errors.Is(err, budget.ErrExceeded) && !errors.Is(err, budget.ErrInfeasible) {
			log.Error("agent: reply generation failed", zap.Error(err))
		}
		reply.Text = degradedBusyReply
		reply.Degraded = true
		return a.send(ctx, ev, b, reply)
	}

	verdict := guardrails.Scan(text)
	final, escalated, err := guardrails.Enforce(ctx, a.escalator, ev.ConversationID, text, verdict)
	if err != nil {
		log.Warn("agent: escalation failed", zap.Error(err))
	}
	reply.Text = final
	reply.Escalated = escalated
	reply.Severity = verdict.Severity

	return a.send(ctx, ev, b, reply)
}

// send delivers the reply and logs the exchange. Persistence failures
// never unwind a computed reply.
func (a *Agent) send(ctx context.Context, ev Event, b *budget.Budget, r *Reply) (*Reply, error) {
	if _, err := a.wa.SendText(ctx, ev.From, r.Text); err != nil {
		a.persist(ctx, ev, r)
		return nil, eris.Wrap(err, "agent: send reply")
	}
	a.persist(ctx, ev, r)

	zap.L().Info("agent: reply sent",
		zap.String("message_id", ev.MessageID),
		zap.String("conversation_id", ev.ConversationID),
		zap.String("intent", r.Intent),
		zap.Bool("degraded", r.Degraded),
		zap.Bool("escalated", r.Escalated),
		zap.Duration("elapsed", b.Elapsed()),
	)
	return r, nil
}

func (a *Agent) persist(ctx context.Context, ev Event, r *Reply) {
	if a.store == nil {
		return
	}

	inbound := model.Message{
		ConversationID: ev.ConversationID,
		ContactID:      ev.ContactID,
		Direction:      model.DirectionInbound,
		Kind:           ev.Kind,
		Body:           ev.Text,
	}
	if r.Transcript != nil {
		inbound.Body = r.Transcript.Text
		inbound.TranscriptProvider = r.Transcript.Provider
		inbound.UsedFallback = r.Transcript.UsedFallback
	}
	if err := a.store.SaveMessage(ctx, inbound); err != nil {
		zap.L().Warn("agent: inbound message log failed", zap.Error(err))
	}

	outbound := model.Message{
		ConversationID: ev.ConversationID,
		ContactID:      ev.ContactID,
		Direction:      model.DirectionOutbound,
		Kind:           model.KindText,
		Body:           r.Text,
		Severity:       r.Severity.String(),
	}
	if err := a.store.SaveMessage(ctx, outbound); err != nil {
		zap.L().Warn("agent: outbound message log failed", zap.Error(err))
	}
}

func (a *Agent) generateReply(ctx context.Context, b *budget.Budget, history []claude.Message, userText string) (string, error) {
	if err := b.Check(); err != nil {
		return "", err
	}
	timeout, err := budget.Plan(b, budget.PhaseReplyGenerate)
	if err != nil {
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msgs := append(append([]claude.Message{}, history...), claude.Message{Role: "user", Content: userText})
	resp, err := a.ai.CreateMessage(cctx, claude.MessageRequest{
		Model:     a.replyModel,
		MaxTokens: 500,
		System:    personaPrompt,
		Messages:  msgs,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(a.replyModel, "reply_generate")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("agent: empty reply from model")
	}
	return text, nil
}

func (a *Agent) classify(ctx context.Context, b *budget.Budget, text string) (string, error) {
	if err := b.Check(); err != nil {
		return "", err
	}
	timeout, err := budget.Plan(b, budget.PhaseClassify)
	if err != nil {
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := a.ai.CreateMessage(cctx, claude.MessageRequest{
		Model:     a.classifyModel,
		MaxTokens: 16,
		System:    classifyPrompt,
		Messages:  []claude.Message{{Role: "user", Content: text}},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(a.classifyModel, "classify")

	return strings.ToLower(strings.TrimSpace(resp.Text())), nil
}

func (a *Agent) describeImage(ctx context.Context, b *budget.Budget, image []byte, mediaType string) (string, error) {
	if err := b.Check(); err != nil {
		return "", err
	}
	timeout, err := budget.Plan(b, budget.PhaseVisionExtract)
	if err != nil {
		return "", err
	}
	if mediaType == "" {
		mediaType = "image/jpeg"
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := a.ai.CreateMessage(cctx, claude.MessageRequest{
		Model:     a.replyModel,
		MaxTokens: 300,
		Messages: []claude.Message{{
			Role:           "user",
			Content:        visionPrompt,
			ImageData:      image,
			ImageMediaType: mediaType,
		}},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(a.replyModel, "vision_extract")

	return strings.TrimSpace(resp.Text()), nil
}

// optOutPhrases are matched against the folded, lowercased message body.
var optOutPhrases = []string{
	"stop",
	"baja",
	"no quiero mas mensajes",
	"no me escriban",
	"cancelar suscripcion",
}

func isOptOut(text string) bool {
	folded := strings.ToLower(strings.TrimSpace(extract.FoldDiacritics(text)))
	for _, p := range optOutPhrases {
		if folded == p {
			return true
		}
	}
	return false
}

func toHistory(msgs []bird.ConversationMessage) []claude.Message {
	// CRM returns newest first; the model wants chronological order.
	out := make([]claude.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := "user"
		if m.Direction == "outbound" {
			role = "assistant"
		}
		out = append(out, claude.Message{Role: role, Content: m.Text})
	}
	return out
}
