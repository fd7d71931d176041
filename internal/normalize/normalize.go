// Package normalize runs contact name normalization: it extracts real
// names from conversation history and applies or flags them on the CRM,
// one budgeted contact at a time.
package normalize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clinica-duran/eva/internal/budget"
	"github.com/clinica-duran/eva/internal/extract"
	"github.com/clinica-duran/eva/internal/gate"
	"github.com/clinica-duran/eva/internal/model"
	"github.com/clinica-duran/eva/internal/retry"
	"github.com/clinica-duran/eva/internal/store"
	"github.com/clinica-duran/eva/pkg/bird"
)

// Config tunes a normalization run.
type Config struct {
	AcceptThreshold float64
	ReviewThreshold float64
	ApplyThreshold  float64
	MaxConcurrent   int
	PageSize        int
	MaxMessages     int
	BatchBudget     time.Duration
	ContactBudget   time.Duration
	Buffer          time.Duration
}

func (c *Config) applyDefaults() {
	if c.AcceptThreshold <= 0 {
		c.AcceptThreshold = gate.AcceptThreshold
	}
	if c.ReviewThreshold <= 0 {
		c.ReviewThreshold = gate.ReviewThreshold
	}
	if c.ApplyThreshold <= 0 {
		c.ApplyThreshold = gate.ApplyThreshold
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 10
	}
	if c.BatchBudget <= 0 {
		c.BatchBudget = 9 * time.Minute
	}
	if c.ContactBudget <= 0 {
		c.ContactBudget = 25 * time.Second
	}
	if c.Buffer <= 0 {
		c.Buffer = 500 * time.Millisecond
	}
}

// Option configures a Service.
type Option func(*Service)

// WithNow injects the clock used for budget accounting.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service iterates CRM contacts and normalizes their names.
type Service struct {
	crm        bird.Client
	store      store.Store
	strategies []extract.Strategy
	cfg        Config
	now        func() time.Time
}

// New builds a normalization service over the given strategy chain.
func New(crm bird.Client, st store.Store, strategies []extract.Strategy, cfg Config, opts ...Option) *Service {
	cfg.applyDefaults()
	s := &Service{
		crm:        crm,
		store:      st,
		strategies: strategies,
		cfg:        cfg,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ContactOutcome is the per-contact result of one normalization attempt.
type ContactOutcome string

const (
	OutcomeApplied ContactOutcome = "applied"
	OutcomeReview  ContactOutcome = "review"
	OutcomeSkipped ContactOutcome = "skipped"
	OutcomeFailed  ContactOutcome = "failed"
)

// Run normalizes every contact that needs it, bounded concurrently and
// under the batch budget. It always returns the run record with whatever
// stats accumulated, even when the budget cut the batch short.
func (s *Service) Run(ctx context.Context) (*model.NormalizationRun, error) {
	run := s.openRun(ctx)
	b := budget.New(s.cfg.BatchBudget, s.cfg.Buffer)
	if s.now != nil {
		b.WithNow(s.now)
	}

	var (
		mu    sync.Mutex
		stats model.NormalizationStats
	)
	record := func(o ContactOutcome) {
		mu.Lock()
		defer mu.Unlock()
		stats.Processed++
		switch o {
		case OutcomeApplied:
			stats.Applied++
		case OutcomeReview:
			stats.Review++
		case OutcomeSkipped:
			stats.Skipped++
		case OutcomeFailed:
			stats.Failed++
		}
	}

	status := model.RunStatusComplete
	pageToken := ""

	for {
		if err := b.Check(); err != nil {
			zap.L().Warn("normalize: batch budget exhausted, stopping",
				zap.String("budget", b.String()))
			break
		}

		page, err := s.crm.ListContacts(ctx, pageToken, s.cfg.PageSize)
		if err != nil {
			zap.L().Error("normalize: list contacts failed", zap.Error(err))
			status = model.RunStatusFailed
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.MaxConcurrent)
		for _, contact := range page.Contacts {
			if !NeedsNormalization(contact) {
				continue
			}
			if b.Check() != nil {
				break
			}
			g.Go(func() error {
				outcome, err := s.Contact(gctx, contact, b.Remaining())
				if err != nil {
					zap.L().Warn("normalize: contact failed",
						zap.String("contact_id", contact.ID),
						zap.Error(err),
					)
					record(OutcomeFailed)
					return nil
				}
				record(outcome)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			status = model.RunStatusFailed
			break
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	run.Status = status
	run.Stats = stats
	s.closeRun(ctx, run)

	zap.L().Info("normalize: run finished",
		zap.String("status", string(status)),
		zap.Int("processed", stats.Processed),
		zap.Int("applied", stats.Applied),
		zap.Int("review", stats.Review),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return run, nil
}

// Contact normalizes a single contact under its own budget, clamped to
// whatever remains of an enclosing batch budget.
func (s *Service) Contact(ctx context.Context, contact bird.Contact, remaining time.Duration) (ContactOutcome, error) {
	allowance := s.cfg.ContactBudget
	if remaining > 0 && remaining < allowance {
		allowance = remaining
	}
	cb := budget.New(allowance, s.cfg.Buffer)
	if s.now != nil {
		cb.WithNow(s.now)
	}

	messages, err := s.recentInboundTexts(ctx, contact.ID)
	if err != nil {
		return OutcomeFailed, err
	}
	if len(messages) == 0 {
		return OutcomeSkipped, nil
	}

	outcome, err := extract.Run(ctx, cb, messages, s.strategies, s.cfg.AcceptThreshold, s.cfg.ReviewThreshold)
	if err != nil {
		return OutcomeFailed, err
	}

	if !outcome.Best.Found() {
		return OutcomeSkipped, nil
	}

	if outcome.Best.Confidence >= s.cfg.ApplyThreshold {
		first, last := outcome.Best.FirstName, outcome.Best.LastName
		if first == "" {
			first, last = extract.SplitFullName(outcome.Best.FullName)
		}
		err := retry.Do(ctx, crmRetry("update_contact_name"), func(ctx context.Context) error {
			return s.crm.UpdateContactName(ctx, contact.ID, first, last)
		})
		if err != nil {
			return OutcomeFailed, err
		}
		zap.L().Info("normalize: name applied",
			zap.String("contact_id", contact.ID),
			zap.String("method", string(outcome.Best.Method)),
			zap.Float64("confidence", outcome.Best.Confidence),
		)
		return OutcomeApplied, nil
	}

	note := "extracted \"" + outcome.Best.FullName + "\" below apply threshold"
	err = retry.Do(ctx, crmRetry("tag_contact_for_review"), func(ctx context.Context) error {
		return s.crm.TagContactForReview(ctx, contact.ID, note)
	})
	if err != nil {
		return OutcomeFailed, err
	}
	return OutcomeReview, nil
}

// crmRetry retries transient CRM write failures. This is a batch job, so
// a short backoff is affordable in a way the live reply path cannot be.
func crmRetry(operation string) retry.Config {
	return retry.Config{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		ShouldRetry: func(err error) bool {
			var se *bird.StatusError
			if errors.As(err, &se) {
				return retry.TransientStatus(se.Code)
			}
			return retry.IsTransient(err)
		},
		OnRetry: retry.Logger("bird", operation),
	}
}

// NeedsNormalization reports whether a contact's stored name is missing
// or unusable as a real name.
func NeedsNormalization(contact bird.Contact) bool {
	if contact.FirstName != "" && contact.LastName != "" {
		return false
	}
	display := extract.CleanDisplayName(contact.DisplayName)
	if display == "" {
		return true
	}
	if extract.IsOnlyEmojis(contact.DisplayName) || extract.IsLikelyUsername(display) {
		return true
	}
	first, last := extract.SplitFullName(display)
	return !extract.IsValidName(first) || last == ""
}

// recentInboundTexts collects the contact's latest inbound texts for the
// extraction strategies, newest last.
func (s *Service) recentInboundTexts(ctx context.Context, contactID string) ([]string, error) {
	msgs, err := s.crm.ListConversationMessages(ctx, contactID, s.cfg.MaxMessages*2)
	if err != nil {
		return nil, err
	}

	var texts []string
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Direction == "outbound" || strings.TrimSpace(m.Text) == "" {
			continue
		}
		texts = append(texts, m.Text)
		if len(texts) == s.cfg.MaxMessages {
			break
		}
	}
	return texts, nil
}

func (s *Service) openRun(ctx context.Context) *model.NormalizationRun {
	if s.store != nil {
		run, err := s.store.CreateNormalizationRun(ctx)
		if err == nil {
			return run
		}
		zap.L().Warn("normalize: run record create failed", zap.Error(err))
	}
	return &model.NormalizationRun{Status: model.RunStatusRunning, StartedAt: time.Now().UTC()}
}

func (s *Service) closeRun(ctx context.Context, run *model.NormalizationRun) {
	if s.store == nil || run.ID == "" {
		return
	}
	if err := s.store.FinishNormalizationRun(ctx, run.ID, run.Status, run.Stats); err != nil {
		zap.L().Warn("normalize: run record finish failed", zap.Error(err))
	}
}
