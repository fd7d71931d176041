package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clinica-duran/eva/internal/agent"
	"github.com/clinica-duran/eva/internal/dedup"
	"github.com/clinica-duran/eva/internal/extract"
	"github.com/clinica-duran/eva/internal/guardrails"
	"github.com/clinica-duran/eva/internal/normalize"
	"github.com/clinica-duran/eva/internal/store"
	"github.com/clinica-duran/eva/internal/transcribe"
	"github.com/clinica-duran/eva/pkg/bird"
	"github.com/clinica-duran/eva/pkg/claude"
	"github.com/clinica-duran/eva/pkg/groq"
	"github.com/clinica-duran/eva/pkg/openai"
	"github.com/clinica-duran/eva/pkg/whatsapp"
)

// appEnv holds the initialized store, API clients, and pipeline services
// shared by the serve/normalize/audit commands.
type appEnv struct {
	Store    store.Store
	CRM      bird.Client
	WhatsApp whatsapp.Client
	Claude   claude.Client
	Agent    *agent.Agent
	Dedup    *dedup.Cache
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, all API clients, guardrail rule overrides,
// and the reply agent. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if cfg.Guardrails.RulesPath != "" {
		rules, err := guardrails.LoadRules(cfg.Guardrails.RulesPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		guardrails.ApplyRules(rules)
		zap.L().Info("guardrail rules loaded", zap.String("path", cfg.Guardrails.RulesPath))
	}

	crm := bird.NewClient(cfg.Bird.AccessKey, cfg.Bird.WorkspaceID,
		bird.WithBaseURL(cfg.Bird.BaseURL))
	wa := whatsapp.NewClient(cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneNumberID,
		whatsapp.WithBaseURL(cfg.WhatsApp.BaseURL))
	ai := claude.NewClient(cfg.Anthropic.Key)

	groqClient := groq.NewClient(cfg.Groq.Key,
		groq.WithBaseURL(cfg.Groq.BaseURL),
		groq.WithWhisperModel(cfg.Groq.WhisperModel),
		groq.WithChatModel(cfg.Groq.ChatModel),
	)
	openaiClient := openai.NewClient(cfg.OpenAI.Key,
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
		openai.WithModel(cfg.OpenAI.WhisperModel),
	)

	stt := transcribe.NewService(
		transcribe.NewGroqTranscriber(groqClient),
		transcribe.NewOpenAITranscriber(openaiClient),
		transcribe.NewGroqPostProcessor(groqClient),
	)

	a := agent.New(agent.Deps{
		CRM:           crm,
		WhatsApp:      wa,
		Claude:        ai,
		Transcribe:    stt,
		Store:         st,
		Allowance:     cfg.Budget.Allowance(),
		Buffer:        cfg.Budget.Buffer(),
		ReplyModel:    cfg.Anthropic.HaikuModel,
		ClassifyModel: cfg.Anthropic.HaikuModel,
	})

	return &appEnv{
		Store:    st,
		CRM:      crm,
		WhatsApp: wa,
		Claude:   ai,
		Agent:    a,
		Dedup:    dedup.New(time.Duration(cfg.Dedup.TTLSecs) * time.Second),
	}, nil
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres", "":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newNormalizer builds the batch name-normalization service. The Sonnet
// model handles extraction: it is a batch job where quality beats speed.
func (e *appEnv) newNormalizer() *normalize.Service {
	ai := extract.NewAIStrategy(e.Claude, cfg.Anthropic.SonnetModel)
	return normalize.New(e.CRM, e.Store, extract.DefaultStrategies(ai), normalize.Config{
		AcceptThreshold: cfg.Extract.AcceptThreshold,
		ReviewThreshold: cfg.Extract.ReviewThreshold,
		ApplyThreshold:  cfg.Extract.ApplyThreshold,
		MaxConcurrent:   cfg.Normalize.MaxConcurrentContacts,
		PageSize:        cfg.Normalize.PageSize,
		MaxMessages:     cfg.Extract.MaxMessages,
		BatchBudget:     time.Duration(cfg.Normalize.BatchBudgetMins) * time.Minute,
		ContactBudget:   time.Duration(cfg.Normalize.ContactBudgetSecs) * time.Second,
	})
}
