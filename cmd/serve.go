package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clinica-duran/eva/internal/agent"
	"github.com/clinica-duran/eva/internal/config"
	"github.com/clinica-duran/eva/internal/model"
	"github.com/clinica-duran/eva/pkg/whatsapp"
)

// maxWebhookBody caps inbound webhook payloads; Cloud API batches are
// small and anything larger is abuse.
const maxWebhookBody = 1 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WhatsApp webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, cfg.WhatsApp, cfg.Budget),
			ReadHeaderTimeout: 5 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the webhook HTTP surface.
func newRouter(env *appEnv, wa config.WhatsAppConfig, budget config.BudgetConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := env.Store.Ping(req.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			zap.L().Warn("health check: store unreachable", zap.Error(err))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	// Meta's webhook subscription handshake.
	r.Get("/webhook/whatsapp", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != wa.VerifyToken {
			http.Error(w, "verification failed", http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, q.Get("hub.challenge"))
	})

	r.Post("/webhook/whatsapp", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		if !whatsapp.VerifySignature(wa.AppSecret, body, req.Header.Get("X-Hub-Signature-256")) {
			zap.L().Warn("webhook: signature verification failed")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		payload, err := whatsapp.ParsePayload(body)
		if err != nil {
			zap.L().Warn("webhook: malformed payload", zap.Error(err))
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}

		for _, ev := range eventsFromPayload(payload) {
			// Meta retries deliveries; duplicates must not produce a
			// second reply.
			if !env.Dedup.InsertIfAbsent(ev.MessageID) {
				zap.L().Debug("webhook: duplicate delivery dropped",
					zap.String("message_id", ev.MessageID))
				continue
			}

			// Reply asynchronously: Meta expects a fast 200 and the
			// agent's own budget bounds the work.
			go func() {
				rctx, cancel := context.WithTimeout(context.Background(),
					budget.Allowance()+5*time.Second)
				defer cancel()

				if _, err := env.Agent.Run(rctx, ev); err != nil {
					zap.L().Error("webhook: reply failed",
						zap.String("message_id", ev.MessageID),
						zap.Error(err),
					)
				}
			}()
		}

		w.WriteHeader(http.StatusOK)
	})

	// Single-contact normalization, triggered by CRM automation when a
	// contact's name looks wrong. Runs under the per-contact budget.
	r.Post("/contacts/{id}/normalize", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		contact, err := env.CRM.GetContact(req.Context(), id)
		if err != nil {
			zap.L().Warn("normalize: contact lookup failed",
				zap.String("contact_id", id), zap.Error(err))
			http.Error(w, "contact lookup failed", http.StatusBadGateway)
			return
		}

		outcome, err := env.newNormalizer().Contact(req.Context(), *contact, 0)
		if err != nil {
			zap.L().Warn("normalize: contact failed",
				zap.String("contact_id", id), zap.Error(err))
			http.Error(w, "normalization failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"outcome": string(outcome)})
	})

	return r
}

// eventsFromPayload flattens the webhook envelope into agent events. The
// sender's phone number doubles as the conversation and contact key.
func eventsFromPayload(p *whatsapp.WebhookPayload) []agent.Event {
	var events []agent.Event
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}

			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}

			for _, msg := range change.Value.Messages {
				ev := agent.Event{
					MessageID:      msg.ID,
					ConversationID: msg.From,
					ContactID:      msg.From,
					From:           msg.From,
					ProfileName:    names[msg.From],
				}
				switch msg.Type {
				case "audio":
					if msg.Audio == nil {
						continue
					}
					ev.Kind = model.KindAudio
					ev.MediaID = msg.Audio.ID
					ev.MediaType = msg.Audio.MimeType
				case "image":
					if msg.Image == nil {
						continue
					}
					ev.Kind = model.KindImage
					ev.MediaID = msg.Image.ID
					ev.MediaType = msg.Image.MimeType
					ev.Text = msg.Image.Caption
				case "text":
					if msg.Text == nil {
						continue
					}
					ev.Kind = model.KindText
					ev.Text = msg.Text.Body
				default:
					zap.L().Debug("webhook: unsupported message type skipped",
						zap.String("type", msg.Type),
						zap.String("message_id", msg.ID),
					)
					continue
				}
				events = append(events, ev)
			}
		}
	}
	return events
}
