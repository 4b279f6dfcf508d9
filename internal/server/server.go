// Package server provides the HTTP front end: webhook ingestion, health
// reporting and signed media serving.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/diamondheist/diamondbackend/internal/config"
	"github.com/diamondheist/diamondbackend/internal/pkg/urlsign"
	"github.com/diamondheist/diamondbackend/internal/repository"
)

// secretTokenHeader is echoed back by Telegram on every webhook delivery
// when a secret token was registered.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxUpdateBytes bounds the webhook request body.
const maxUpdateBytes = 1 << 20

// UpdateDispatcher dispatches a decoded update through the bot's command
// router. *bot.Bot satisfies it.
type UpdateDispatcher interface {
	ProcessUpdate(u tele.Update)
}

// Deduper claims an update id, returning false when the id was already
// processed. A nil Deduper disables duplicate suppression.
type Deduper interface {
	Claim(ctx context.Context, updateID int) (bool, error)
}

// BlobGetter loads stored media objects. *repository.BlobRepository
// satisfies it.
type BlobGetter interface {
	Get(ctx context.Context, key string) (*repository.Blob, error)
}

// Dependencies holds everything the HTTP front end needs.
type Dependencies struct {
	Config     *config.Config
	Dispatcher UpdateDispatcher
	Deduper    Deduper
	Blobs      BlobGetter
	Signer     *urlsign.Signer

	// Component checks for the health endpoint.
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	BotReady   func() bool
}

// Server is the HTTP front end.
type Server struct {
	deps *Dependencies
	http *http.Server
}

// New builds the router and the server around it.
func New(deps *Dependencies) *Server {
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/webhook", s.handleWebhook)
	r.Get("/health", s.handleHealth)
	r.Get("/media/*", s.handleMedia)

	s.http = &http.Server{
		Addr:         deps.Config.Server.ListenAddr,
		Handler:      r,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
	}

	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleWebhook is the ingestion adapter: decode, dedupe, dispatch.
// Once dispatch has been attempted the response is 200 regardless of the
// downstream outcome, so Telegram's retry/backoff is never triggered by
// transient downstream failures; those are only logged.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if secret := s.deps.Config.Webhook.SecretToken; secret != "" {
		if r.Header.Get(secretTokenHeader) != secret {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	var update tele.Update
	body := http.MaxBytesReader(w, r.Body, maxUpdateBytes)
	if err := json.NewDecoder(body).Decode(&update); err != nil {
		log.Warn().Err(err).Msg("Malformed webhook body")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if s.deps.Deduper != nil {
		fresh, err := s.deps.Deduper.Claim(r.Context(), update.ID)
		if err != nil {
			// Fail open: a dedupe outage must not drop updates.
			log.Warn().Err(err).Int("update_id", update.ID).Msg("Update dedupe check failed")
		} else if !fresh {
			log.Debug().Int("update_id", update.ID).Msg("Duplicate update ignored")
			s.ok(w)
			return
		}
	}

	s.deps.Dispatcher.ProcessUpdate(update)
	s.ok(w)
}

func (s *Server) ok(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// healthStatus is the health endpoint response body.
type healthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// handleHealth reports whether the bot and storage clients are usable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := healthStatus{
		Status:     "ok",
		Components: map[string]string{},
	}

	if s.deps.BotReady != nil {
		if s.deps.BotReady() {
			status.Components["bot"] = "ok"
		} else {
			status.Components["bot"] = "not initialized"
			status.Status = "degraded"
		}
	}
	if s.deps.DBCheck != nil {
		if err := s.deps.DBCheck(ctx); err != nil {
			status.Components["database"] = err.Error()
			status.Status = "degraded"
		} else {
			status.Components["database"] = "ok"
		}
	}
	if s.deps.RedisCheck != nil {
		if err := s.deps.RedisCheck(ctx); err != nil {
			status.Components["redis"] = err.Error()
			status.Status = "degraded"
		} else {
			status.Components["redis"] = "ok"
		}
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// handleMedia serves a mirrored object after verifying its signed token.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	token := r.URL.Query().Get("token")

	if err := s.deps.Signer.Verify(key, token); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	blob, err := s.deps.Blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, repository.ErrBlobNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("key", key).Msg("Failed to load media object")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(blob.Data)
}

// requestLogger logs each request with zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}
