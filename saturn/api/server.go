// Package api exposes the two HTTP surfaces of the engine: the webhook
// that receives message-created events and the queue-delivered
// auto-respond job endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	qstashx "github.com/aisaturn/saturn-engine/pkg/qstash"
	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
	"github.com/aisaturn/saturn-engine/saturn/dispatcher"
)

// Config for the HTTP server, loaded with the SERVER_ prefix.
type Config struct {
	Addr         string        `default:":8080"`
	ReadTimeout  time.Duration `split_words:"true" default:"15s"`
	WriteTimeout time.Duration `split_words:"true" default:"120s"`
}

// EventListener is the intake side consumed by the webhook handler.
type EventListener interface {
	HandleMessage(ctx context.Context, messageID int64) (bool, error)
}

// JobDispatcher runs one auto-respond job to completion.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job dispatcher.Job)
}

// Verifier authenticates queue deliveries.
type Verifier interface {
	Verify(signature string, body []byte) error
}

type messageEvent struct {
	Event     string `json:"event"`
	MessageID int64  `json:"message_id"`
}

type Server struct {
	cfg        Config
	listener   EventListener
	dispatcher JobDispatcher
	verifier   Verifier
	httpServer *http.Server
}

func NewServer(cfg Config, listener EventListener, disp JobDispatcher, verifier Verifier) (*Server, error) {
	if listener == nil || disp == nil || verifier == nil {
		return nil, errors.New("listener, dispatcher and verifier are required")
	}
	return &Server{
		cfg:        cfg,
		listener:   listener,
		dispatcher: disp,
		verifier:   verifier,
	}, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/events/message", s.handleMessageEvent)
	mux.HandleFunc("/jobs/auto-respond", s.handleAutoRespond)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	log.Info().Str("addr", s.cfg.Addr).Msg("http server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleMessageEvent receives message-created webhooks. Events that do not
// lead to a job are still acknowledged; the producer retries on 5xx only.
func (s *Server) handleMessageEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event messageEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if event.Event != "" && event.Event != "message_created" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if event.MessageID <= 0 {
		http.Error(w, "message_id is required", http.StatusBadRequest)
		return
	}

	enqueued, err := s.listener.HandleMessage(r.Context(), event.MessageID)
	if err != nil {
		if errors.Is(err, contractx.ErrNotFound) {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("message_id", event.MessageID).Msg("event intake failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"enqueued": enqueued})
}

// handleAutoRespond is the queue delivery target. The signature check is
// the only authentication; the job runs synchronously so the queue's
// acknowledgement doubles as completion.
func (s *Server) handleAutoRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if err := s.verifier.Verify(r.Header.Get(qstashx.SignatureHeader), body); err != nil {
		log.Warn().Err(err).Msg("rejected unsigned job delivery")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var job dispatcher.Job
	if err := json.Unmarshal(body, &job); err != nil {
		http.Error(w, "invalid job payload", http.StatusBadRequest)
		return
	}
	if job.MessageID <= 0 || job.AgentProfileID <= 0 {
		http.Error(w, "message_id and agent_profile_id are required", http.StatusBadRequest)
		return
	}

	s.dispatcher.Dispatch(r.Context(), job)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}
