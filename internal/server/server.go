// Package server exposes the ingest surface: an HTTP endpoint accepting
// developer-activity events and a WebSocket fan-out for delivered insights.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/events"
	"github.com/cortex-mentor/cortex/pkg/logging"
	"github.com/cortex-mentor/cortex/pkg/queue"
)

// Enqueuer is the slice of the task queue the ingest route needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, task string, payload interface{}) error
}

// Subscriber feeds the WebSocket hub with broadcast payloads.
type Subscriber interface {
	Subscribe(ctx context.Context) <-chan []byte
}

// Server owns the HTTP listener and the WebSocket hub.
type Server struct {
	addr       string
	tasks      Enqueuer
	subscriber Subscriber
	hub        *Hub
	httpServer *http.Server
}

func New(addr string, tasks Enqueuer, subscriber Subscriber) *Server {
	s := &Server{
		addr:       addr,
		tasks:      tasks,
		subscriber: subscriber,
		hub:        NewHub(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", requireMethod(http.MethodPost, s.handleCreateEvent))
	mux.HandleFunc("/ws", requireMethod(http.MethodGet, s.hub.ServeWS))
	mux.HandleFunc("/health", requireMethod(http.MethodGet, s.handleHealth))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until ctx is canceled, relaying subscribed broadcast payloads
// to WebSocket clients in the background.
func (s *Server) Run(ctx context.Context) error {
	logger := logging.GetLogger()

	if s.subscriber != nil {
		go s.hub.Relay(ctx, s.subscriber.Subscribe(ctx))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	logger.Info(ctx, "HTTP server listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.Wrap(err, errors.ServiceUnavailable, "http server failed")
	}
}

// handleCreateEvent validates the tagged event shape and enqueues it for the
// worker. The caller is acknowledged only that the event was accepted for
// processing; downstream failures are observability-only.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLogger()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	event, err := events.Parse(body)
	if err != nil {
		logger.Warn(r.Context(), "Rejected event: %v", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	if s.tasks == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "task queue not available"})
		return
	}
	if err := s.tasks.Enqueue(r.Context(), queue.TaskComprehendEvent, json.RawMessage(body)); err != nil {
		logger.Error(r.Context(), "Failed to enqueue event: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "failed to queue event"})
		return
	}

	logger.Info(r.Context(), "Accepted %s event for processing", event.Kind())
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Event received and queued for processing."})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireMethod emulates Go 1.22's "METHOD /path" mux patterns on older
// toolchains: requests with a different method get 405 Method Not Allowed.
func requireMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
