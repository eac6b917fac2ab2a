// Package api provides the HTTP admin surface for CarePing.
//
// It exposes endpoints for triggering sends, forcing a scheduling pass,
// and inspecting channel health, pending jobs, and the retry queue.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/karunahq/CarePing/internal/models"
)

// DefaultAddr is the default listen address for the admin API.
const DefaultAddr = ":8080"

// Delivery is the orchestrator surface the API depends on.
type Delivery interface {
	SendForCategory(ctx context.Context, userID string, category models.Category) (models.SendResult, error)
	SendCheckInPrompt(ctx context.Context, userID string) (models.SendResult, error)
	SendDirect(ctx context.Context, userID, body string) (models.SendResult, error)
	ChannelHealthSnapshot() []models.ChannelHealth
	RetryQueueSnapshot() []models.RetryEntry
	ResetChannel(ctx context.Context, name string) error
}

// Scheduling is the scheduler surface the API depends on.
type Scheduling interface {
	ScheduleAll() error
	ScheduleUser(userID string) error
	CancelJobsFor(userID string) int
	Jobs() []models.Job
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server is the admin HTTP server.
type Server struct {
	addr       string
	delivery   Delivery
	scheduling Scheduling
	httpServer *http.Server
}

// NewServer creates the admin API server.
func NewServer(delivery Delivery, scheduling Scheduling, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{addr: cfg.Addr, delivery: delivery, scheduling: scheduling}
}

// Handler builds the route mux. Exposed separately so tests can drive it
// through httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/send", s.sendHandler)
	mux.HandleFunc("/reschedule", s.rescheduleHandler)
	mux.HandleFunc("/jobs", s.jobsHandler)
	mux.HandleFunc("/channels", s.channelsHandler)
	mux.HandleFunc("/channels/reset", s.resetChannelHandler)
	mux.HandleFunc("/retries", s.retriesHandler)
	return mux
}

// Start begins serving on the configured address.
func (s *Server) Start() {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	go func() {
		slog.Info("Admin API listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Admin API server failed", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// sendRequest is the body of POST /send. Exactly one of Category or Body
// should be set; Category "checkin" starts a check-in.
type sendRequest struct {
	UserID   string          `json:"user_id"`
	Category models.Category `json:"category,omitempty"`
	Body     string          `json:"body,omitempty"`
}

func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, models.Error("user_id is required"))
		return
	}

	var (
		result models.SendResult
		err    error
	)
	switch {
	case req.Body != "":
		result, err = s.delivery.SendDirect(r.Context(), req.UserID, req.Body)
	case req.Category == models.CategoryCheckIn:
		result, err = s.delivery.SendCheckInPrompt(r.Context(), req.UserID)
	case req.Category != "":
		result, err = s.delivery.SendForCategory(r.Context(), req.UserID, req.Category)
	default:
		writeJSON(w, http.StatusBadRequest, models.Error("either category or body is required"))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.Error(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(result))
}

// rescheduleRequest is the body of POST /reschedule. An empty user_id
// reschedules every user.
type rescheduleRequest struct {
	UserID string `json:"user_id,omitempty"`
}

func (s *Server) rescheduleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	var req rescheduleRequest
	if r.Body != nil {
		// Body is optional; decode errors on an empty body are fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var err error
	if req.UserID != "" {
		s.scheduling.CancelJobsFor(req.UserID)
		err = s.scheduling.ScheduleUser(req.UserID)
	} else {
		err = s.scheduling.ScheduleAll()
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.Error(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(map[string]int{"pending_jobs": len(s.scheduling.Jobs())}))
}

func (s *Server) jobsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(s.scheduling.Jobs()))
}

func (s *Server) channelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(s.delivery.ChannelHealthSnapshot()))
}

// resetChannelRequest is the body of POST /channels/reset.
type resetChannelRequest struct {
	Name string `json:"name"`
}

func (s *Server) resetChannelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	var req resetChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, models.Error("name is required"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.delivery.ResetChannel(ctx, req.Name); err != nil {
		if errors.Is(err, models.ErrChannelNotRegistered) {
			writeJSON(w, http.StatusNotFound, models.Error(err.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.Error(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(nil))
}

func (s *Server) retriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(s.delivery.RetryQueueSnapshot()))
}

func writeJSON(w http.ResponseWriter, status int, resp models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode API response", "error", err)
	}
}
