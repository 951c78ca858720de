// Package rendezvous implements the room-code relay both peers use to swap
// their handshake blobs, plus the HTTP client for it. The relay carries no
// game traffic: one offer and at most one answer per code, then the room is
// dead weight until its TTL reaps it.
package rendezvous

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const sweepInterval = 30 * time.Second

type Metrics struct {
	RoomsCreated prometheus.Counter
	RoomsClaimed prometheus.Counter
	RoomsExpired prometheus.Counter
	RateLimited  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RoomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagduel_rooms_created_total",
			Help: "Rooms created on the relay.",
		}),
		RoomsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagduel_rooms_claimed_total",
			Help: "Rooms that received an answer.",
		}),
		RoomsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagduel_rooms_expired_total",
			Help: "Rooms reaped by TTL expiry.",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagduel_room_create_rate_limited_total",
			Help: "Room creations refused by the per-origin rate limit.",
		}),
	}
}

type Server struct {
	store   *Store
	log     *zap.Logger
	metrics *Metrics
	allowed map[string]bool
}

// NewServer wires a relay around the given store. An empty allowlist admits
// every origin, which is what tests and local play want.
func NewServer(store *Store, allowedOrigins []string, metrics *Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Server{store: store, log: log, metrics: metrics, allowed: allowed}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.checkOrigin)
	r.Post("/rooms", s.createRoom)
	r.Get("/rooms/{code}", s.roomStatus)
	r.Post("/rooms/{code}/answer", s.submitAnswer)
	return r
}

// Sweeper reaps expired rooms until ctx is done. Run it in its own goroutine
// next to the HTTP server.
func (s *Server) Sweeper(done <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if n := s.store.Sweep(); n > 0 {
				s.log.Info("reaped expired rooms", zap.Int("count", n))
				if s.metrics != nil {
					s.metrics.RoomsExpired.Add(float64(n))
				}
			}
		}
	}
}

type createRequest struct {
	Offer string `json:"offer"`
}

type createResponse struct {
	Code      string `json:"code"`
	ExpiresIn int    `json:"expires_in"`
}

type statusResponse struct {
	Offer     string `json:"offer"`
	HasAnswer bool   `json:"has_answer"`
	Answer    string `json:"answer,omitempty"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Offer == "" {
		writeError(w, http.StatusBadRequest, "missing offer")
		return
	}
	t, err := s.store.Create(originOf(r), req.Offer)
	switch {
	case errors.Is(err, ErrRateLimited):
		if s.metrics != nil {
			s.metrics.RateLimited.Inc()
		}
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	case err != nil:
		s.log.Error("room creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	if s.metrics != nil {
		s.metrics.RoomsCreated.Inc()
	}
	s.log.Info("room created", zap.String("code", t.Code))
	writeJSON(w, http.StatusCreated, createResponse{
		Code:      t.Code,
		ExpiresIn: int(time.Until(t.ExpiresAt).Seconds()),
	})
}

func (s *Server) roomStatus(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.Get(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Offer:     t.Offer,
		HasAnswer: t.HasAnswer,
		Answer:    t.Answer,
	})
}

func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Answer == "" {
		writeError(w, http.StatusBadRequest, "missing answer")
		return
	}
	code := chi.URLParam(r, "code")
	t, err := s.store.Answer(code, req.Answer)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "room not found")
		return
	case errors.Is(err, ErrClaimed):
		writeError(w, http.StatusConflict, "room already claimed")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to store answer")
		return
	}
	if s.metrics != nil {
		s.metrics.RoomsClaimed.Inc()
	}
	s.log.Info("room claimed", zap.String("code", code))
	writeJSON(w, http.StatusOK, statusResponse{Offer: t.Offer, HasAnswer: true, Answer: t.Answer})
}

func (s *Server) checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowed) > 0 && !s.allowed[r.Header.Get("Origin")] {
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originOf keys the rate limiter: the Origin header when present, else the
// caller's address.
func originOf(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
