// Package web serves the study operations as a JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/library"
	"github.com/conorfennell/knoldeck/internal/micro"
	"github.com/conorfennell/knoldeck/internal/session"
	"github.com/conorfennell/knoldeck/internal/storage"
	"github.com/conorfennell/knoldeck/internal/study"
	"github.com/conorfennell/knoldeck/internal/writer"
)

// Decks is the deck collection the server reads and scans.
type Decks interface {
	Decks() []domain.Deck
	AddSource(ctx context.Context, name, path string) (*storage.Source, error)
	Scan(ctx context.Context, src storage.Source) (domain.Deck, error)
	ScanAll(ctx context.Context) ([]domain.Deck, error)
}

// Patterns supplies the learner's current error patterns.
type Patterns interface {
	Patterns(ctx context.Context) ([]domain.ErrorPattern, error)
}

// Deps are the server's collaborators.
type Deps struct {
	Decks    Decks
	Study    *study.Service
	Composer *session.Composer
	Patterns Patterns
	Micro    *micro.Scheduler
	Session  session.Config
	Runs     micro.Config
	Clock    domain.Clock
	Logger   *slog.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	Deps
	router *http.ServeMux
}

// NewServer creates and configures a new server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	s := &Server{Deps: deps, router: http.NewServeMux()}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.router.ServeHTTP(w, r)
	s.Logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /decks", s.handleGetDecks())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())

	s.router.HandleFunc("GET /session", s.handleGetSession())
	s.router.HandleFunc("POST /review/{cardID}", s.handlePostReview())
	s.router.HandleFunc("GET /preview/{cardID}", s.handleGetPreview())
	s.router.HandleFunc("GET /patterns", s.handleGetPatterns())

	s.router.HandleFunc("POST /challenges", s.handlePostChallenges())
	s.router.HandleFunc("GET /challenges/pending", s.handleGetPendingChallenges())
	s.router.HandleFunc("POST /challenges/{id}/complete", s.handleCompleteChallenge())
	s.router.HandleFunc("GET /quiet-hours", s.handleGetQuietHours())
	s.router.HandleFunc("PUT /quiet-hours", s.handlePutQuietHours())

	s.router.Handle("GET /metrics", promhttp.Handler())
}

type deckSummary struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	LastScan time.Time `json:"last_scan"`
	Cards    int       `json:"cards"`
	Due      int       `json:"due"`
}

func summarize(d domain.Deck, now time.Time) deckSummary {
	return deckSummary{
		ID:       d.ID,
		Name:     d.Name,
		Path:     d.Path,
		LastScan: d.LastScan,
		Cards:    len(d.Cards),
		Due:      len(d.DueCards(now)),
	}
}

// handleGetDecks lists every deck with its due count.
func (s *Server) handleGetDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := s.Clock.Now()
		decks := s.Decks.Decks()
		out := make([]deckSummary, 0, len(decks))
		for _, d := range decks {
			out = append(out, summarize(d, now))
		}
		s.writeJSON(w, http.StatusOK, out)
	}
}

// handlePostSource registers a deck source and scans it.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
			s.writeError(w, http.StatusBadRequest, errors.New("path cannot be empty"))
			return
		}

		src, err := s.Decks.AddSource(r.Context(), req.Name, req.Path)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		deck, err := s.Decks.Scan(r.Context(), *src)
		if err != nil {
			s.writeError(w, http.StatusBadGateway, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, summarize(deck, s.Clock.Now()))
	}
}

// handlePostSync rescans every source.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.Decks.ScanAll(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		now := s.Clock.Now()
		out := make([]deckSummary, 0, len(decks))
		for _, d := range decks {
			out = append(out, summarize(d, now))
		}
		s.writeJSON(w, http.StatusOK, out)
	}
}

// handleGetSession composes a session. size and focus override the
// configured session size and weakness focus.
func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := s.Session
		q := r.URL.Query()
		if v := q.Get("size"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, errors.New("invalid size"))
				return
			}
			cfg.SessionSize = n
		}
		if v := q.Get("focus"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, errors.New("invalid focus"))
				return
			}
			cfg.WeaknessFocus = f
		}
		if err := cfg.Validate(); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}

		patterns, err := s.Patterns.Patterns(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.Composer.Compose(s.Decks.Decks(), patterns, cfg, s.Clock.Now()))
	}
}

// handlePostReview grades a card: {"rating": "good", "latency_ms": 3200}.
// The rating may also be its number, 1 to 4.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Rating    json.RawMessage `json:"rating"`
			LatencyMS *int64          `json:"latency_ms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, errors.New("invalid review body"))
			return
		}
		rating, err := parseRating(req.Rating)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		var latency *time.Duration
		if req.LatencyMS != nil {
			d := time.Duration(*req.LatencyMS) * time.Millisecond
			latency = &d
		}

		res, err := s.Study.Review(r.Context(), r.PathValue("cardID"), rating, latency)
		if err != nil {
			s.writeError(w, statusFor(err), err)
			return
		}
		s.writeJSON(w, http.StatusOK, res)
	}
}

func parseRating(raw json.RawMessage) (domain.Rating, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return domain.Rating(n), nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return 0, study.ErrInvalidRating
	}
	return domain.ParseRating(name)
}

// handleGetPreview shows the interval each rating would give.
func (s *Server) handleGetPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		preview, err := s.Study.Preview(r.PathValue("cardID"))
		if err != nil {
			s.writeError(w, statusFor(err), err)
			return
		}
		out := make(map[string]int, len(preview))
		for rating, days := range preview {
			out[rating.String()] = days
		}
		s.writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleGetPatterns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patterns, err := s.Patterns.Patterns(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		if patterns == nil {
			patterns = []domain.ErrorPattern{}
		}
		s.writeJSON(w, http.StatusOK, patterns)
	}
}

// handlePostChallenges generates micro challenges. hours and max override
// the configured run.
func (s *Server) handlePostChallenges() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := s.Runs
		q := r.URL.Query()
		for key, dst := range map[string]*int{"hours": &cfg.HoursAhead, "max": &cfg.MaxChallenges} {
			v := q.Get(key)
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, errors.New("invalid "+key))
				return
			}
			*dst = n
		}
		if err := cfg.Validate(); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}

		challenges, err := s.Micro.Generate(r.Context(), s.Decks.Decks(), cfg)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, challenges)
	}
}

func (s *Server) handleGetPendingChallenges() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := s.Micro.Pending(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		if pending == nil {
			pending = []domain.MicroChallenge{}
		}
		s.writeJSON(w, http.StatusOK, pending)
	}
}

func (s *Server) handleCompleteChallenge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.Micro.Complete(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, statusFor(err), err)
			return
		}
		s.writeJSON(w, http.StatusOK, c)
	}
}

func (s *Server) handleGetQuietHours() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := s.Micro.QuietHours(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.writeJSON(w, http.StatusOK, q)
	}
}

func (s *Server) handlePutQuietHours() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q micro.QuietHours
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			s.writeError(w, http.StatusBadRequest, errors.New("invalid quiet hours body"))
			return
		}
		if err := s.Micro.SetQuietHours(r.Context(), q); err != nil {
			s.writeError(w, statusFor(err), err)
			return
		}
		s.writeJSON(w, http.StatusOK, q)
	}
}

func statusFor(err error) int {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, library.ErrUnknownCard), errors.Is(err, micro.ErrUnknownChallenge):
		return http.StatusNotFound
	case errors.Is(err, study.ErrInvalidRating), errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, writer.ErrStaleRange):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
