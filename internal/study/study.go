// Package study runs a review end to end: schedule, write back, classify.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/knoldeck/internal/classifier"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/fsrs"
	"github.com/conorfennell/knoldeck/internal/library"
	"github.com/conorfennell/knoldeck/internal/metrics"
	"github.com/conorfennell/knoldeck/internal/patterns"
	"github.com/conorfennell/knoldeck/internal/writer"
)

// ErrInvalidRating is returned for ratings outside Again..Easy.
var ErrInvalidRating = errors.New("invalid rating")

// Cards is the card collection reviews read from and update.
type Cards interface {
	Card(id string) (domain.Card, domain.Deck, bool)
	UpdateCard(card domain.Card) error
	RescanFile(ctx context.Context, path string) error
}

// Options tunes a Service.
type Options struct {
	Fuzz   bool
	Logger *slog.Logger
}

// Service reviews cards. Reviews touching the same document are serialized,
// so a card never has more than one review in flight.
type Service struct {
	cards      Cards
	files      library.Files
	engine     *fsrs.Engine
	classifier *classifier.Classifier
	profile    *patterns.Profile
	clock      domain.Clock
	fuzz       bool
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(cards Cards, files library.Files, engine *fsrs.Engine, cls *classifier.Classifier, profile *patterns.Profile, clock domain.Clock, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		cards:      cards,
		files:      files,
		engine:     engine,
		classifier: cls,
		profile:    profile,
		clock:      clock,
		fuzz:       opts.Fuzz,
		logger:     opts.Logger,
		metrics:    metrics.New(),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Result is the outcome of a review.
type Result struct {
	Card  domain.Card        `json:"card"`
	Event *domain.ErrorEvent `json:"error_event,omitempty"`
}

// Review grades a card, writes its new schedule into its document and, for
// Again and Hard, records a classified error event.
func (s *Service) Review(ctx context.Context, cardID string, rating domain.Rating, latency *time.Duration) (Result, error) {
	if !rating.IsValid() {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidRating, rating)
	}
	card, _, ok := s.cards.Card(cardID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", library.ErrUnknownCard, cardID)
	}
	path := card.Source.Path
	unlock := s.lock(path)
	defer unlock()

	// Re-read under the lock; a concurrent review may have moved the card.
	card, deck, ok := s.cards.Card(cardID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", library.ErrUnknownCard, cardID)
	}

	now := s.clock.Now()
	updated := s.engine.Apply(card, rating, now, s.fuzz, latency)

	text, err := s.files.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("reading %s: %w", path, err)
	}
	text, err = writer.Apply(text, writer.UpdateFor(updated))
	if err != nil {
		if rescanErr := s.cards.RescanFile(ctx, path); rescanErr != nil {
			s.logger.Warn("rescan after stale range failed", "path", path, "error", rescanErr)
		}
		return Result{}, err
	}
	if err := s.files.WriteFile(path, text); err != nil {
		return Result{}, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := s.cards.UpdateCard(updated); err != nil {
		return Result{}, err
	}
	// The token may have been inserted as a new line.
	if err := s.cards.RescanFile(ctx, path); err != nil {
		s.logger.Warn("rescan after review failed", "path", path, "error", err)
	}

	s.metrics.ReviewsTotal.WithLabelValues(rating.String()).Inc()
	if latency != nil {
		s.metrics.ReviewLatency.Observe(latency.Seconds())
	}

	res := Result{Card: updated}
	if rating == domain.Again || rating == domain.Hard {
		event := s.classifier.Classify(card, rating, latency, classifier.DeckContext{ID: deck.ID, Name: deck.Name}, now)
		if err := s.profile.Record(ctx, event); err != nil {
			return res, fmt.Errorf("recording error event: %w", err)
		}
		s.metrics.ErrorsClassified.WithLabelValues(event.Category.String()).Inc()
		res.Event = &event
	}

	s.logger.Info("card reviewed",
		"card_id", cardID,
		"rating", rating,
		"state", updated.State,
		"interval", updated.Interval,
		"due", updated.Due.Format(time.DateOnly),
	)
	return res, nil
}

// Preview returns the interval in days each rating would give the card now.
func (s *Service) Preview(cardID string) (map[domain.Rating]int, error) {
	card, _, ok := s.cards.Card(cardID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", library.ErrUnknownCard, cardID)
	}
	card = s.engine.Migrate(card)
	return s.engine.PreviewIntervals(fsrs.InputFor(card, domain.Good, false, nil), s.clock.Now()), nil
}

func (s *Service) lock(key string) func() {
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}
