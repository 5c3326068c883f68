package micro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/metrics"
)

// ErrUnknownChallenge is returned when completing a challenge that is not pending.
var ErrUnknownChallenge = errors.New("unknown challenge")

// Store keys.
const (
	ScheduleKey   = "micro_schedule"
	QuietHoursKey = "quiet_hours"
)

// Store is the key-value collaborator the schedule is persisted in.
type Store interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// Config bounds a generation run.
type Config struct {
	HoursAhead    int `koanf:"hours_ahead" validate:"min=1"`
	MaxChallenges int `koanf:"max_challenges" validate:"min=1"`
}

// DefaultConfig looks a day ahead and caps a run at five challenges.
func DefaultConfig() Config {
	return Config{HoursAhead: 24, MaxChallenges: 5}
}

// Validate checks that both bounds are positive.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid micro config: %w", err)
	}
	return nil
}

// Scheduler keeps the pending challenges and quiet hours in a Store.
type Scheduler struct {
	store    Store
	gen      *Generator
	clock    domain.Clock
	defaults QuietHours
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu sync.Mutex
}

// NewScheduler creates a scheduler. defaults is used until quiet hours are
// first saved.
func NewScheduler(store Store, gen *Generator, clock domain.Clock, defaults QuietHours, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		gen:      gen,
		clock:    clock,
		defaults: defaults,
		metrics:  metrics.New(),
		logger:   logger,
	}
}

// Generate builds new challenges from decks and adds them to the pending
// schedule. A card with a challenge already pending has it replaced.
func (s *Scheduler) Generate(ctx context.Context, decks []domain.Deck, cfg Config) ([]domain.MicroChallenge, error) {
	quiet, err := s.QuietHours(ctx)
	if err != nil {
		return nil, err
	}
	generated := s.gen.Generate(decks, s.clock.Now(), cfg.HoursAhead, cfg.MaxChallenges, quiet)

	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	replaced := make(map[string]bool, len(generated))
	for _, c := range generated {
		replaced[c.CardID] = true
	}
	merged := make([]domain.MicroChallenge, 0, len(pending)+len(generated))
	for _, c := range pending {
		if !replaced[c.CardID] {
			merged = append(merged, c)
		}
	}
	merged = append(merged, generated...)
	if err := s.store.Set(ctx, ScheduleKey, merged); err != nil {
		return nil, fmt.Errorf("failed to save challenge schedule: %w", err)
	}

	for _, c := range generated {
		s.metrics.ChallengesGenerated.WithLabelValues(c.Type.String()).Inc()
	}
	s.logger.Info("micro challenges generated", "generated", len(generated), "pending", len(merged))
	return generated, nil
}

// Pending returns the challenges whose scheduled time has been reached,
// ordered by scheduled time. Later challenges stay stored until then.
func (s *Scheduler) Pending(ctx context.Context) ([]domain.MicroChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	pending := make([]domain.MicroChallenge, 0, len(stored))
	for _, c := range stored {
		if !c.ScheduledFor.After(now) {
			pending = append(pending, c)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].ScheduledFor.Before(pending[j].ScheduledFor)
	})
	return pending, nil
}

// Complete removes a challenge from the pending schedule and returns it.
func (s *Scheduler) Complete(ctx context.Context, id string) (domain.MicroChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.load(ctx)
	if err != nil {
		return domain.MicroChallenge{}, err
	}
	for i, c := range pending {
		if c.ID != id {
			continue
		}
		rest := append(pending[:i:i], pending[i+1:]...)
		if err := s.store.Set(ctx, ScheduleKey, rest); err != nil {
			return domain.MicroChallenge{}, fmt.Errorf("failed to save challenge schedule: %w", err)
		}
		s.metrics.ChallengesCompleted.Inc()
		return c, nil
	}
	return domain.MicroChallenge{}, fmt.Errorf("%w: %s", ErrUnknownChallenge, id)
}

// QuietHours returns the saved quiet hours, or the defaults if none were saved.
func (s *Scheduler) QuietHours(ctx context.Context) (QuietHours, error) {
	q := s.defaults
	if _, err := s.store.Get(ctx, QuietHoursKey, &q); err != nil {
		return QuietHours{}, fmt.Errorf("failed to load quiet hours: %w", err)
	}
	return q, nil
}

// SetQuietHours validates and saves the quiet hours used by later runs.
func (s *Scheduler) SetQuietHours(ctx context.Context, q QuietHours) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if err := s.store.Set(ctx, QuietHoursKey, q); err != nil {
		return fmt.Errorf("failed to save quiet hours: %w", err)
	}
	return nil
}

func (s *Scheduler) load(ctx context.Context) ([]domain.MicroChallenge, error) {
	var pending []domain.MicroChallenge
	if _, err := s.store.Get(ctx, ScheduleKey, &pending); err != nil {
		return nil, fmt.Errorf("failed to load challenge schedule: %w", err)
	}
	return pending, nil
}
