package patterns

import (
	"context"
	"fmt"
	"sync"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// EventsKey is the storage key of the error event history.
const EventsKey = "error_events"

// Store is the key-value collaborator the profile persists through.
type Store interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// Profile is a learner's error history. Events are appended; patterns are
// always rebuilt from the whole history.
type Profile struct {
	store Store
	mu    sync.Mutex
}

// NewProfile creates a profile backed by store.
func NewProfile(store Store) *Profile {
	return &Profile{store: store}
}

// Record appends an event to the history.
func (p *Profile) Record(ctx context.Context, e domain.ErrorEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	events, err := p.load(ctx)
	if err != nil {
		return err
	}
	events = append(events, e)
	if err := p.store.Set(ctx, EventsKey, events); err != nil {
		return fmt.Errorf("failed to save error events: %w", err)
	}
	return nil
}

// Events returns the full event history.
func (p *Profile) Events(ctx context.Context) ([]domain.ErrorEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(ctx)
}

// Patterns aggregates the full event history.
func (p *Profile) Patterns(ctx context.Context) ([]domain.ErrorPattern, error) {
	events, err := p.Events(ctx)
	if err != nil {
		return nil, err
	}
	return Aggregate(events), nil
}

// Reset forgets every recorded event.
func (p *Profile) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Delete(ctx, EventsKey); err != nil {
		return fmt.Errorf("failed to delete error events: %w", err)
	}
	return nil
}

func (p *Profile) load(ctx context.Context) ([]domain.ErrorEvent, error) {
	var events []domain.ErrorEvent
	if _, err := p.store.Get(ctx, EventsKey, &events); err != nil {
		return nil, fmt.Errorf("failed to load error events: %w", err)
	}
	return events, nil
}
