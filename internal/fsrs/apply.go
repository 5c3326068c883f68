package fsrs

import (
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// InputFor builds the engine input for reviewing card with rating.
func InputFor(card domain.Card, rating domain.Rating, fuzz bool, latency *time.Duration) Input {
	return Input{
		Interval:   card.Interval,
		Ease:       card.Ease,
		Rating:     rating,
		Reviews:    card.Reviews,
		Fuzz:       fuzz,
		Difficulty: card.Difficulty,
		Stability:  card.Stability,
		State:      card.State,
		LastReview: card.LastReview,
		Lapses:     card.Lapses,
		Latency:    latency,
	}
}

// Apply reviews card at now and returns the updated card. The input card is
// not mutated. Cards recovered from a legacy token are migrated first.
func (e *Engine) Apply(card domain.Card, rating domain.Rating, now time.Time, fuzz bool, latency *time.Duration) domain.Card {
	c := e.Migrate(card)
	next := e.NextSchedule(InputFor(c, rating, fuzz, latency), now)

	c.Due = next.Due
	c.Interval = next.Interval
	c.Ease = next.Ease
	c.Difficulty = next.Difficulty
	c.Stability = next.Stability
	c.Retrievability = next.Retrievability
	c.ElapsedDays = next.ElapsedDays
	c.ScheduledDays = next.ScheduledDays
	c.State = next.State
	c.Lapses = next.Lapses
	c.Reviews++
	if rating != domain.Again {
		c.Reps++
	}
	reviewed := now
	c.LastReview = &reviewed
	c.LastLatency = latency
	return c
}

// Migrate converts a reviewed card that only carries the legacy interval
// and ease into memory-model terms. Other cards are returned unchanged.
func (e *Engine) Migrate(card domain.Card) domain.Card {
	if card.State == domain.New || card.Difficulty != 0 || card.Stability != 0 || card.Interval <= 0 {
		return card
	}
	retention := e.params.DesiredRetention
	card.Difficulty = clampDifficulty(5 - float64(card.Ease-250)/30)
	card.Stability = clamp(float64(card.Interval)*Factor/(1/retention-1), minStability, maxStability)
	return card
}
