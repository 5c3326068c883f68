package domain

import (
	"slices"
	"time"
)

// ErrorEvent is one classified failed recall.
type ErrorEvent struct {
	ID          string         `json:"id"`
	CardID      string         `json:"card_id"`
	DeckID      string         `json:"deck_id"`
	Category    Category       `json:"category"`
	Subcategory string         `json:"subcategory,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Latency     *time.Duration `json:"latency,omitempty"`
	Question    string         `json:"question"`
	Answer      string         `json:"answer"`
	Confidence  float64        `json:"confidence"`
}

// ErrorPattern summarises all events sharing a category and subcategory.
type ErrorPattern struct {
	Category       Category  `json:"category"`
	Subcategory    string    `json:"subcategory,omitempty"`
	Count          int       `json:"count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	Trend          Trend     `json:"trend"`
	RelatedCardIDs []string  `json:"related_card_ids"`
	ReductionRate  int       `json:"reduction_rate"` // percent
}

// Involves reports whether the card is one of the pattern's related cards.
func (p ErrorPattern) Involves(cardID string) bool {
	return slices.Contains(p.RelatedCardIDs, cardID)
}

// SessionSegment is one card of a composed study session.
type SessionSegment struct {
	CardID        string `json:"card_id"`
	DeckID        string `json:"deck_id"`
	Card          Card   `json:"card"`
	Mode          Mode   `json:"mode"`
	Justification string `json:"justification"`
}

// MicroChallenge is a short asynchronous prompt built from a due card.
type MicroChallenge struct {
	ID           string        `json:"id"`
	Type         ChallengeType `json:"type"`
	CardID       string        `json:"card_id"`
	DeckID       string        `json:"deck_id"`
	Prompt       string        `json:"prompt"`
	Expected     string        `json:"expected"`
	TimeLimit    time.Duration `json:"time_limit"`
	ScheduledFor time.Time     `json:"scheduled_for"`
}
