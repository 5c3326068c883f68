package domain

import "time"

// Location is where a card lives in its source document.
// LineStart and LineEnd are zero-based and inclusive.
type Location struct {
	Path      string `json:"path"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
}

// Card is a single reviewable item together with its scheduling state.
type Card struct {
	ID            string   `json:"id"`
	DeckID        string   `json:"deck_id"`
	Question      string   `json:"question"`
	Answer        string   `json:"answer"`
	Bidirectional bool     `json:"bidirectional"`
	Source        Location `json:"source"`

	Due            time.Time      `json:"due"`
	Interval       int            `json:"interval"` // days
	Ease           int            `json:"ease"`     // legacy, written for older readers only
	Reviews        int            `json:"reviews"`
	Difficulty     float64        `json:"difficulty"`
	Stability      float64        `json:"stability"`
	Retrievability float64        `json:"retrievability"`
	ElapsedDays    int            `json:"elapsed_days"`
	ScheduledDays  int            `json:"scheduled_days"`
	LastReview     *time.Time     `json:"last_review,omitempty"`
	Reps           int            `json:"reps"`
	Lapses         int            `json:"lapses"`
	State          State          `json:"state"`
	LastLatency    *time.Duration `json:"last_latency,omitempty"`
}

// IsDue reports whether the card should be presented at now.
func (c Card) IsDue(now time.Time) bool {
	return !c.Due.After(now)
}

// ParsedCard is what the parser extracts from a document before the card
// is given an identity. Schedule fields are nil when the text carried no
// scheduling token.
type ParsedCard struct {
	Question      string
	Answer        string
	LineStart     int
	LineEnd       int
	Bidirectional bool

	Due        *time.Time
	Interval   *int
	Ease       *int
	Difficulty *float64
	Stability  *float64
}

// HasSchedule reports whether a scheduling token was recovered for the card.
func (p ParsedCard) HasSchedule() bool {
	return p.Due != nil
}

// DefaultEase is the legacy ease given to cards that have never been scheduled.
const DefaultEase = 250

// NewCard turns a parsed card into a Card. Cards without a recovered
// schedule start New and are due at now. Cards with a recovered schedule
// resume in Review, with their last review placed one interval before
// the recovered due date.
func NewCard(p ParsedCard, deckID, path string, ids IDGenerator, now time.Time) Card {
	c := Card{
		ID:            ids.NewID(),
		DeckID:        deckID,
		Question:      p.Question,
		Answer:        p.Answer,
		Bidirectional: p.Bidirectional,
		Source:        Location{Path: path, LineStart: p.LineStart, LineEnd: p.LineEnd},
		Due:           now,
		Ease:          DefaultEase,
		State:         New,
	}
	if !p.HasSchedule() {
		return c
	}

	c.Due = *p.Due
	c.State = Review
	if p.Interval != nil {
		c.Interval = *p.Interval
	}
	if p.Ease != nil {
		c.Ease = *p.Ease
	}
	if p.Difficulty != nil {
		c.Difficulty = *p.Difficulty
	}
	if p.Stability != nil {
		c.Stability = *p.Stability
	}
	last := c.Due.AddDate(0, 0, -c.Interval)
	c.LastReview = &last
	c.ScheduledDays = c.Interval
	return c
}

// Deck is a named folder of documents and the cards parsed from them.
type Deck struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	LastScan time.Time `json:"last_scan"`
	Cards    []Card    `json:"cards"`
}

// Card returns the card with the given id.
func (d *Deck) Card(id string) (*Card, bool) {
	for i := range d.Cards {
		if d.Cards[i].ID == id {
			return &d.Cards[i], true
		}
	}
	return nil, false
}

// DueCards returns the cards due at now, in deck order.
func (d *Deck) DueCards(now time.Time) []Card {
	var due []Card
	for _, c := range d.Cards {
		if c.IsDue(now) {
			due = append(due, c)
		}
	}
	return due
}

// NewDeck builds a deck over the given cards. Each card is assigned to the deck.
func NewDeck(id, name, path string, cards []Card, scannedAt time.Time) Deck {
	for i := range cards {
		cards[i].DeckID = id
	}
	if cards == nil {
		cards = []Card{}
	}
	return Deck{ID: id, Name: name, Path: path, LastScan: scannedAt, Cards: cards}
}
