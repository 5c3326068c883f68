// Package micro builds short asynchronous challenges from due and upcoming
// cards, and keeps the pending schedule in the store.
package micro

import (
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

const (
	matureStability = 15.0
	youngReps       = 3
	blank           = "___"
)

var gapMarkers = []string{"[...]", blank}

// TimeLimits are the fixed answering windows per challenge type.
var TimeLimits = map[domain.ChallengeType]time.Duration{
	domain.QuickRecall:     10 * time.Second,
	domain.FillTheGap:      15 * time.Second,
	domain.ListeningSnap:   15 * time.Second,
	domain.PictureDescribe: 20 * time.Second,
	domain.CulturalMicro:   10 * time.Second,
}

// Generator turns cards into challenges.
type Generator struct {
	rng *rand.Rand
	ids domain.IDGenerator
}

// NewGenerator creates a generator. A nil rng uses the global source.
func NewGenerator(rng *rand.Rand, ids domain.IDGenerator) *Generator {
	return &Generator{rng: rng, ids: ids}
}

type pooled struct {
	card   domain.Card
	deckID string
	at     time.Time
}

// Generate builds at most limit challenges from cards due within hoursAhead of
// now and cards already overdue. Overdue cards are scheduled from now.
// Scheduled times are pushed out of quiet hours.
func (g *Generator) Generate(decks []domain.Deck, now time.Time, hoursAhead, limit int, quiet QuietHours) []domain.MicroChallenge {
	if limit <= 0 {
		return []domain.MicroChallenge{}
	}
	pool := g.pool(decks, now, hoursAhead, limit)

	out := make([]domain.MicroChallenge, 0, min(limit, len(pool)))
	for _, p := range pool {
		if len(out) == limit {
			break
		}
		typ := g.chooseType(p.card)
		prompt, expected := buildPrompt(typ, p.card)
		out = append(out, domain.MicroChallenge{
			ID:           g.ids.NewID(),
			Type:         typ,
			CardID:       p.card.ID,
			DeckID:       p.deckID,
			Prompt:       prompt,
			Expected:     expected,
			TimeLimit:    TimeLimits[typ],
			ScheduledFor: quiet.Adjust(p.at),
		})
	}
	return out
}

func (g *Generator) pool(decks []domain.Deck, now time.Time, hoursAhead, limit int) []pooled {
	horizon := now.Add(time.Duration(hoursAhead) * time.Hour)
	var upcoming, overdue []pooled
	for _, d := range decks {
		for _, c := range d.Cards {
			switch {
			case c.Due.Before(now):
				overdue = append(overdue, pooled{card: c, deckID: d.ID, at: now})
			case !c.Due.After(horizon):
				upcoming = append(upcoming, pooled{card: c, deckID: d.ID, at: c.Due})
			}
		}
	}

	pool := append(upcoming, overdue...)
	if len(pool) > 2*limit {
		pool = pool[:2*limit]
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].at.Before(pool[j].at) })
	return pool
}

func (g *Generator) chooseType(c domain.Card) domain.ChallengeType {
	switch {
	case c.Stability > matureStability:
		return domain.QuickRecall
	case hasGap(c.Answer):
		return domain.FillTheGap
	case c.Reps < youngReps:
		return domain.QuickRecall
	}
	if g.float() < 0.5 {
		return domain.QuickRecall
	}
	return domain.FillTheGap
}

func (g *Generator) float() float64 {
	if g.rng != nil {
		return g.rng.Float64()
	}
	return rand.Float64()
}

func hasGap(s string) bool {
	for _, m := range gapMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// buildPrompt returns the prompt shown and the answer expected back.
func buildPrompt(typ domain.ChallengeType, c domain.Card) (string, string) {
	if typ != domain.FillTheGap {
		return c.Question, c.Answer
	}
	words := strings.Fields(c.Answer)
	if len(words) < 3 {
		return c.Question, c.Answer
	}
	i := len(words) / 2
	expected := words[i]
	words[i] = blank
	return c.Question + "\n" + strings.Join(words, " "), expected
}
