// Package session composes a study session from due cards, steering part
// of it towards the learner's recurring error patterns and assigning each
// card a presentation mode.
package session

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/knoldeck/internal/domain"
)

const (
	weakPatternLimit = 5
	socraticLapses   = 3
	matureStability  = 10.0
)

// modeWeights are the relative chances of each mode when no rule applies.
var modeWeights = map[domain.Mode]int{
	domain.Flash:    60,
	domain.Socratic: 25,
	domain.Feynman:  15,
}

// Config shapes a session.
type Config struct {
	SessionSize      int           `koanf:"size" validate:"min=1"`
	WeaknessFocus    float64       `koanf:"weakness_focus" validate:"gte=0,lte=1"`
	CrossDeckMixing  bool          `koanf:"cross_deck_mixing"`
	DifficultySpread bool          `koanf:"difficulty_spread"`
	EnabledModes     []domain.Mode `koanf:"enabled_modes"`
}

// DefaultConfig returns a twenty card session with a third of it spent on weaknesses.
func DefaultConfig() Config {
	return Config{
		SessionSize:      20,
		WeaknessFocus:    0.3,
		CrossDeckMixing:  true,
		DifficultySpread: true,
		EnabledModes:     []domain.Mode{domain.Flash, domain.Socratic, domain.Feynman},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config's ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}
	return nil
}

func (c Config) enabled(m domain.Mode) bool {
	for _, e := range c.EnabledModes {
		if e == m {
			return true
		}
	}
	return false
}

// Composer builds sessions. A Composer is not safe for concurrent use when
// it owns a seeded random source.
type Composer struct {
	rng *rand.Rand
}

// NewComposer creates a composer. A nil rng uses the global source.
func NewComposer(rng *rand.Rand) *Composer {
	return &Composer{rng: rng}
}

type candidate struct {
	card   domain.Card
	deckID string
}

// Compose selects and orders the due cards for a session at now.
func (c *Composer) Compose(decks []domain.Deck, patterns []domain.ErrorPattern, cfg Config, now time.Time) []domain.SessionSegment {
	pool := duePool(decks, cfg.CrossDeckMixing, now)
	if len(pool) == 0 || cfg.SessionSize <= 0 {
		return []domain.SessionSegment{}
	}

	weakIDs := weakCardIDs(patterns)
	var weak, general []candidate
	for _, cand := range pool {
		if weakIDs[cand.card.ID] {
			weak = append(weak, cand)
		} else {
			general = append(general, cand)
		}
	}

	weakTarget := max(0, min(int(math.Round(float64(cfg.SessionSize)*cfg.WeaknessFocus)), len(weak), cfg.SessionSize))
	sort.SliceStable(weak, func(i, j int) bool {
		return weak[i].card.Difficulty > weak[j].card.Difficulty
	})
	generalTarget := min(cfg.SessionSize-weakTarget, len(general))
	sort.SliceStable(general, func(i, j int) bool {
		return general[i].card.Due.Before(general[j].card.Due)
	})

	selected := make([]candidate, 0, weakTarget+generalTarget)
	selected = append(selected, weak[:weakTarget]...)
	selected = append(selected, general[:generalTarget]...)
	ordered := interleave(selected, cfg.DifficultySpread)

	segments := make([]domain.SessionSegment, 0, len(ordered))
	for _, cand := range ordered {
		mode, why := c.assignMode(cand.card, patterns, cfg)
		segments = append(segments, domain.SessionSegment{
			CardID:        cand.card.ID,
			DeckID:        cand.deckID,
			Card:          cand.card,
			Mode:          mode,
			Justification: why,
		})
	}
	return segments
}

func duePool(decks []domain.Deck, crossDeck bool, now time.Time) []candidate {
	if !crossDeck && len(decks) > 1 {
		decks = decks[:1]
	}
	var pool []candidate
	for _, d := range decks {
		for _, card := range d.Cards {
			if card.IsDue(now) {
				pool = append(pool, candidate{card: card, deckID: d.ID})
			}
		}
	}
	return pool
}

func weakCardIDs(patterns []domain.ErrorPattern) map[string]bool {
	top := make([]domain.ErrorPattern, len(patterns))
	copy(top, patterns)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if len(top) > weakPatternLimit {
		top = top[:weakPatternLimit]
	}
	ids := make(map[string]bool)
	for _, p := range top {
		for _, id := range p.RelatedCardIDs {
			ids[id] = true
		}
	}
	return ids
}

// interleave alternates easy and hard cards when spread is set, then breaks
// up runs of cards from the same deck. Without spread the selection order
// is kept.
func interleave(selected []candidate, spread bool) []candidate {
	out := make([]candidate, 0, len(selected))
	if spread {
		sorted := make([]candidate, len(selected))
		copy(sorted, selected)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].card.Difficulty < sorted[j].card.Difficulty
		})
		lo, hi := 0, len(sorted)-1
		for takeLow := true; lo <= hi; takeLow = !takeLow {
			if takeLow {
				out = append(out, sorted[lo])
				lo++
			} else {
				out = append(out, sorted[hi])
				hi--
			}
		}
	} else {
		out = append(out, selected...)
	}

	for i := 1; i < len(out); i++ {
		if out[i].deckID != out[i-1].deckID {
			continue
		}
		for j := i + 1; j < len(out); j++ {
			if out[j].deckID != out[i-1].deckID {
				out[i], out[j] = out[j], out[i]
				break
			}
		}
	}
	return out
}

type modeRule struct {
	name  string
	match func(card domain.Card, primary *domain.ErrorPattern, cfg Config) (domain.Mode, bool)
}

var modeRules = []modeRule{
	{"new card", func(card domain.Card, _ *domain.ErrorPattern, _ Config) (domain.Mode, bool) {
		return domain.Flash, card.State == domain.New
	}},
	{"conceptual gap", func(_ domain.Card, p *domain.ErrorPattern, cfg Config) (domain.Mode, bool) {
		return domain.Feynman, p != nil && p.Category == domain.ConceptualGap && cfg.enabled(domain.Feynman)
	}},
	{"repeated lapses or partial recall", func(card domain.Card, p *domain.ErrorPattern, cfg Config) (domain.Mode, bool) {
		partial := p != nil && (p.Category == domain.PartialRecall || p.Category == domain.L1Interference)
		return domain.Socratic, (card.Lapses >= socraticLapses || partial) && cfg.enabled(domain.Socratic)
	}},
	{"mature card", func(card domain.Card, _ *domain.ErrorPattern, _ Config) (domain.Mode, bool) {
		return domain.Flash, card.State == domain.Review && card.Stability > matureStability
	}},
}

func (c *Composer) assignMode(card domain.Card, patterns []domain.ErrorPattern, cfg Config) (domain.Mode, string) {
	primary := primaryPattern(card.ID, patterns)
	for _, rule := range modeRules {
		if mode, ok := rule.match(card, primary, cfg); ok {
			return mode, rule.name
		}
	}
	return c.weightedMode(cfg), "weighted random"
}

func primaryPattern(cardID string, patterns []domain.ErrorPattern) *domain.ErrorPattern {
	for i := range patterns {
		if patterns[i].Involves(cardID) {
			return &patterns[i]
		}
	}
	return nil
}

func (c *Composer) weightedMode(cfg Config) domain.Mode {
	total := 0
	for _, m := range domain.Modes {
		if cfg.enabled(m) {
			total += modeWeights[m]
		}
	}
	if total == 0 {
		return domain.Flash
	}

	var n int
	if c.rng != nil {
		n = c.rng.Intn(total)
	} else {
		n = rand.Intn(total)
	}
	for _, m := range domain.Modes {
		if !cfg.enabled(m) {
			continue
		}
		if n < modeWeights[m] {
			return m
		}
		n -= modeWeights[m]
	}
	return domain.Flash
}
