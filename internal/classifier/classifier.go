// Package classifier assigns failed recalls to an error category with an
// ordered table of heuristic rules. The first matching rule wins.
package classifier

import (
	"strings"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// SubcategoryFormality marks register mismatches caused by formal/informal address.
const SubcategoryFormality = "formality"

// Keywords are the word lists the language-learning rules match against.
// Matching is case-insensitive substring matching.
type Keywords struct {
	LanguageDecks []string `koanf:"language_decks"`
	FalseFriends  []string `koanf:"false_friends"`
	Register      []string `koanf:"register"`
}

// DefaultKeywords returns the built-in keyword lists.
func DefaultKeywords() Keywords {
	return Keywords{
		LanguageDecks: []string{
			"language", "vocab", "grammar", "spanish", "español", "french", "français", "german", "deutsch",
			"italian", "portuguese", "japanese", "chinese", "mandarin", "korean", "russian", "dutch", "english",
		},
		FalseFriends: []string{
			"false friend", "faux ami", "falso amigo", "embarazada", "actual", "sensible", "librería",
			"éxito", "constipado", "carpeta", "eventual", "gift", "bekommen", "preservativo",
		},
		Register: []string{
			"formal", "informal", "polite", "honorific", "usted", "vous", "sie ", " tú", " tu ", "slang", "colloquial",
		},
	}
}

// DeckContext is what the classifier knows about the card's deck.
type DeckContext struct {
	ID   string
	Name string
}

// Review is one response to classify.
type Review struct {
	Card    domain.Card
	Rating  domain.Rating
	Latency *time.Duration
	Deck    DeckContext
}

func (r Review) latencyOver(d time.Duration) bool {
	return r.Latency != nil && *r.Latency > d
}

func (r Review) latencyUnder(d time.Duration) bool {
	return r.Latency != nil && *r.Latency < d
}

// Verdict is a rule's classification.
type Verdict struct {
	Category    domain.Category
	Subcategory string
	Confidence  float64
}

// Rule is one row of the classification table.
type Rule struct {
	Name  string
	Match func(r Review, kw Keywords) (Verdict, bool)
}

// Rules returns the classification table in evaluation order.
func Rules() []Rule {
	return []Rule{
		{"slow hard recall", func(r Review, _ Keywords) (Verdict, bool) {
			if r.latencyOver(15*time.Second) && r.Rating == domain.Hard {
				return Verdict{Category: domain.PartialRecall, Confidence: 0.8}, true
			}
			return Verdict{}, false
		}},
		{"repeated lapses", func(r Review, _ Keywords) (Verdict, bool) {
			if r.Card.Lapses <= 3 {
				return Verdict{}, false
			}
			if r.Card.Difficulty > 7 {
				return Verdict{Category: domain.ConceptualGap, Confidence: 0.75}, true
			}
			return Verdict{Category: domain.PlainForgetting, Confidence: 0.8}, true
		}},
		{"fast failure", func(r Review, _ Keywords) (Verdict, bool) {
			if r.latencyUnder(3*time.Second) && r.Rating == domain.Again {
				return Verdict{Category: domain.ConceptualGap, Confidence: 0.7}, true
			}
			return Verdict{}, false
		}},
		{"language deck", func(r Review, kw Keywords) (Verdict, bool) {
			if !containsAny(r.Deck.Name, kw.LanguageDecks) {
				return Verdict{}, false
			}
			text := r.Card.Question + " " + r.Card.Answer
			switch {
			case containsAny(text, kw.FalseFriends):
				return Verdict{Category: domain.FalseFriend, Confidence: 0.65}, true
			case containsAny(text, kw.Register):
				return Verdict{Category: domain.RegisterMismatch, Subcategory: SubcategoryFormality, Confidence: 0.6}, true
			case r.Rating == domain.Again:
				return Verdict{Category: domain.L1Interference, Confidence: 0.55}, true
			case r.Rating == domain.Hard:
				return Verdict{Category: domain.PartialRecall, Confidence: 0.6}, true
			}
			return Verdict{}, false
		}},
		{"overgeneralization", func(r Review, _ Keywords) (Verdict, bool) {
			if r.Card.Reps > 2 && r.Card.Lapses > 1 && r.Rating == domain.Again {
				return Verdict{Category: domain.Overgeneralization, Confidence: 0.5}, true
			}
			return Verdict{}, false
		}},
		{"slow failure", func(r Review, _ Keywords) (Verdict, bool) {
			if r.latencyOver(8*time.Second) && r.Rating == domain.Again {
				return Verdict{Category: domain.PartialRecall, Confidence: 0.6}, true
			}
			return Verdict{}, false
		}},
		{"default", func(r Review, _ Keywords) (Verdict, bool) {
			if r.Rating == domain.Again {
				return Verdict{Category: domain.PlainForgetting, Confidence: 0.5}, true
			}
			return Verdict{Category: domain.PartialRecall, Confidence: 0.5}, true
		}},
	}
}

// Classifier turns reviews into error events.
type Classifier struct {
	rules    []Rule
	keywords Keywords
	ids      domain.IDGenerator
}

// New creates a classifier with the default rule table.
func New(kw Keywords, ids domain.IDGenerator) *Classifier {
	if ids == nil {
		ids = domain.UUIDGenerator{}
	}
	return &Classifier{rules: Rules(), keywords: kw, ids: ids}
}

// Evaluate returns the first matching rule's verdict and the rule's name.
func (c *Classifier) Evaluate(r Review) (Verdict, string) {
	for _, rule := range c.rules {
		if v, ok := rule.Match(r, c.keywords); ok {
			return v, rule.Name
		}
	}
	return Verdict{Category: domain.PartialRecall, Confidence: 0.5}, "default"
}

// Classify builds the error event for a review at now. The card's question
// and answer are snapshotted into the event.
func (c *Classifier) Classify(card domain.Card, rating domain.Rating, latency *time.Duration, deck DeckContext, now time.Time) domain.ErrorEvent {
	v, _ := c.Evaluate(Review{Card: card, Rating: rating, Latency: latency, Deck: deck})
	deckID := deck.ID
	if deckID == "" {
		deckID = card.DeckID
	}
	return domain.ErrorEvent{
		ID:          c.ids.NewID(),
		CardID:      card.ID,
		DeckID:      deckID,
		Category:    v.Category,
		Subcategory: v.Subcategory,
		Timestamp:   now,
		Latency:     latency,
		Question:    card.Question,
		Answer:      card.Answer,
		Confidence:  v.Confidence,
	}
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
