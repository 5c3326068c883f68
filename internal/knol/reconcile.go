package knol

import (
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/srmeta"
)

type fixedID string

func (f fixedID) NewID() string { return string(f) }

// Reconcile builds the cards for a freshly parsed document, reusing the id of
// an old card with the same content. If the document still carries the
// schedule the old card was written with, the old card's review state is
// kept and only its content and location are refreshed. Otherwise the
// document's schedule wins and the old card's counters are carried over.
// Cards with no match get a new id.
func Reconcile(old []domain.Card, parsed []domain.ParsedCard, deckID, path string, ids domain.IDGenerator, now time.Time) []domain.Card {
	byHash := make(map[string][]domain.Card, len(old))
	for _, c := range old {
		h := HashCard(c)
		byHash[h] = append(byHash[h], c)
	}

	cards := make([]domain.Card, 0, len(parsed))
	for _, p := range parsed {
		h := HashParsed(p)
		matches := byHash[h]
		if len(matches) == 0 {
			cards = append(cards, domain.NewCard(p, deckID, path, ids, now))
			continue
		}
		prev := matches[0]
		byHash[h] = matches[1:]

		fresh := domain.NewCard(p, deckID, path, fixedID(prev.ID), now)
		cards = append(cards, merge(prev, fresh, p))
	}
	return cards
}

func merge(prev, fresh domain.Card, p domain.ParsedCard) domain.Card {
	// Tokens carry the due date only, so compare at that precision.
	sameDue := prev.Due.Format(srmeta.DateLayout) == fresh.Due.Format(srmeta.DateLayout)
	unchanged := p.HasSchedule() && sameDue && prev.Interval == fresh.Interval
	if !p.HasSchedule() && prev.State == domain.New {
		unchanged = true
	}
	if unchanged {
		prev.Question = fresh.Question
		prev.Answer = fresh.Answer
		prev.Source = fresh.Source
		prev.DeckID = fresh.DeckID
		return prev
	}

	fresh.Reviews = prev.Reviews
	fresh.Reps = prev.Reps
	fresh.Lapses = prev.Lapses
	fresh.LastLatency = prev.LastLatency
	return fresh
}
