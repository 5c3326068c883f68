package session

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knoldeck/internal/domain"
)

var now = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

func reviewCard(id string, difficulty float64, overdue time.Duration) domain.Card {
	return domain.Card{
		ID:         id,
		State:      domain.Review,
		Difficulty: difficulty,
		Stability:  5,
		Due:        now.Add(-overdue),
	}
}

func newComposer() *Composer {
	return NewComposer(rand.New(rand.NewSource(42)))
}

func ids(segments []domain.SessionSegment) []string {
	var out []string
	for _, s := range segments {
		out = append(out, s.CardID)
	}
	return out
}

func TestComposeNothingDue(t *testing.T) {
	future := reviewCard("later", 5, -time.Hour)
	decks := []domain.Deck{{ID: "d1", Cards: []domain.Card{future}}}

	segments := newComposer().Compose(decks, nil, DefaultConfig(), now)
	assert.NotNil(t, segments)
	assert.Empty(t, segments)

	assert.Empty(t, newComposer().Compose(nil, nil, DefaultConfig(), now))
}

func TestComposeSingleNewCard(t *testing.T) {
	card := domain.Card{ID: "n1", State: domain.New, Due: now}
	decks := []domain.Deck{{ID: "d1", Cards: []domain.Card{card}}}

	segments := newComposer().Compose(decks, nil, DefaultConfig(), now)
	require.Len(t, segments, 1)
	assert.Equal(t, domain.Flash, segments[0].Mode)
	assert.Equal(t, "n1", segments[0].CardID)
	assert.Equal(t, "d1", segments[0].DeckID)
	assert.NotEmpty(t, segments[0].Justification)
}

func TestComposeWeaknessFocus(t *testing.T) {
	cards := []domain.Card{
		reviewCard("w-easy", 2, time.Hour),
		reviewCard("w-hard", 9, time.Hour),
		reviewCard("w-mid", 6, time.Hour),
		reviewCard("g-old", 5, 72*time.Hour),
		reviewCard("g-new", 5, time.Minute),
		reviewCard("g-mid", 5, 24*time.Hour),
	}
	decks := []domain.Deck{{ID: "d1", Cards: cards}}
	patterns := []domain.ErrorPattern{
		{Category: domain.PlainForgetting, Count: 3, RelatedCardIDs: []string{"w-easy", "w-hard", "w-mid"}},
	}
	cfg := DefaultConfig()
	cfg.SessionSize = 4
	cfg.WeaknessFocus = 0.5

	segments := newComposer().Compose(decks, patterns, cfg, now)
	require.Len(t, segments, 4)
	assert.ElementsMatch(t, []string{"w-hard", "w-mid", "g-old", "g-mid"}, ids(segments))
}

func TestComposeWeakTargetCappedByWeakPool(t *testing.T) {
	cards := []domain.Card{
		reviewCard("weak", 5, time.Hour),
		reviewCard("g1", 5, time.Hour),
		reviewCard("g2", 5, time.Hour),
	}
	patterns := []domain.ErrorPattern{{Count: 1, RelatedCardIDs: []string{"weak"}}}
	cfg := DefaultConfig()
	cfg.SessionSize = 10
	cfg.WeaknessFocus = 1

	segments := newComposer().Compose([]domain.Deck{{ID: "d", Cards: cards}}, patterns, cfg, now)
	assert.Len(t, segments, 3)
}

func TestComposeOnlyTopFivePatternsAreWeak(t *testing.T) {
	var patterns []domain.ErrorPattern
	var cards []domain.Card
	for i, id := range []string{"p1", "p2", "p3", "p4", "p5", "p6"} {
		patterns = append(patterns, domain.ErrorPattern{Count: 10 - i, RelatedCardIDs: []string{id}})
		cards = append(cards, reviewCard(id, 5, time.Duration(i+1)*time.Hour))
	}
	cfg := DefaultConfig()
	cfg.SessionSize = 5
	cfg.WeaknessFocus = 0

	// With no weakness focus only the general pool is used, and p6 is the only general card.
	segments := newComposer().Compose([]domain.Deck{{ID: "d", Cards: cards}}, patterns, cfg, now)
	assert.Equal(t, []string{"p6"}, ids(segments))
}

func TestComposeCrossDeckMixing(t *testing.T) {
	decks := []domain.Deck{
		{ID: "d1", Cards: []domain.Card{reviewCard("a", 5, time.Hour)}},
		{ID: "d2", Cards: []domain.Card{reviewCard("b", 5, time.Hour)}},
	}
	cfg := DefaultConfig()

	cfg.CrossDeckMixing = false
	assert.Equal(t, []string{"a"}, ids(newComposer().Compose(decks, nil, cfg, now)))

	cfg.CrossDeckMixing = true
	assert.ElementsMatch(t, []string{"a", "b"}, ids(newComposer().Compose(decks, nil, cfg, now)))
}

func TestInterleave(t *testing.T) {
	t.Run("alternates low and high difficulty", func(t *testing.T) {
		var selected []candidate
		for i, d := range []float64{5, 1, 9, 3, 7} {
			selected = append(selected, candidate{card: domain.Card{ID: string(rune('a' + i)), Difficulty: d}, deckID: string(rune('a' + i))})
		}
		var got []float64
		for _, c := range interleave(selected, true) {
			got = append(got, c.card.Difficulty)
		}
		assert.Equal(t, []float64{1, 9, 3, 7, 5}, got)
	})

	t.Run("breaks up same deck runs", func(t *testing.T) {
		selected := []candidate{
			{card: domain.Card{ID: "a1", Difficulty: 1}, deckID: "A"},
			{card: domain.Card{ID: "a2", Difficulty: 2}, deckID: "A"},
			{card: domain.Card{ID: "b1", Difficulty: 3}, deckID: "B"},
			{card: domain.Card{ID: "a3", Difficulty: 4}, deckID: "A"},
		}
		// Difficulty alternation gives a1 a3 a2 b1; the deck pass swaps b1 forward.
		var got []string
		for _, c := range interleave(selected, true) {
			got = append(got, c.card.ID)
		}
		assert.Equal(t, []string{"a1", "b1", "a2", "a3"}, got)
	})

	t.Run("keeps selection order without spread", func(t *testing.T) {
		selected := []candidate{
			{card: domain.Card{ID: "a1", Difficulty: 9}, deckID: "A"},
			{card: domain.Card{ID: "a2", Difficulty: 1}, deckID: "A"},
			{card: domain.Card{ID: "b1", Difficulty: 5}, deckID: "B"},
		}
		var got []string
		for _, c := range interleave(selected, false) {
			got = append(got, c.card.ID)
		}
		assert.Equal(t, []string{"a1", "b1", "a2"}, got)
	})
}

func TestModeAssignment(t *testing.T) {
	gap := domain.ErrorPattern{Category: domain.ConceptualGap, Count: 5, RelatedCardIDs: []string{"gap"}}
	partial := domain.ErrorPattern{Category: domain.PartialRecall, Count: 4, RelatedCardIDs: []string{"partial", "gap"}}
	l1 := domain.ErrorPattern{Category: domain.L1Interference, Count: 2, RelatedCardIDs: []string{"l1"}}
	patterns := []domain.ErrorPattern{gap, partial, l1}

	lapsed := reviewCard("lapsed", 5, time.Hour)
	lapsed.Lapses = 3
	mature := reviewCard("mature", 5, time.Hour)
	mature.Stability = 30
	newGap := domain.Card{ID: "gap", State: domain.New}

	all := DefaultConfig()
	noFeynman := DefaultConfig()
	noFeynman.EnabledModes = []domain.Mode{domain.Flash, domain.Socratic}
	flashOnly := DefaultConfig()
	flashOnly.EnabledModes = []domain.Mode{domain.Flash}

	testCases := []struct {
		name     string
		card     domain.Card
		cfg      Config
		expected domain.Mode
	}{
		{"new card beats patterns", newGap, all, domain.Flash},
		{"conceptual gap", reviewCard("gap", 5, time.Hour), all, domain.Feynman},
		{"conceptual gap without feynman", reviewCard("gap", 5, time.Hour), flashOnly, domain.Flash},
		{"lapses without feynman", lapsed, noFeynman, domain.Socratic},
		{"partial recall", reviewCard("partial", 5, time.Hour), all, domain.Socratic},
		{"L1 interference", reviewCard("l1", 5, time.Hour), all, domain.Socratic},
		{"lapses", lapsed, all, domain.Socratic},
		{"mature", mature, all, domain.Flash},
		{"lapses without socratic", lapsed, flashOnly, domain.Flash},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mode, why := newComposer().assignMode(tc.card, patterns, tc.cfg)
			assert.Equal(t, tc.expected, mode)
			assert.NotEmpty(t, why)
		})
	}
}

func TestWeightedModeRespectsEnabledModes(t *testing.T) {
	c := newComposer()
	cfg := DefaultConfig()
	cfg.EnabledModes = []domain.Mode{domain.Socratic, domain.Feynman}

	counts := map[domain.Mode]int{}
	for i := 0; i < 2000; i++ {
		counts[c.weightedMode(cfg)]++
	}
	assert.Zero(t, counts[domain.Flash])
	assert.Greater(t, counts[domain.Socratic], counts[domain.Feynman])

	cfg.EnabledModes = nil
	assert.Equal(t, domain.Flash, c.weightedMode(cfg))
}

func TestComposeWithoutDifficultySpread(t *testing.T) {
	cards := []domain.Card{
		reviewCard("mid", 5, 2*time.Hour),
		reviewCard("easy", 1, 3*time.Hour),
		reviewCard("hard", 9, time.Hour),
	}
	cfg := DefaultConfig()
	cfg.DifficultySpread = false
	cfg.WeaknessFocus = 0

	// Most overdue first, untouched by difficulty.
	segments := newComposer().Compose([]domain.Deck{{ID: "d", Cards: cards}}, nil, cfg, now)
	assert.Equal(t, []string{"easy", "mid", "hard"}, ids(segments))

	cfg.DifficultySpread = true
	segments = newComposer().Compose([]domain.Deck{{ID: "d", Cards: cards}}, nil, cfg, now)
	assert.Equal(t, []string{"easy", "hard", "mid"}, ids(segments))
}

func TestComposeNegativeWeaknessFocusDoesNotPanic(t *testing.T) {
	cards := []domain.Card{reviewCard("w", 5, time.Hour), reviewCard("g", 5, time.Hour)}
	patterns := []domain.ErrorPattern{{Count: 1, RelatedCardIDs: []string{"w"}}}
	cfg := DefaultConfig()
	cfg.WeaknessFocus = -0.5

	var segments []domain.SessionSegment
	assert.NotPanics(t, func() {
		segments = newComposer().Compose([]domain.Deck{{ID: "d", Cards: cards}}, patterns, cfg, now)
	})
	assert.Equal(t, []string{"g"}, ids(segments))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.WeaknessFocus = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.SessionSize = 0
	assert.Error(t, bad.Validate())
}
