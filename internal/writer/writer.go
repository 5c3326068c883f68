// Package writer persists schedule state back into card documents by
// rewriting the card's scheduling token, leaving every other byte alone.
package writer

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/srmeta"
)

// ErrStaleRange is returned when a card's line range no longer fits the
// document. The document must be re-parsed before updating again.
var ErrStaleRange = errors.New("card line range out of bounds")

// Update is the new schedule state for one card.
type Update struct {
	Card       domain.Card
	Due        time.Time
	Interval   int
	Ease       int
	Difficulty *float64
	Stability  *float64
}

// UpdateFor builds the update that persists a reviewed card.
func UpdateFor(card domain.Card) Update {
	d, s := card.Difficulty, card.Stability
	return Update{Card: card, Due: card.Due, Interval: card.Interval, Ease: card.Ease, Difficulty: &d, Stability: &s}
}

// ApplyUpdate writes the token for card into text. The last existing token
// inside the card's line range, below any multi-line separator, is replaced; otherwise the token is appended to the
// range's last line, or inserted as its own line when that line is blank.
func ApplyUpdate(text string, card domain.Card, due time.Time, interval, ease int, difficulty, stability *float64) (string, error) {
	lines := strings.Split(text, "\n")
	start, end := card.Source.LineStart, card.Source.LineEnd
	if start < 0 || end < start || end >= len(lines) {
		return "", fmt.Errorf("%w: lines %d-%d of %d in %s", ErrStaleRange, start, end, len(lines), card.Source.Path)
	}

	token := srmeta.Encode(due, interval, ease, difficulty, stability)
	for i := end; i >= start; i-- {
		if loc := srmeta.Pattern.FindStringIndex(lines[i]); loc != nil {
			lines[i] = lines[i][:loc[0]] + token + lines[i][loc[1]:]
			return strings.Join(lines, "\n"), nil
		}
		// Lines above a separator are question lines and may belong to another card.
		if isSeparator(lines[i]) {
			break
		}
	}

	last := lines[end]
	if strings.TrimSpace(strings.TrimSuffix(last, "\r")) == "" {
		lines = slices.Insert(lines, end, token)
		return strings.Join(lines, "\n"), nil
	}
	if strings.HasSuffix(last, "\r") {
		lines[end] = strings.TrimSuffix(last, "\r") + " " + token + "\r"
	} else {
		lines[end] = last + " " + token
	}
	return strings.Join(lines, "\n"), nil
}

func isSeparator(line string) bool {
	l := strings.TrimSpace(line)
	return l == "?" || l == "??"
}

// Apply is ApplyUpdate for an Update value.
func Apply(text string, u Update) (string, error) {
	return ApplyUpdate(text, u.Card, u.Due, u.Interval, u.Ease, u.Difficulty, u.Stability)
}

// ApplyBatch applies updates to the documents keyed by path. Within a path
// updates run from the highest line end to the lowest, so earlier edits
// never shift the lines of edits still to come. The input map is not
// modified; documents without updates are carried over unchanged.
func ApplyBatch(docs map[string]string, updates []Update) (map[string]string, error) {
	out := make(map[string]string, len(docs))
	for path, text := range docs {
		out[path] = text
	}

	byPath := make(map[string][]Update)
	var paths []string
	for _, u := range updates {
		p := u.Card.Source.Path
		if _, ok := byPath[p]; !ok {
			paths = append(paths, p)
		}
		byPath[p] = append(byPath[p], u)
	}

	for _, path := range paths {
		text, ok := out[path]
		if !ok {
			return nil, fmt.Errorf("%w: no document for %s", ErrStaleRange, path)
		}
		pending := byPath[path]
		sort.SliceStable(pending, func(i, j int) bool {
			return pending[i].Card.Source.LineEnd > pending[j].Card.Source.LineEnd
		})
		for _, u := range pending {
			var err error
			if text, err = Apply(text, u); err != nil {
				return nil, err
			}
		}
		out[path] = text
	}
	return out, nil
}
