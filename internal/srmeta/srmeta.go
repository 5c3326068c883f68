// Package srmeta encodes and decodes the scheduling token that cards carry
// inline in their document text, e.g. <!--SR:!2024-03-01,12,250,5.10,14.20-->.
package srmeta

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DateLayout is the layout of the due date inside a token.
const DateLayout = "2006-01-02"

var (
	extendedPattern = regexp.MustCompile(`<!--SR:!([^,>]+),(\d+),(\d+),(\d+(?:\.\d+)?),(\d+(?:\.\d+)?)-->`)
	legacyPattern   = regexp.MustCompile(`<!--SR:!([^,>]+),(\d+),(\d+)-->`)

	// Pattern matches a token of either form.
	Pattern = regexp.MustCompile(`<!--SR:![^>]*?-->`)
)

// Meta is the schedule state stored in a token. Difficulty and Stability are
// nil for the legacy three-field form.
type Meta struct {
	Due        time.Time
	Interval   int
	Ease       int
	Difficulty *float64
	Stability  *float64
}

// Extended reports whether the meta carries memory-model fields.
func (m Meta) Extended() bool {
	return m.Difficulty != nil && m.Stability != nil
}

// Encode renders a token. The extended form is used only when both
// difficulty and stability are present.
func Encode(due time.Time, interval, ease int, difficulty, stability *float64) string {
	date := due.Format(DateLayout)
	if difficulty == nil || stability == nil {
		return fmt.Sprintf("<!--SR:!%s,%d,%d-->", date, interval, ease)
	}
	return fmt.Sprintf("<!--SR:!%s,%d,%d,%.2f,%.2f-->", date, interval, ease, *difficulty, *stability)
}

// EncodeMeta is Encode for a Meta value.
func EncodeMeta(m Meta) string {
	return Encode(m.Due, m.Interval, m.Ease, m.Difficulty, m.Stability)
}

// Decode finds the first token in text. It returns false when there is no
// token or the token's date is not a real calendar date.
func Decode(text string) (Meta, bool) {
	if m := extendedPattern.FindStringSubmatch(text); m != nil {
		meta, ok := decodeFields(m[1], m[2], m[3])
		if !ok {
			return Meta{}, false
		}
		d, errD := strconv.ParseFloat(m[4], 64)
		s, errS := strconv.ParseFloat(m[5], 64)
		if errD != nil || errS != nil {
			return Meta{}, false
		}
		meta.Difficulty, meta.Stability = &d, &s
		return meta, true
	}
	if m := legacyPattern.FindStringSubmatch(text); m != nil {
		return decodeFields(m[1], m[2], m[3])
	}
	return Meta{}, false
}

func decodeFields(date, interval, ease string) (Meta, bool) {
	due, err := time.Parse(DateLayout, date)
	if err != nil {
		return Meta{}, false
	}
	ivl, err := strconv.Atoi(interval)
	if err != nil {
		return Meta{}, false
	}
	e, err := strconv.Atoi(ease)
	if err != nil {
		return Meta{}, false
	}
	return Meta{Due: due, Interval: ivl, Ease: e}, true
}

// Strip removes every token from text along with the whitespace before it.
func Strip(text string) string {
	return stripPattern.ReplaceAllString(text, "")
}

var stripPattern = regexp.MustCompile(`\s*<!--SR:![^>]*?-->`)
