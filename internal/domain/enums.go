package domain

import (
	"encoding"
	"fmt"
	"strings"
)

// State is the lifecycle stage of a card.
type State int

const (
	New State = iota
	Learning
	Review
	Relearning
)

// Rating is the user's response to a card review.
type Rating int

const (
	Again Rating = iota + 1 // Failed to recall.
	Hard                    // Recalled with significant difficulty.
	Good                    // Recalled with some effort.
	Easy                    // Recalled effortlessly.
)

// Ratings lists every rating from worst to best.
var Ratings = []Rating{Again, Hard, Good, Easy}

// Category is a kind of failed recall.
type Category int

const (
	PlainForgetting Category = iota
	PartialRecall
	ConceptualGap
	FalseFriend
	RegisterMismatch
	L1Interference
	Overgeneralization
)

// Trend is the direction an error pattern is moving in.
type Trend int

const (
	Stable Trend = iota
	Improving
	Worsening
)

// Mode is how a card is presented in a study session.
type Mode int

const (
	Flash Mode = iota
	Socratic
	Feynman
)

// Modes lists every presentation mode.
var Modes = []Mode{Flash, Socratic, Feynman}

// ChallengeType is the shape of a micro challenge.
type ChallengeType int

const (
	QuickRecall ChallengeType = iota
	FillTheGap
	ListeningSnap
	PictureDescribe
	CulturalMicro
)

var (
	stateNames     = []string{New: "New", Learning: "Learning", Review: "Review", Relearning: "Relearning"}
	ratingNames    = []string{0: "", Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}
	categoryNames  = []string{PlainForgetting: "PlainForgetting", PartialRecall: "PartialRecall", ConceptualGap: "ConceptualGap", FalseFriend: "FalseFriend", RegisterMismatch: "RegisterMismatch", L1Interference: "L1Interference", Overgeneralization: "Overgeneralization"}
	trendNames     = []string{Stable: "stable", Improving: "improving", Worsening: "worsening"}
	modeNames      = []string{Flash: "Flash", Socratic: "Socratic", Feynman: "Feynman"}
	challengeNames = []string{QuickRecall: "QuickRecall", FillTheGap: "FillTheGap", ListeningSnap: "ListeningSnap", PictureDescribe: "PictureDescribe", CulturalMicro: "CulturalMicro"}
)

var (
	_ fmt.Stringer             = State(0)
	_ encoding.TextMarshaler   = State(0)
	_ encoding.TextUnmarshaler = (*State)(nil)
	_ encoding.TextUnmarshaler = (*Rating)(nil)
	_ encoding.TextUnmarshaler = (*Category)(nil)
	_ encoding.TextUnmarshaler = (*Trend)(nil)
	_ encoding.TextUnmarshaler = (*Mode)(nil)
	_ encoding.TextUnmarshaler = (*ChallengeType)(nil)
)

func name(names []string, kind string, v int) string {
	if v >= 0 && v < len(names) && names[v] != "" {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", kind, v)
}

func parse(names []string, kind, s string) (int, error) {
	for i, n := range names {
		if n != "" && strings.EqualFold(n, s) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("invalid %s: %q", strings.ToLower(kind), s)
}

func marshal(names []string, kind string, v int) ([]byte, error) {
	if v < 0 || v >= len(names) || names[v] == "" {
		return nil, fmt.Errorf("invalid %s: %d", strings.ToLower(kind), v)
	}
	return []byte(names[v]), nil
}

func (s State) String() string                { return name(stateNames, "State", int(s)) }
func (s State) MarshalText() ([]byte, error)  { return marshal(stateNames, "State", int(s)) }
func (s *State) UnmarshalText(b []byte) error { return unmarshal(stateNames, "State", b, (*int)(s)) }

func (r Rating) String() string                { return name(ratingNames, "Rating", int(r)) }
func (r Rating) MarshalText() ([]byte, error)  { return marshal(ratingNames, "Rating", int(r)) }
func (r *Rating) UnmarshalText(b []byte) error { return unmarshal(ratingNames, "Rating", b, (*int)(r)) }

// IsValid reports whether r is one of Again, Hard, Good or Easy.
func (r Rating) IsValid() bool { return r >= Again && r <= Easy }

func (c Category) String() string                { return name(categoryNames, "Category", int(c)) }
func (c Category) MarshalText() ([]byte, error)  { return marshal(categoryNames, "Category", int(c)) }
func (c *Category) UnmarshalText(b []byte) error { return unmarshal(categoryNames, "Category", b, (*int)(c)) }

func (t Trend) String() string                { return name(trendNames, "Trend", int(t)) }
func (t Trend) MarshalText() ([]byte, error)  { return marshal(trendNames, "Trend", int(t)) }
func (t *Trend) UnmarshalText(b []byte) error { return unmarshal(trendNames, "Trend", b, (*int)(t)) }

func (m Mode) String() string                { return name(modeNames, "Mode", int(m)) }
func (m Mode) MarshalText() ([]byte, error)  { return marshal(modeNames, "Mode", int(m)) }
func (m *Mode) UnmarshalText(b []byte) error { return unmarshal(modeNames, "Mode", b, (*int)(m)) }

func (t ChallengeType) String() string { return name(challengeNames, "ChallengeType", int(t)) }
func (t ChallengeType) MarshalText() ([]byte, error) {
	return marshal(challengeNames, "ChallengeType", int(t))
}
func (t *ChallengeType) UnmarshalText(b []byte) error {
	return unmarshal(challengeNames, "ChallengeType", b, (*int)(t))
}

func unmarshal(names []string, kind string, b []byte, dst *int) error {
	v, err := parse(names, kind, string(b))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// ParseRating accepts a rating name ("good") or its number ("3").
func ParseRating(s string) (Rating, error) {
	s = strings.TrimSpace(s)
	if len(s) == 1 && s[0] >= '1' && s[0] <= '4' {
		return Rating(s[0] - '0'), nil
	}
	var r Rating
	if err := r.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return r, nil
}

// ParseMode accepts a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	var m Mode
	if err := m.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, err
	}
	return m, nil
}
