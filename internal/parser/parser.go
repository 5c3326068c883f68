package parser

import (
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/srmeta"
)

const (
	separator              = "?"
	bidirectionalSeparator = "??"
	clozePlaceholder       = "[...]"
)

var (
	tripleColon = regexp.MustCompile(`^(.+?):::(.+)$`)
	doubleColon = regexp.MustCompile(`^(.+?)::([^:].*)$`)
	clozeSpans  = []*regexp.Regexp{
		regexp.MustCompile(`==(.+?)==`),
		regexp.MustCompile(`\{\{(.+?)\}\}`),
	}
	clozeDelimiters = strings.NewReplacer("==", "", "{{", "", "}}", "")
)

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.ParsedCard, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards.
func Parse(r io.Reader) ([]domain.ParsedCard, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseCards(string(b)), nil
}

// ParseCards extracts cards in the multi-line, inline and cloze notations,
// in that order. Text that matches no notation yields nothing.
func ParseCards(text string) []domain.ParsedCard {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	var cards []domain.ParsedCard
	cards = append(cards, parseMultiLine(lines)...)
	cards = append(cards, parseInline(lines)...)
	cards = append(cards, parseCloze(lines)...)
	return cards
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func isHeading(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

// parseMultiLine handles a "?" or "??" line between a question block and an
// answer block.
func parseMultiLine(lines []string) []domain.ParsedCard {
	var cards []domain.ParsedCard
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != separator && trimmed != bidirectionalSeparator {
			continue
		}

		start := i
		for start > 0 && !isBlank(lines[start-1]) {
			start--
		}
		if start == i {
			continue
		}

		end := i
		var answer []string
		for j := i + 1; j < len(lines) && !isBlank(lines[j]); j++ {
			end = j
			answer = append(answer, lines[j])
			if srmeta.Pattern.MatchString(lines[j]) {
				break
			}
		}
		if len(answer) == 0 {
			continue
		}

		raw := strings.Join(answer, "\n")
		card := domain.ParsedCard{
			Question:  strings.Join(lines[start:i], "\n"),
			Answer:    strings.TrimSpace(srmeta.Strip(raw)),
			LineStart: start,
			LineEnd:   end,
		}
		recoverSchedule(&card, raw)
		cards = append(cards, emit(card, trimmed == bidirectionalSeparator)...)
	}
	return cards
}

// parseInline handles "Q::A" and "Q:::A" lines.
func parseInline(lines []string) []domain.ParsedCard {
	var cards []domain.ParsedCard
	for i, line := range lines {
		if isBlank(line) || isHeading(line) {
			continue
		}

		bidirectional := true
		m := tripleColon.FindStringSubmatch(line)
		if m == nil {
			bidirectional = false
			m = doubleColon.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}

		question := strings.TrimSpace(m[1])
		answer := strings.TrimSpace(srmeta.Strip(m[2]))
		if question == "" || answer == "" {
			continue
		}
		card := domain.ParsedCard{Question: question, Answer: answer, LineStart: i, LineEnd: i}
		recoverSchedule(&card, m[2])
		cards = append(cards, emit(card, bidirectional)...)
	}
	return cards
}

type span struct {
	start, end int
	text       string
}

// parseCloze turns every ==span== or {{span}} into its own card.
func parseCloze(lines []string) []domain.ParsedCard {
	var cards []domain.ParsedCard
	for i, line := range lines {
		if isBlank(line) || isHeading(line) {
			continue
		}

		var spans []span
		for _, re := range clozeSpans {
			for _, loc := range re.FindAllStringSubmatchIndex(line, -1) {
				spans = append(spans, span{start: loc[0], end: loc[1], text: line[loc[2]:loc[3]]})
			}
		}
		if len(spans) == 0 {
			continue
		}
		sort.SliceStable(spans, func(a, b int) bool { return spans[a].start < spans[b].start })

		for _, s := range spans {
			masked := line[:s.start] + clozePlaceholder + line[s.end:]
			card := domain.ParsedCard{
				Question:  strings.TrimSpace(clozeDelimiters.Replace(srmeta.Strip(masked))),
				Answer:    s.text,
				LineStart: i,
				LineEnd:   i,
			}
			recoverSchedule(&card, line)
			cards = append(cards, card)
		}
	}
	return cards
}

func recoverSchedule(card *domain.ParsedCard, text string) {
	meta, ok := srmeta.Decode(text)
	if !ok {
		return
	}
	due, interval, ease := meta.Due, meta.Interval, meta.Ease
	card.Due = &due
	card.Interval = &interval
	card.Ease = &ease
	card.Difficulty = meta.Difficulty
	card.Stability = meta.Stability
}

// emit returns the card, plus its reverse when bidirectional.
func emit(card domain.ParsedCard, bidirectional bool) []domain.ParsedCard {
	if !bidirectional {
		return []domain.ParsedCard{card}
	}
	card.Bidirectional = true
	reverse := card
	reverse.Question, reverse.Answer = card.Answer, card.Question
	return []domain.ParsedCard{card, reverse}
}
