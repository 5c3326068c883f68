// Package knol gives cards a content identity so that ids survive a
// document being re-parsed.
package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// Normalize concatenates a card's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them.
func Normalize(question, answer string, bidirectional bool) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	kind := "one-way"
	if bidirectional {
		kind = "two-way"
	}
	// Joined with a newline so "question" and "answer" can't run together.
	return strings.Join([]string{normalizePart(question), normalizePart(answer), kind}, "\n")
}

// Hash returns the SHA-256 of the normalized content as a hex string.
func Hash(question, answer string, bidirectional bool) string {
	sum := sha256.Sum256([]byte(Normalize(question, answer, bidirectional)))
	return fmt.Sprintf("%x", sum)
}

// HashCard hashes a card's content.
func HashCard(c domain.Card) string {
	return Hash(c.Question, c.Answer, c.Bidirectional)
}

// HashParsed hashes a parsed card's content.
func HashParsed(p domain.ParsedCard) string {
	return Hash(p.Question, p.Answer, p.Bidirectional)
}
