// Package patterns groups classified error events into trended patterns.
package patterns

import (
	"math"
	"sort"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

const (
	minTrendEvents  = 4
	minHalfSpan     = time.Second
	improvingRatio  = 0.7
	worseningRatio  = 1.3
	reductionWindow = 5
)

type key struct {
	category    domain.Category
	subcategory string
}

// Aggregate rebuilds the pattern list from the full event history. Patterns
// are ordered by event count, most frequent first; ties keep the order in
// which their first event appears in events.
func Aggregate(events []domain.ErrorEvent) []domain.ErrorPattern {
	groups := make(map[key][]domain.ErrorEvent)
	var order []key
	for _, e := range events {
		k := key{e.Category, e.Subcategory}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	patterns := make([]domain.ErrorPattern, 0, len(order))
	for _, k := range order {
		group := chronological(groups[k])
		p := domain.ErrorPattern{
			Category:      k.category,
			Subcategory:   k.subcategory,
			Count:         len(group),
			FirstSeen:     group[0].Timestamp,
			LastSeen:      group[len(group)-1].Timestamp,
			Trend:         DetectTrend(group),
			ReductionRate: ReductionRate(group),
		}
		seen := make(map[string]bool)
		for _, e := range group {
			if !seen[e.CardID] {
				seen[e.CardID] = true
				p.RelatedCardIDs = append(p.RelatedCardIDs, e.CardID)
			}
		}
		patterns = append(patterns, p)
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Count > patterns[j].Count
	})
	return patterns
}

// DetectTrend compares how often events happened in the first and second
// half of the group's history.
func DetectTrend(events []domain.ErrorEvent) domain.Trend {
	if len(events) < minTrendEvents {
		return domain.Stable
	}
	sorted := chronological(events)
	mid := len(sorted) / 2
	first, second := sorted[:mid], sorted[mid:]

	firstSpan, secondSpan := span(first), span(second)
	if firstSpan < minHalfSpan || secondSpan < minHalfSpan {
		switch {
		case len(second) < len(first):
			return domain.Improving
		case len(second) > len(first):
			return domain.Worsening
		}
		return domain.Stable
	}

	firstRate := float64(len(first)) / float64(firstSpan)
	secondRate := float64(len(second)) / float64(secondSpan)
	ratio := secondRate / firstRate
	switch {
	case ratio < improvingRatio:
		return domain.Improving
	case ratio > worseningRatio:
		return domain.Worsening
	}
	return domain.Stable
}

// ReductionRate is the percentage drop in event count between the most
// recent window of events and the window before it.
func ReductionRate(events []domain.ErrorEvent) int {
	size := min(reductionWindow, len(events)/2)
	if size == 0 {
		return 0
	}
	sorted := chronological(events)
	recent := sorted[len(sorted)-size:]
	earlier := sorted[len(sorted)-2*size : len(sorted)-size]
	if len(earlier) == 0 {
		return 0
	}
	return int(math.Round(float64(len(earlier)-len(recent)) / float64(len(earlier)) * 100))
}

func chronological(events []domain.ErrorEvent) []domain.ErrorEvent {
	sorted := make([]domain.ErrorEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

func span(events []domain.ErrorEvent) time.Duration {
	return events[len(events)-1].Timestamp.Sub(events[0].Timestamp)
}
