// Package library keeps the in-process view of every registered deck. It
// scans deck folders (local or git-hosted), reconciles re-parsed cards with
// the ones it already knows, and hands documents to the writer.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/gitsource"
	"github.com/conorfennell/knoldeck/internal/knol"
	"github.com/conorfennell/knoldeck/internal/metrics"
	"github.com/conorfennell/knoldeck/internal/parser"
	"github.com/conorfennell/knoldeck/internal/storage"
)

// ErrUnknownCard is returned when a card id is not in any scanned deck.
var ErrUnknownCard = errors.New("unknown card")

// Registry is the deck source registry.
type Registry interface {
	EnsureSource(ctx context.Context, name, path string) (*storage.Source, error)
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error
}

// GitSyncer brings a local checkout of a git-hosted deck up to date.
type GitSyncer func(ctx context.Context, url, localPath string, logger *slog.Logger) error

// Options configures a Library. Zero values pick the defaults.
type Options struct {
	ReposDir string
	Sync     GitSyncer
	Logger   *slog.Logger
}

type entry struct {
	root string
	deck domain.Deck
}

// Library is safe for concurrent use.
type Library struct {
	files    Files
	registry Registry
	ids      domain.IDGenerator
	clock    domain.Clock
	reposDir string
	sync     GitSyncer
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu    sync.RWMutex
	decks map[string]*entry
	order []string
}

func New(files Files, registry Registry, ids domain.IDGenerator, clock domain.Clock, opts Options) *Library {
	if opts.ReposDir == "" {
		opts.ReposDir = "repos"
	}
	if opts.Sync == nil {
		opts.Sync = gitsource.Sync
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Library{
		files:    files,
		registry: registry,
		ids:      ids,
		clock:    clock,
		reposDir: opts.ReposDir,
		sync:     opts.Sync,
		logger:   opts.Logger,
		metrics:  metrics.New(),
		decks:    make(map[string]*entry),
	}
}

// Files returns the document collaborator.
func (l *Library) Files() Files {
	return l.files
}

// AddSource registers a deck folder or git URL.
func (l *Library) AddSource(ctx context.Context, name, path string) (*storage.Source, error) {
	if name == "" {
		name = filepath.Base(strings.TrimSuffix(path, ".git"))
	}
	src, err := l.registry.EnsureSource(ctx, name, path)
	if err != nil {
		return nil, fmt.Errorf("registering deck %s: %w", path, err)
	}
	return src, nil
}

// ScanAll scans every registered source. A source that fails to scan is
// logged and skipped.
func (l *Library) ScanAll(ctx context.Context) ([]domain.Deck, error) {
	l.logger.Info("scanning all deck sources")
	sources, err := l.registry.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing deck sources: %w", err)
	}
	if len(sources) == 0 {
		l.logger.Info("no deck sources configured")
	}

	for _, src := range sources {
		if _, err := l.Scan(ctx, src); err != nil {
			l.logger.Error("deck scan failed", "source_id", src.ID, "path", src.Path, "error", err)
		}
	}
	return l.Decks(), nil
}

// Scan parses every markdown document of a source and replaces the deck.
func (l *Library) Scan(ctx context.Context, src storage.Source) (domain.Deck, error) {
	deckID := strconv.FormatInt(src.ID, 10)
	root, err := l.checkout(ctx, src)
	if err != nil {
		l.metrics.ScansTotal.WithLabelValues(src.Name, "error").Inc()
		return domain.Deck{}, err
	}

	paths, err := l.files.Markdown(root)
	if err != nil {
		l.metrics.ScansTotal.WithLabelValues(src.Name, "error").Inc()
		return domain.Deck{}, err
	}

	now := l.clock.Now()
	old := l.cardsByPath(deckID)
	var cards []domain.Card
	var parseErrors int
	for _, path := range paths {
		text, err := l.files.ReadFile(path)
		if err != nil {
			parseErrors++
			l.logger.Warn("reading deck document", "path", path, "error", err)
			continue
		}
		cards = append(cards, knol.Reconcile(old[path], parser.ParseCards(text), deckID, path, l.ids, now)...)
		delete(old, path)
	}

	deck := domain.NewDeck(deckID, src.Name, root, cards, now)
	l.store(root, deck)

	if err := l.registry.UpdateSourceLastScanned(ctx, src.ID, now); err != nil {
		l.logger.Warn("failed to update last scanned for source", "source_id", src.ID, "error", err)
	}
	l.metrics.ScansTotal.WithLabelValues(src.Name, "ok").Inc()
	l.metrics.CardsScanned.WithLabelValues(src.Name).Set(float64(len(deck.Cards)))

	removed := 0
	for _, cs := range old {
		removed += len(cs)
	}
	l.logger.Info("reconciliation complete",
		"path", root,
		"documents", len(paths),
		"parsed_cards", len(deck.Cards),
		"removed_cards", removed,
		"errors", parseErrors,
	)
	return deck, nil
}

func (l *Library) checkout(ctx context.Context, src storage.Source) (string, error) {
	if src.Type != "git" {
		return src.Path, nil
	}
	local, err := gitsource.LocalPath(l.reposDir, src.Path)
	if err != nil {
		return "", err
	}
	if err := l.sync(ctx, src.Path, local, l.logger); err != nil {
		return "", fmt.Errorf("syncing %s: %w", src.Path, err)
	}
	return local, nil
}

// RescanFile re-parses one document and reconciles the cards of the deck
// that contains it. A missing document drops its cards.
func (l *Library) RescanFile(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entryFor(path)
	if e == nil {
		return fmt.Errorf("no deck contains %s", path)
	}

	var kept, old []domain.Card
	for _, c := range e.deck.Cards {
		if c.Source.Path == path {
			old = append(old, c)
		} else {
			kept = append(kept, c)
		}
	}

	text, err := l.files.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		l.logger.Info("deck document removed", "path", path, "removed_cards", len(old))
	case err != nil:
		return fmt.Errorf("reading %s: %w", path, err)
	default:
		kept = append(kept, knol.Reconcile(old, parser.ParseCards(text), e.deck.ID, path, l.ids, l.clock.Now())...)
	}

	sortCards(kept)
	e.deck.Cards = kept
	l.metrics.CardsScanned.WithLabelValues(e.deck.Name).Set(float64(len(kept)))
	l.logger.Debug("deck document rescanned", "path", path, "deck", e.deck.Name)
	return nil
}

// entryFor must be called with the lock held.
func (l *Library) entryFor(path string) *entry {
	for _, id := range l.order {
		e := l.decks[id]
		if path == e.root || strings.HasPrefix(path, strings.TrimSuffix(e.root, string(filepath.Separator))+string(filepath.Separator)) {
			return e
		}
	}
	return nil
}

func sortCards(cards []domain.Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].Source.Path != cards[j].Source.Path {
			return cards[i].Source.Path < cards[j].Source.Path
		}
		return cards[i].Source.LineStart < cards[j].Source.LineStart
	})
}

func (l *Library) cardsByPath(deckID string) map[string][]domain.Card {
	l.mu.RLock()
	defer l.mu.RUnlock()
	byPath := make(map[string][]domain.Card)
	if e, ok := l.decks[deckID]; ok {
		for _, c := range e.deck.Cards {
			byPath[c.Source.Path] = append(byPath[c.Source.Path], c)
		}
	}
	return byPath
}

func (l *Library) store(root string, deck domain.Deck) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.decks[deck.ID]; !ok {
		l.order = append(l.order, deck.ID)
	}
	l.decks[deck.ID] = &entry{root: root, deck: deck}
}

// Roots returns the scanned folder of every deck.
func (l *Library) Roots() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	roots := make([]string, 0, len(l.order))
	for _, id := range l.order {
		roots = append(roots, l.decks[id].root)
	}
	return roots
}

// Decks returns a copy of every deck in registration order.
func (l *Library) Decks() []domain.Deck {
	l.mu.RLock()
	defer l.mu.RUnlock()
	decks := make([]domain.Deck, 0, len(l.order))
	for _, id := range l.order {
		decks = append(decks, copyDeck(l.decks[id].deck))
	}
	return decks
}

// Deck returns a copy of one deck.
func (l *Library) Deck(id string) (domain.Deck, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.decks[id]
	if !ok {
		return domain.Deck{}, false
	}
	return copyDeck(e.deck), true
}

// Card finds a card by id across all decks.
func (l *Library) Card(id string) (domain.Card, domain.Deck, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, deckID := range l.order {
		d := &l.decks[deckID].deck
		if c, ok := d.Card(id); ok {
			return *c, domain.Deck{ID: d.ID, Name: d.Name, Path: d.Path, LastScan: d.LastScan}, true
		}
	}
	return domain.Card{}, domain.Deck{}, false
}

// UpdateCard replaces a card's in-memory state.
func (l *Library) UpdateCard(card domain.Card) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.decks[card.DeckID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCard, card.ID)
	}
	c, ok := e.deck.Card(card.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCard, card.ID)
	}
	*c = card
	return nil
}

func copyDeck(d domain.Deck) domain.Deck {
	cards := make([]domain.Card, len(d.Cards))
	copy(cards, d.Cards)
	d.Cards = cards
	return d
}
