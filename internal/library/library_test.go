package library

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/storage"
)

var now = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

func newTestLibrary(t *testing.T, files Files, opts Options) (*Library, *storage.DB) {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(files, db, &domain.SequentialIDs{Prefix: "card"}, domain.FixedClock{T: now}, opts), db
}

func TestScanLocalDeck(t *testing.T) {
	ctx := context.Background()
	files := NewMemFiles(map[string]string{
		"/decks/spanish/animals.md": "# Animals\nperro:::dog\ngato::cat\n",
		"/decks/spanish/verbs.md":   "comer::to eat <!--SR:!2025-07-04,3,250-->\n",
		"/decks/spanish/notes.txt":  "ignored::entirely\n",
		"/decks/german/haus.md":     "Haus::house\n",
	})
	lib, db := newTestLibrary(t, files, Options{})

	src, err := lib.AddSource(ctx, "", "/decks/spanish")
	require.NoError(t, err)
	assert.Equal(t, "spanish", src.Name)

	decks, err := lib.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, decks, 1)

	deck := decks[0]
	assert.Equal(t, "1", deck.ID)
	assert.Equal(t, "spanish", deck.Name)
	require.Len(t, deck.Cards, 4)
	for _, c := range deck.Cards {
		assert.Equal(t, deck.ID, c.DeckID)
	}
	assert.Equal(t, "/decks/spanish/animals.md", deck.Cards[0].Source.Path)

	verb := deck.Cards[3]
	assert.Equal(t, "comer", verb.Question)
	assert.Equal(t, domain.Review, verb.State)
	assert.Equal(t, 3, verb.Interval)

	sources, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.True(t, sources[0].LastScanned.Valid)
}

func TestRescanKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	files := NewMemFiles(map[string]string{
		"/decks/go/basics.md": "chan::a typed conduit\ndefer::runs at return\n",
	})
	lib, _ := newTestLibrary(t, files, Options{})
	_, err := lib.AddSource(ctx, "go", "/decks/go")
	require.NoError(t, err)

	decks, err := lib.ScanAll(ctx)
	require.NoError(t, err)
	first := decks[0].Cards

	require.NoError(t, files.WriteFile("/decks/go/basics.md", "goroutine::a lightweight thread\n\nchan::a typed conduit\n"))
	decks, err = lib.ScanAll(ctx)
	require.NoError(t, err)
	second := decks[0].Cards

	require.Len(t, second, 2)
	assert.Equal(t, "card-3", second[0].ID)
	assert.Equal(t, first[0].ID, second[1].ID)
	assert.Equal(t, 2, second[1].Source.LineStart)
}

func TestRescanFile(t *testing.T) {
	ctx := context.Background()
	files := NewMemFiles(map[string]string{
		"/decks/go/a.md": "one::1\n",
		"/decks/go/b.md": "two::2\nthree::3\n",
	})
	lib, _ := newTestLibrary(t, files, Options{})
	_, err := lib.AddSource(ctx, "go", "/decks/go")
	require.NoError(t, err)
	_, err = lib.ScanAll(ctx)
	require.NoError(t, err)

	require.NoError(t, files.WriteFile("/decks/go/a.md", "one::1\nfour::4\n"))
	require.NoError(t, lib.RescanFile(ctx, "/decks/go/a.md"))
	deck, ok := lib.Deck("1")
	require.True(t, ok)
	var questions []string
	for _, c := range deck.Cards {
		questions = append(questions, c.Question)
	}
	assert.Equal(t, []string{"one", "four", "two", "three"}, questions)

	files.Remove("/decks/go/b.md")
	require.NoError(t, lib.RescanFile(ctx, "/decks/go/b.md"))
	deck, _ = lib.Deck("1")
	assert.Len(t, deck.Cards, 2)

	assert.Error(t, lib.RescanFile(ctx, "/elsewhere/c.md"))
}

func TestScanGitDeck(t *testing.T) {
	ctx := context.Background()
	files := NewMemFiles(map[string]string{
		"repos/github.com/me/cards/deck.md": "q::a\n",
	})
	var synced []string
	lib, _ := newTestLibrary(t, files, Options{
		Sync: func(_ context.Context, url, localPath string, _ *slog.Logger) error {
			synced = append(synced, url+" -> "+localPath)
			return nil
		},
	})

	_, err := lib.AddSource(ctx, "cards", "https://github.com/me/cards.git")
	require.NoError(t, err)
	decks, err := lib.ScanAll(ctx)
	require.NoError(t, err)

	require.Equal(t, []string{"https://github.com/me/cards.git -> " + filepath.Join("repos", "github.com", "me", "cards")}, synced)
	require.Len(t, decks, 1)
	assert.Len(t, decks[0].Cards, 1)
	assert.Equal(t, []string{filepath.Join("repos", "github.com", "me", "cards")}, lib.Roots())
}

func TestCardLookupAndUpdate(t *testing.T) {
	ctx := context.Background()
	files := NewMemFiles(map[string]string{"/d/x.md": "q::a\n"})
	lib, _ := newTestLibrary(t, files, Options{})
	_, err := lib.AddSource(ctx, "d", "/d")
	require.NoError(t, err)
	_, err = lib.ScanAll(ctx)
	require.NoError(t, err)

	card, deck, ok := lib.Card("card-1")
	require.True(t, ok)
	assert.Equal(t, "d", deck.Name)
	assert.Empty(t, deck.Cards)

	card.Reviews = 3
	require.NoError(t, lib.UpdateCard(card))
	again, _, _ := lib.Card("card-1")
	assert.Equal(t, 3, again.Reviews)

	_, _, ok = lib.Card("missing")
	assert.False(t, ok)
	card.ID = "missing"
	assert.ErrorIs(t, lib.UpdateCard(card), ErrUnknownCard)
}

func TestOSFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("b"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "a.MD"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", ".git", "c.md"), []byte("c"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("n"), 0o644))

	var files OSFiles
	paths, err := files.Markdown(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.md"), filepath.Join(dir, "sub", "a.MD")}, paths)

	require.NoError(t, files.WriteFile(filepath.Join(dir, "b.md"), "updated"))
	got, err := files.ReadFile(filepath.Join(dir, "b.md"))
	require.NoError(t, err)
	assert.Equal(t, "updated", got)
	info, err := os.Stat(filepath.Join(dir, "b.md"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWatcherRescansChangedDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "deck.md")
	require.NoError(t, os.WriteFile(path, []byte("q1::a1\n"), 0o644))

	lib, _ := newTestLibrary(t, OSFiles{}, Options{})
	_, err := lib.AddSource(ctx, "tmp", dir)
	require.NoError(t, err)
	_, err = lib.ScanAll(ctx)
	require.NoError(t, err)

	w, err := NewWatcher(lib, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("q1::a1\nq2::a2\n"), 0o644))

	assert.Eventually(t, func() bool {
		deck, _ := lib.Deck("1")
		return len(deck.Cards) == 2
	}, 5*time.Second, 20*time.Millisecond)

	w.Stop()
	w.Stop()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
