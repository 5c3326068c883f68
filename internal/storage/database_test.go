package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestKeyValueStores(t *testing.T) {
	ctx := context.Background()
	stores := map[string]interface {
		Get(context.Context, string, any) (bool, error)
		Set(context.Context, string, any) error
		Delete(context.Context, string) error
	}{
		"sqlite": openTestDB(t),
		"memory": NewMemory(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			var got record
			found, err := store.Get(ctx, "missing", &got)
			require.NoError(t, err)
			assert.False(t, found)

			want := record{Name: "spanish", Count: 3, Tags: []string{"a", "b"}}
			require.NoError(t, store.Set(ctx, "r", want))
			found, err = store.Get(ctx, "r", &got)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, want, got)

			want.Count = 4
			require.NoError(t, store.Set(ctx, "r", want))
			_, err = store.Get(ctx, "r", &got)
			require.NoError(t, err)
			assert.Equal(t, 4, got.Count)

			require.NoError(t, store.Delete(ctx, "r"))
			require.NoError(t, store.Delete(ctx, "r"))
			found, err = store.Get(ctx, "r", &got)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.InsertSource(ctx, "Spanish", "/notes/spanish")
	require.NoError(t, err)

	s, err := db.FindSourceByPath(ctx, "/notes/spanish")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, id, s.ID)
	assert.Equal(t, "Spanish", s.Name)
	assert.Equal(t, "local", s.Type)
	assert.False(t, s.LastScanned.Valid)

	again, err := db.EnsureSource(ctx, "ignored", "/notes/spanish")
	require.NoError(t, err)
	assert.Equal(t, id, again.ID)

	remote, err := db.EnsureSource(ctx, "Go", "https://example.com/cards.git")
	require.NoError(t, err)
	assert.Equal(t, "git", remote.Type)

	scanned := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, db.UpdateSourceLastScanned(ctx, id, scanned))

	all, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].LastScanned.Valid)
	assert.True(t, all[0].LastScanned.Time.Equal(scanned))

	require.NoError(t, db.DeleteSource(ctx, id))
	assert.ErrorIs(t, db.DeleteSource(ctx, id), ErrNotFound)
	assert.ErrorIs(t, db.UpdateSourceLastScanned(ctx, id, scanned), ErrNotFound)

	missing, err := db.FindSourceByPath(ctx, "/notes/spanish")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSourceType(t *testing.T) {
	assert.Equal(t, "git", SourceType("git@github.com:me/cards.git"))
	assert.Equal(t, "git", SourceType("https://github.com/me/cards"))
	assert.Equal(t, "local", SourceType("./cards"))
}
