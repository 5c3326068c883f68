package gitsource

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPath(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		expected string
		wantErr  bool
	}{
		{"https", "https://github.com/me/cards.git", filepath.Join("repos", "github.com", "me", "cards"), false},
		{"https without suffix", "https://gitlab.com/team/spanish", filepath.Join("repos", "gitlab.com", "team", "spanish"), false},
		{"scp-like", "git@github.com:me/cards.git", filepath.Join("repos", "github.com", "me", "cards"), false},
		{"not a url", "just-a-folder", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LocalPath("repos", tc.url)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestSyncReportsCloneFailure(t *testing.T) {
	ctx := context.Background()
	origin := t.TempDir()
	_, err := git.PlainInit(origin, false)
	require.NoError(t, err)

	checkout := filepath.Join(t.TempDir(), "cards")
	// An empty origin cannot be cloned; the error must name the url.
	err = Sync(ctx, origin, checkout, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), origin)
}
