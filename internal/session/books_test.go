package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthBookDeniesUntilPaired(t *testing.T) {
	b := NewAuthBook(filepath.Join(t.TempDir(), "authorized_chats.json"))

	// A fresh install authorizes nobody.
	assert.False(t, b.IsAuthorized(123))

	require.NoError(t, b.Authorize(123))
	assert.True(t, b.IsAuthorized(123))
	assert.False(t, b.IsAuthorized(456))

	// Idempotent.
	require.NoError(t, b.Authorize(123))
	chats, err := b.List()
	require.NoError(t, err)
	assert.Equal(t, []int64{123}, chats)
}

func TestGroupBookTopics(t *testing.T) {
	b := NewGroupBook(filepath.Join(t.TempDir(), "group_configs.json"))

	cfg, err := b.Get(-100)
	require.NoError(t, err)
	assert.False(t, cfg.IsForum)

	require.NoError(t, b.SetTopicSession(-100, 7, "commander-alpha"))
	require.NoError(t, b.SetTopicSession(-100, 8, "commander-beta"))

	cfg, err = b.Get(-100)
	require.NoError(t, err)
	assert.True(t, cfg.IsForum)
	assert.Equal(t, "commander-alpha", cfg.TopicSessions[7])

	thread, ok := b.TopicForTerminal(-100, "commander-beta")
	assert.True(t, ok)
	assert.Equal(t, int64(8), thread)

	require.NoError(t, b.RemoveTopicSession(-100, 7))
	cfg, err = b.Get(-100)
	require.NoError(t, err)
	_, ok = cfg.TopicSessions[7]
	assert.False(t, ok)
}

func TestProjectBookRegisterGetRemove(t *testing.T) {
	b := NewProjectBook(filepath.Join(t.TempDir(), "projects.json"))

	p, err := b.Register("", "/home/dev/webapp", "claude-code")
	require.NoError(t, err)
	assert.Equal(t, "webapp", p.Name)

	got, err := b.Get("WEBAPP")
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/webapp", got.Path)

	_, err = b.Get("nope")
	assert.ErrorIs(t, err, ErrProjectNotFound)

	// Re-register updates in place.
	_, err = b.Register("webapp", "/home/dev/webapp2", "mpm")
	require.NoError(t, err)
	list, err := b.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "/home/dev/webapp2", list[0].Path)
	assert.Equal(t, "mpm", list[0].DefaultTool)

	removed, err := b.Remove("webapp")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = b.Remove("webapp")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestProjectBookSuggest(t *testing.T) {
	b := NewProjectBook(filepath.Join(t.TempDir(), "projects.json"))
	_, err := b.Register("webapp", "/w", "")
	require.NoError(t, err)
	_, err = b.Register("website", "/s", "")
	require.NoError(t, err)
	_, err = b.Register("api", "/a", "")
	require.NoError(t, err)

	got := b.Suggest("web", 5)
	assert.Contains(t, got, "webapp")
	assert.Contains(t, got, "website")
	assert.NotContains(t, got, "api")
}
