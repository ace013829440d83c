package session

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPairingBook(t *testing.T) *PairingBook {
	t.Helper()
	return NewPairingBook(filepath.Join(t.TempDir(), "pairings.json"))
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, c := range code {
		assert.Contains(t, pairingCharset, string(c))
	}
}

func TestPairingCreateAndConsume(t *testing.T) {
	b := newTestPairingBook(t)

	code, err := b.Create("my-project", "commander-my-project")
	require.NoError(t, err)
	assert.True(t, b.Exists(code))

	p, err := b.Consume(code)
	require.NoError(t, err)
	assert.Equal(t, "my-project", p.ProjectName)
	assert.Equal(t, "commander-my-project", p.SessionName)

	// Single use.
	_, err = b.Consume(code)
	assert.ErrorIs(t, err, ErrPairingInvalid)
	assert.False(t, b.Exists(code))
}

func TestPairingConsumeCaseInsensitive(t *testing.T) {
	b := newTestPairingBook(t)

	code, err := b.Create("proj", "commander-proj")
	require.NoError(t, err)

	_, err = b.Consume(strings.ToLower(code))
	require.NoError(t, err)
}

func TestPairingExpiry(t *testing.T) {
	b := newTestPairingBook(t)

	code, err := b.Create("proj", "commander-proj")
	require.NoError(t, err)

	// Age the entry past the TTL by rewriting its timestamp.
	pairings := map[string]Pairing{
		code: {
			ProjectName: "proj",
			SessionName: "commander-proj",
			CreatedAt:   time.Now().Add(-6 * time.Minute).Unix(),
		},
	}
	require.NoError(t, b.store.Save(pairings))

	assert.False(t, b.Exists(code))
	_, err = b.Consume(code)
	assert.ErrorIs(t, err, ErrPairingInvalid)
}

func TestPairingPerTerminalLimit(t *testing.T) {
	b := newTestPairingBook(t)

	for i := 0; i < maxPairingsPerTerminal; i++ {
		_, err := b.Create("proj", "commander-proj")
		require.NoError(t, err)
	}
	_, err := b.Create("proj", "commander-proj")
	assert.ErrorIs(t, err, ErrPairingLimit)

	// Other terminals are unaffected.
	_, err = b.Create("other", "commander-other")
	assert.NoError(t, err)
}
