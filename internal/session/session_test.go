package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession(NewKey(12345), "my-project", "/path/to/project", "commander-my-project", "claude-code")

	assert.Equal(t, int64(12345), s.Key.ChatID)
	assert.False(t, s.Key.HasThread())
	assert.Equal(t, "my-project", s.ProjectName)
	assert.Equal(t, "commander-my-project", s.TerminalName)
	assert.Empty(t, s.ResponseBuffer)
	assert.False(t, s.IsWaiting)
	assert.False(t, s.IsSummarizing)
}

func TestResponseCollectionLifecycle(t *testing.T) {
	s := NewSession(NewKey(1), "proj", "/path", "commander-proj", "claude-code")

	s.StartResponseCollection("hello", "initial output", 42)
	assert.True(t, s.IsWaiting)
	assert.Equal(t, "hello", s.PendingQuery)
	assert.Equal(t, 42, s.PendingReplyTo)
	assert.False(t, s.IsSummarizing)

	s.AddResponseLines([]string{"line 1", "  line 2  ", ""})
	assert.Equal(t, []string{"line 1", "line 2"}, s.ResponseBuffer)
	assert.Equal(t, "line 1\nline 2", s.BufferedResponse())

	s.ResetResponseState()
	assert.False(t, s.IsWaiting)
	assert.Empty(t, s.ResponseBuffer)
	assert.Empty(t, s.PendingQuery)
	assert.Zero(t, s.PendingReplyTo)
	assert.False(t, s.ShouldEmitProgress())
}

func TestProgressWatermarks(t *testing.T) {
	s := NewSession(NewKey(1), "proj", "/path", "commander-proj", "claude-code")

	assert.False(t, s.ShouldEmitProgress())

	for i := 1; i <= 5; i++ {
		s.AddResponseLines([]string{fmt.Sprintf("line %d", i)})
	}
	assert.True(t, s.ShouldEmitProgress())
	assert.Equal(t, "📥 Receiving...5 lines captured", s.ProgressMessage())

	// Four more lines stay under the next watermark.
	for i := 6; i <= 9; i++ {
		s.AddResponseLines([]string{fmt.Sprintf("line %d", i)})
	}
	assert.False(t, s.ShouldEmitProgress())

	s.AddResponseLines([]string{"line 10"})
	assert.True(t, s.ShouldEmitProgress())
	assert.Equal(t, "📥 Receiving...10 lines captured", s.ProgressMessage())
}

func TestIncrementalSummaryWatermarks(t *testing.T) {
	s := NewSession(NewKey(1), "proj", "/path", "commander-proj", "claude-code")

	assert.False(t, s.ShouldEmitIncrementalSummary())

	for i := 1; i <= 49; i++ {
		s.AddResponseLines([]string{fmt.Sprintf("line %d", i)})
	}
	assert.False(t, s.ShouldEmitIncrementalSummary())

	s.AddResponseLines([]string{"line 50"})
	assert.True(t, s.ShouldEmitIncrementalSummary())
	assert.Len(t, s.ResponseBuffer, 50)

	s.MarkIncrementalSummarySent()

	for i := 51; i <= 99; i++ {
		s.AddResponseLines([]string{fmt.Sprintf("line %d", i)})
	}
	assert.False(t, s.ShouldEmitIncrementalSummary())

	s.AddResponseLines([]string{"line 100"})
	assert.True(t, s.ShouldEmitIncrementalSummary())
}

func TestIsIdle(t *testing.T) {
	s := NewSession(NewKey(1), "proj", "/path", "commander-proj", "claude-code")

	// No output yet: never idle.
	assert.False(t, s.IsIdle(time.Millisecond))

	s.AddResponseLines([]string{"line"})
	assert.False(t, s.IsIdle(time.Hour))

	s.LastOutputTime = time.Now().Add(-2 * time.Second)
	assert.True(t, s.IsIdle(1500*time.Millisecond))
}

func TestPersistedRoundTrip(t *testing.T) {
	s := NewSession(NewTopicKey(10, 99), "proj", "/path", "commander-proj", "mpm")
	s.Worktree = &WorktreeInfo{
		WorktreePath: "/repo/.worktrees/feat",
		BranchName:   "session/feat",
		ParentRepo:   "/repo",
	}
	s.StartResponseCollection("query", "snapshot", 7)

	p := s.ToPersisted()
	assert.Equal(t, int64(10), p.ChatID)
	assert.Equal(t, int64(99), p.ThreadID)

	restored := p.Restore()
	assert.Equal(t, s.Key, restored.Key)
	assert.Equal(t, "mpm", restored.ToolID)
	require.NotNil(t, restored.Worktree)
	assert.Equal(t, "session/feat", restored.Worktree.BranchName)
	// Collection state is volatile and does not survive the round trip.
	assert.False(t, restored.IsWaiting)
	assert.Empty(t, restored.PendingQuery)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "42", NewKey(42).String())
	assert.Equal(t, "42:7", NewTopicKey(42, 7).String())
	assert.True(t, NewTopicKey(42, 7).HasThread())
}
