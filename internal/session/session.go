package session

import (
	"fmt"
	"strings"
	"time"
)

// Watermark steps for progress and incremental summary emissions.
const (
	progressStep    = 5
	incrementalStep = 50
)

// WorktreeInfo records the git worktree backing a session, when one exists.
type WorktreeInfo struct {
	WorktreePath string `json:"worktree_path"`
	BranchName   string `json:"branch_name"`
	ParentRepo   string `json:"parent_repo"`
}

// Session is the per-chat (or per-topic) state entry. Identity and context
// fields persist across restarts; response-collection state is volatile.
type Session struct {
	Key          Key
	ProjectName  string
	ProjectPath  string
	TerminalName string
	ToolID       string
	Worktree     *WorktreeInfo

	CreatedAt    time.Time
	LastActivity time.Time

	// Response collection state. Owned by the polling engine; zeroed by
	// ResetResponseState.
	ResponseBuffer     []string
	LastOutputSnapshot string
	LastOutputTime     time.Time
	PendingQuery       string
	PendingReplyTo     int
	IsWaiting          bool
	IsSummarizing      bool

	lastProgressLineCount    int
	lastIncrementalLineCount int
}

// NewSession creates a session entry for a connected terminal.
func NewSession(key Key, projectName, projectPath, terminalName, toolID string) *Session {
	now := time.Now()
	return &Session{
		Key:          key,
		ProjectName:  projectName,
		ProjectPath:  projectPath,
		TerminalName: terminalName,
		ToolID:       toolID,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Touch refreshes the activity timestamp.
func (s *Session) Touch() {
	s.LastActivity = time.Now()
}

// StartResponseCollection begins collecting a response to query. The
// snapshot is the scrollback at send time, so only later lines count as new.
func (s *Session) StartResponseCollection(query, snapshot string, replyTo int) {
	s.PendingQuery = query
	s.PendingReplyTo = replyTo
	s.LastOutputSnapshot = snapshot
	s.LastOutputTime = time.Now()
	s.ResponseBuffer = nil
	s.lastProgressLineCount = 0
	s.lastIncrementalLineCount = 0
	s.IsWaiting = true
	s.IsSummarizing = false
	s.Touch()
}

// ResetResponseState ends the current collection, clearing all response
// scope fields. The output snapshot stays so the next collection diffs
// against the current screen.
func (s *Session) ResetResponseState() {
	s.ResponseBuffer = nil
	s.LastOutputTime = time.Time{}
	s.PendingQuery = ""
	s.PendingReplyTo = 0
	s.IsWaiting = false
	s.IsSummarizing = false
	s.lastProgressLineCount = 0
	s.lastIncrementalLineCount = 0
}

// AddResponseLines appends non-empty lines to the buffer and refreshes the
// output timestamp.
func (s *Session) AddResponseLines(lines []string) {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		s.ResponseBuffer = append(s.ResponseBuffer, trimmed)
	}
	s.LastOutputTime = time.Now()
}

// ShouldEmitProgress reports whether the buffer crossed the next progress
// watermark. Progress fires every 5 lines to stay under chat rate limits.
func (s *Session) ShouldEmitProgress() bool {
	n := len(s.ResponseBuffer)
	return n > 0 && n >= s.lastProgressLineCount+progressStep
}

// ProgressMessage returns the in-place progress text and advances the
// progress watermark.
func (s *Session) ProgressMessage() string {
	n := len(s.ResponseBuffer)
	s.lastProgressLineCount = n
	return fmt.Sprintf("📥 Receiving...%d lines captured", n)
}

// ShouldEmitIncrementalSummary reports whether the buffer crossed the next
// incremental summary watermark (every 50 lines).
func (s *Session) ShouldEmitIncrementalSummary() bool {
	n := len(s.ResponseBuffer)
	return n > 0 && n >= s.lastIncrementalLineCount+incrementalStep
}

// MarkIncrementalSummarySent advances the incremental watermark to the
// current buffer length.
func (s *Session) MarkIncrementalSummarySent() {
	s.lastIncrementalLineCount = len(s.ResponseBuffer)
}

// IsIdle reports whether no new output arrived for longer than threshold.
func (s *Session) IsIdle(threshold time.Duration) bool {
	if s.LastOutputTime.IsZero() {
		return false
	}
	return time.Since(s.LastOutputTime) > threshold
}

// BufferedResponse joins the collected lines.
func (s *Session) BufferedResponse() string {
	return strings.Join(s.ResponseBuffer, "\n")
}

// PersistedSession is the durable projection of a Session: identity and
// context only, no collection state.
type PersistedSession struct {
	ChatID       int64         `json:"chat_id"`
	ThreadID     int64         `json:"thread_id,omitempty"`
	ProjectName  string        `json:"project_name"`
	ProjectPath  string        `json:"project_path"`
	TerminalName string        `json:"terminal_name"`
	ToolID       string        `json:"tool_id"`
	Worktree     *WorktreeInfo `json:"worktree,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
}

// ToPersisted projects the session for storage.
func (s *Session) ToPersisted() PersistedSession {
	return PersistedSession{
		ChatID:       s.Key.ChatID,
		ThreadID:     s.Key.ThreadID,
		ProjectName:  s.ProjectName,
		ProjectPath:  s.ProjectPath,
		TerminalName: s.TerminalName,
		ToolID:       s.ToolID,
		Worktree:     s.Worktree,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
}

// Restore rebuilds an in-memory session from its persisted form with all
// volatile fields zeroed.
func (p PersistedSession) Restore() *Session {
	return &Session{
		Key:          Key{ChatID: p.ChatID, ThreadID: p.ThreadID},
		ProjectName:  p.ProjectName,
		ProjectPath:  p.ProjectPath,
		TerminalName: p.TerminalName,
		ToolID:       p.ToolID,
		Worktree:     p.Worktree,
		CreatedAt:    p.CreatedAt,
		LastActivity: p.LastActivity,
	}
}

// Age returns time since the session was last active.
func (p PersistedSession) Age() time.Duration {
	return time.Since(p.LastActivity)
}
