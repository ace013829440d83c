package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/sjoeboo/commander/internal/adapter"
	"github.com/sjoeboo/commander/internal/filter"
	"github.com/sjoeboo/commander/internal/git"
	"github.com/sjoeboo/commander/internal/logging"
	"github.com/sjoeboo/commander/internal/tmux"
)

// restoreWindow is how long a persisted session stays restorable.
const restoreWindow = 24 * time.Hour

// Mux is the terminal multiplexer surface the registry drives.
type Mux interface {
	SessionExists(ctx context.Context, name string) bool
	CreateSessionInDir(ctx context.Context, name, dir string) error
	DestroySession(ctx context.Context, name string) error
	SendLine(ctx context.Context, name, text string) error
	CaptureOutput(ctx context.Context, name string, n int) (string, error)
	ListSessions(ctx context.Context) ([]string, error)
}

// Summarizer condenses raw terminal output for chat delivery.
type Summarizer interface {
	Available() bool
	SummarizeFinal(ctx context.Context, query, raw string) string
	SummarizeIncremental(ctx context.Context, raw string, lineCount int) string
}

// Config wires a Registry's collaborators and tuning knobs.
type Config struct {
	Mux        Mux
	Summarizer Summarizer
	Adapters   *adapter.Registry

	SessionsPath      string
	PairingsPath      string
	AuthorizedPath    string
	GroupConfigsPath  string
	ProjectsPath      string
	NotificationsPath string
	VersionPath       string

	// History is optional; nil disables event recording.
	History *History

	CaptureLines  int
	IdleThreshold time.Duration
}

// Registry owns all live sessions and their persistence.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Key]*Session

	mux      Mux
	sum      Summarizer
	adapters *adapter.Registry

	store    *Store
	pairings *PairingBook
	auth     *AuthBook
	groups   *GroupBook
	projects *ProjectBook
	notify   *NotificationQueue
	version  *VersionTracker
	history  *History

	captureLines  int
	idleThreshold time.Duration

	log *slog.Logger
}

// NewRegistry builds a registry from cfg.
func NewRegistry(cfg Config) *Registry {
	captureLines := cfg.CaptureLines
	if captureLines <= 0 {
		captureLines = tmux.DefaultCaptureLines
	}
	idle := cfg.IdleThreshold
	if idle <= 0 {
		idle = 1500 * time.Millisecond
	}
	return &Registry{
		sessions:      make(map[Key]*Session),
		mux:           cfg.Mux,
		sum:           cfg.Summarizer,
		adapters:      cfg.Adapters,
		store:         NewStore(cfg.SessionsPath),
		pairings:      NewPairingBook(cfg.PairingsPath),
		auth:          NewAuthBook(cfg.AuthorizedPath),
		groups:        NewGroupBook(cfg.GroupConfigsPath),
		projects:      NewProjectBook(cfg.ProjectsPath),
		notify:        NewNotificationQueue(cfg.NotificationsPath),
		version:       NewVersionTracker(cfg.VersionPath),
		history:       cfg.History,
		captureLines:  captureLines,
		idleThreshold: idle,
		log:           logging.ForComponent(logging.CompRegistry),
	}
}

// Projects exposes the project book for command handlers.
func (r *Registry) Projects() *ProjectBook { return r.projects }

// Groups exposes the group config book.
func (r *Registry) Groups() *GroupBook { return r.groups }

// Notifications exposes the shared notification queue.
func (r *Registry) Notifications() *NotificationQueue { return r.notify }

// History exposes the activity log; nil when recording is disabled.
func (r *Registry) History() *History { return r.history }

func (r *Registry) put(s *Session) {
	r.mu.Lock()
	r.sessions[s.Key] = s
	r.mu.Unlock()
}

// Get returns the session for key, if connected.
func (r *Registry) Get(key Key) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// HasSession reports whether key has a connected session.
func (r *Registry) HasSession(key Key) bool {
	_, ok := r.Get(key)
	return ok
}

// Keys returns all connected session keys.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]Key, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	return keys
}

// WaitingKeys returns keys with an in-flight response collection.
func (r *Registry) WaitingKeys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []Key
	for k, s := range r.sessions {
		if s.IsWaiting {
			keys = append(keys, k)
		}
	}
	return keys
}

// ConnectedTerminals returns the terminal names currently attached to any
// chat.
func (r *Registry) ConnectedTerminals() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.sessions))
	for _, s := range r.sessions {
		out[s.TerminalName] = true
	}
	return out
}

// Connect attaches a chat to a registered project or an existing terminal.
// Registered projects win; a missing terminal for a registered project is
// created and its tool launched. Returns the connected session.
func (r *Registry) Connect(ctx context.Context, key Key, name string) (*Session, error) {
	if r.HasSession(key) {
		return nil, ErrAlreadyConnected
	}

	base := tmux.DisplayName(strings.TrimSpace(name))

	if p, err := r.projects.Get(base); err == nil {
		return r.connectProject(ctx, key, p)
	}

	// Unregistered terminals: try the managed name, the raw argument,
	// then the bare alias.
	for _, candidate := range []string{tmux.ManagedName(base), strings.TrimSpace(name), base} {
		if candidate == "" || !r.mux.SessionExists(ctx, candidate) {
			continue
		}
		toolID := r.detectTool(ctx, candidate)
		s := NewSession(key, tmux.DisplayName(candidate), "", candidate, toolID)
		r.put(s)
		r.saveSessions()
		r.record(ctx, key, candidate, EventConnect, "attached to terminal")
		r.log.Info("connected to terminal", "key", key.String(), "terminal", candidate, "tool", toolID)
		return s, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrTerminalNotFound, name)
}

// detectTool infers which tool runs in a terminal from its scrollback.
// Attaching to a pre-existing terminal is the only path with no registered
// tool, so a failed capture or an unrecognized screen falls back to
// "unknown".
func (r *Registry) detectTool(ctx context.Context, terminal string) string {
	out, err := r.mux.CaptureOutput(ctx, terminal, r.captureLines)
	if err != nil {
		return adapter.UnknownToolID
	}
	if id := r.adapters.Detect(out); id != "" {
		return id
	}
	return adapter.UnknownToolID
}

func (r *Registry) connectProject(ctx context.Context, key Key, p Project) (*Session, error) {
	if err := validateProjectPath(p.Path); err != nil {
		return nil, err
	}

	toolID := p.DefaultTool
	if toolID == "" {
		toolID = adapter.DefaultToolID
	}
	terminal := tmux.ManagedName(p.Name)

	if !r.mux.SessionExists(ctx, terminal) {
		a := r.adapters.Get(toolID)
		if a == nil {
			return nil, fmt.Errorf("unknown adapter: %s", toolID)
		}
		if err := r.mux.CreateSessionInDir(ctx, terminal, p.Path); err != nil {
			return nil, err
		}
		if cmd := a.LaunchCommand(p.Path); cmd != "" {
			if err := r.mux.SendLine(ctx, terminal, cmd); err != nil {
				return nil, err
			}
		}
		r.log.Info("started new terminal", "project", p.Name, "terminal", terminal, "tool", toolID)
	}

	s := NewSession(key, p.Name, p.Path, terminal, toolID)
	r.put(s)
	r.saveSessions()
	r.record(ctx, key, terminal, EventConnect, "connected to project "+p.Name)
	return s, nil
}

// ConnectNew registers a project at path and connects to it.
func (r *Registry) ConnectNew(ctx context.Context, key Key, path, adapterAlias, name string) (*Session, error) {
	toolID := r.adapters.Resolve(adapterAlias)
	if toolID == "" {
		return nil, fmt.Errorf("unknown adapter: %s", adapterAlias)
	}
	if err := validateProjectPath(path); err != nil {
		return nil, err
	}
	if _, err := r.projects.Get(name); err == nil {
		return nil, fmt.Errorf("project %q already exists, use /connect %s", name, name)
	}
	p, err := r.projects.Register(name, path, toolID)
	if err != nil {
		return nil, err
	}
	r.log.Info("registered new project", "name", p.Name, "path", p.Path, "tool", toolID)
	return r.Connect(ctx, key, p.Name)
}

// ConnectWithWorktree creates a git worktree off parentRepo with a session
// branch, starts a terminal inside it, and connects the chat. parentRepo
// empty means the process working directory.
func (r *Registry) ConnectWithWorktree(ctx context.Context, key Key, alias, parentRepo string) (*Session, error) {
	if r.HasSession(key) {
		return nil, ErrAlreadyConnected
	}

	if parentRepo == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		parentRepo = cwd
	}
	if !git.IsGitRepo(parentRepo) {
		return nil, fmt.Errorf("%s is not a git repository", parentRepo)
	}

	worktreePath := git.WorktreePath(parentRepo, alias)
	if _, err := os.Stat(worktreePath); err == nil {
		return nil, fmt.Errorf("worktree already exists at %s", worktreePath)
	}

	terminal := tmux.ManagedName(alias)
	if r.mux.SessionExists(ctx, terminal) {
		return nil, fmt.Errorf("session %q already exists", terminal)
	}

	if _, err := git.AddWorktree(parentRepo, alias); err != nil {
		return nil, fmt.Errorf("create worktree: %w", err)
	}

	// The parent repo's registered tool carries over to the worktree.
	toolID := adapter.DefaultToolID
	if projects, err := r.projects.List(); err == nil {
		for _, p := range projects {
			if p.Path == parentRepo && p.DefaultTool != "" {
				toolID = p.DefaultTool
				break
			}
		}
	}

	if err := r.mux.CreateSessionInDir(ctx, terminal, worktreePath); err != nil {
		return nil, err
	}
	if a := r.adapters.Get(toolID); a != nil {
		if cmd := a.LaunchCommand(worktreePath); cmd != "" {
			if err := r.mux.SendLine(ctx, terminal, cmd); err != nil {
				return nil, err
			}
		}
	}

	s := NewSession(key, alias, worktreePath, terminal, toolID)
	s.Worktree = &WorktreeInfo{
		WorktreePath: worktreePath,
		BranchName:   git.SessionBranch(alias),
		ParentRepo:   parentRepo,
	}
	r.put(s)
	r.saveSessions()
	r.record(ctx, key, terminal, EventConnect, "created worktree session")
	r.log.Info("created worktree session", "key", key.String(), "terminal", terminal, "worktree", worktreePath)
	return s, nil
}

// Disconnect detaches a chat from its session without touching the
// terminal. Returns the project name, or false when nothing was connected.
func (r *Registry) Disconnect(ctx context.Context, key Key) (string, bool) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mu.Unlock()
	if !ok {
		return "", false
	}
	r.saveSessions()
	r.record(ctx, key, s.TerminalName, EventDisconnect, "")
	r.log.Info("disconnected", "key", key.String(), "terminal", s.TerminalName)
	return s.ProjectName, true
}

// StopReport describes what /stop did.
type StopReport struct {
	Terminal      string
	Committed     bool
	CommitMessage string
	Merged        bool
	Branch        string
	Stats         git.Stats
	WasConnected  bool
}

// Stop destroys a terminal, auto-committing any uncommitted work first.
// Worktree sessions are merged back into the parent repo's default branch
// and cleaned up. terminalArg empty means the connected terminal.
func (r *Registry) Stop(ctx context.Context, key Key, terminalArg string) (StopReport, error) {
	var report StopReport

	terminal := ""
	projectPath := ""
	var worktree *WorktreeInfo

	connected, hasConnected := r.Get(key)

	if strings.TrimSpace(terminalArg) == "" {
		if !hasConnected {
			return report, ErrNoSession
		}
		terminal = connected.TerminalName
		projectPath = connected.ProjectPath
		worktree = connected.Worktree
	} else {
		terminal = strings.TrimSpace(terminalArg)
		if !strings.HasPrefix(terminal, tmux.SessionPrefix) {
			terminal = tmux.ManagedName(terminal)
		}
		if p, err := r.projects.Get(tmux.DisplayName(terminal)); err == nil {
			projectPath = p.Path
		}
		if hasConnected && connected.TerminalName == terminal {
			projectPath = connected.ProjectPath
			worktree = connected.Worktree
		}
	}
	report.Terminal = terminal
	report.WasConnected = hasConnected && connected.TerminalName == terminal

	if !r.mux.SessionExists(ctx, terminal) {
		return report, fmt.Errorf("%w: %s", ErrTerminalNotFound, terminal)
	}

	alias := tmux.DisplayName(terminal)

	if projectPath != "" && git.IsGitRepo(projectPath) {
		if stats, err := git.DiffStats(projectPath); err == nil {
			report.Stats = stats
		}
		msg := fmt.Sprintf("WIP: Auto-commit from Commander session '%s'", alias)
		committed, err := git.AutoCommit(projectPath, msg)
		if err != nil {
			r.log.Warn("auto-commit failed", "terminal", terminal, "error", err)
		} else if committed {
			report.Committed = true
			report.CommitMessage = msg
		}
	}

	if worktree != nil {
		report.Branch = worktree.BranchName
		if err := r.mergeWorktree(worktree, alias); err != nil {
			r.log.Warn("worktree merge failed", "terminal", terminal, "error", err)
		} else {
			report.Merged = true
		}
	}

	if err := r.mux.DestroySession(ctx, terminal); err != nil {
		return report, fmt.Errorf("destroy session: %w", err)
	}

	if report.WasConnected {
		r.Disconnect(ctx, key)
	}
	r.record(ctx, key, terminal, EventStop, report.CommitMessage)
	r.log.Info("stopped session", "terminal", terminal, "committed", report.Committed, "merged", report.Merged)
	return report, nil
}

// mergeWorktree folds a session branch back into the default branch and
// removes the worktree.
func (r *Registry) mergeWorktree(w *WorktreeInfo, alias string) error {
	def, err := git.DefaultBranch(w.ParentRepo)
	if err != nil {
		return err
	}
	if err := git.Checkout(w.ParentRepo, def); err != nil {
		return err
	}
	msg := fmt.Sprintf("Merge session '%s'", alias)
	if err := git.MergeNoFF(w.ParentRepo, w.BranchName, msg); err != nil {
		return err
	}
	if err := git.RemoveWorktree(w.ParentRepo, w.WorktreePath, true); err != nil {
		return err
	}
	return git.DeleteBranch(w.ParentRepo, w.BranchName)
}

// SendInput forwards a message to the connected terminal and starts
// collecting its response. Rejected while a previous response is pending.
func (r *Registry) SendInput(ctx context.Context, key Key, text string, replyTo int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return ErrNoSession
	}
	if s.IsWaiting {
		return ErrBusy
	}

	snapshot, err := r.mux.CaptureOutput(ctx, s.TerminalName, r.captureLines)
	if err != nil {
		snapshot = ""
	}
	if err := r.mux.SendLine(ctx, s.TerminalName, text); err != nil {
		return err
	}
	s.StartResponseCollection(text, snapshot, replyTo)
	r.record(ctx, key, s.TerminalName, EventMessage, text)
	return nil
}

// PollOutput advances response collection for one session by a tick.
func (r *Registry) PollOutput(ctx context.Context, key Key) (PollResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return PollResult{}, ErrNoSession
	}
	if !s.IsWaiting {
		return PollResult{Kind: PollNone}, nil
	}

	current, err := r.mux.CaptureOutput(ctx, s.TerminalName, r.captureLines)
	if err != nil {
		return PollResult{}, err
	}

	if current != s.LastOutputSnapshot {
		newLines := filter.FindNewLines(s.LastOutputSnapshot, current)
		s.AddResponseLines(newLines)
		s.LastOutputSnapshot = current

		if s.ShouldEmitIncrementalSummary() && r.sum.Available() {
			text := r.sum.SummarizeIncremental(ctx, s.BufferedResponse(), len(s.ResponseBuffer))
			if text != "" {
				s.MarkIncrementalSummarySent()
				return PollResult{Kind: PollIncremental, Text: text}, nil
			}
		}
		if s.ShouldEmitProgress() {
			return PollResult{Kind: PollProgress, Text: s.ProgressMessage()}, nil
		}
	}

	if s.IsIdle(r.idleThreshold) && filter.IsPromptReady(current) && len(s.ResponseBuffer) > 0 {
		// Two-phase completion: announce summarization first so the chat
		// shows activity while the model call runs.
		if r.sum.Available() && !s.IsSummarizing {
			s.IsSummarizing = true
			return PollResult{Kind: PollSummarizing}, nil
		}

		raw := s.BufferedResponse()
		query := s.PendingQuery
		replyTo := s.PendingReplyTo
		s.ResetResponseState()

		var text string
		if r.sum.Available() {
			text = r.sum.SummarizeFinal(ctx, query, raw)
		} else {
			text = filter.CleanResponse(raw)
		}
		r.record(ctx, key, s.TerminalName, EventResponse, fmt.Sprintf("%d lines", strings.Count(raw, "\n")+1))
		return PollResult{
			Kind:    PollComplete,
			Text:    text,
			Query:   query,
			ReplyTo: replyTo,
			Output:  filter.Classify(raw),
		}, nil
	}

	return PollResult{Kind: PollNone}, nil
}

// CaptureScreen returns the current screen of the connected terminal.
func (r *Registry) CaptureScreen(ctx context.Context, key Key) (string, error) {
	s, ok := r.Get(key)
	if !ok {
		return "", ErrNoSession
	}
	return r.mux.CaptureOutput(ctx, s.TerminalName, r.captureLines)
}

// TerminalInfo pairs a terminal name with its connection state.
type TerminalInfo struct {
	Name      string
	Connected bool
}

// ListTerminals returns all live terminals, managed ones first.
func (r *Registry) ListTerminals(ctx context.Context) ([]TerminalInfo, error) {
	names, err := r.mux.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	connected := r.ConnectedTerminals()
	sort.Slice(names, func(i, j int) bool {
		mi := strings.HasPrefix(names[i], tmux.SessionPrefix)
		mj := strings.HasPrefix(names[j], tmux.SessionPrefix)
		if mi != mj {
			return mi
		}
		return names[i] < names[j]
	})
	infos := make([]TerminalInfo, 0, len(names))
	for _, n := range names {
		infos = append(infos, TerminalInfo{Name: n, Connected: connected[n]})
	}
	return infos, nil
}

// SuggestTerminals fuzzy-matches name against live terminal aliases.
func (r *Registry) SuggestTerminals(ctx context.Context, name string, limit int) []string {
	names, err := r.mux.ListSessions(ctx)
	if err != nil {
		return nil
	}
	aliases := make([]string, len(names))
	for i, n := range names {
		aliases[i] = tmux.DisplayName(n)
	}
	matches := fuzzy.Find(tmux.DisplayName(name), aliases)
	var out []string
	for _, m := range matches {
		out = append(out, m.Str)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// CreatePairing issues a pairing code for a terminal.
func (r *Registry) CreatePairing(projectName, sessionName string) (string, error) {
	return r.pairings.Create(projectName, sessionName)
}

// RedeemPairing consumes a pairing code, authorizes the chat, and
// auto-connects when the code names a project.
func (r *Registry) RedeemPairing(ctx context.Context, key Key, code string) (Pairing, *Session, error) {
	p, err := r.pairings.Consume(code)
	if err != nil {
		return Pairing{}, nil, err
	}
	if err := r.auth.Authorize(key.ChatID); err != nil {
		r.log.Warn("failed to persist authorization", "chat", key.ChatID, "error", err)
	}
	r.log.Info("chat paired", "chat", key.ChatID, "project", p.ProjectName)

	if p.ProjectName == "" || r.HasSession(key) {
		return p, nil, nil
	}
	s, err := r.Connect(ctx, key, p.ProjectName)
	if err != nil {
		// Pairing succeeded; the connect is best effort.
		r.log.Warn("auto-connect after pairing failed", "project", p.ProjectName, "error", err)
		return p, nil, nil
	}
	return p, s, nil
}

// IsAuthorized reports whether a chat may use the bot.
func (r *Registry) IsAuthorized(chatID int64) bool {
	return r.auth.IsAuthorized(chatID)
}

// AuthorizedChats returns all chats eligible for broadcasts.
func (r *Registry) AuthorizedChats() []int64 {
	chats, err := r.auth.List()
	if err != nil {
		return nil
	}
	return chats
}

// StartupReport summarizes what happened during Startup.
type StartupReport struct {
	Kind     StartKind
	Restored int
	Total    int
}

// Startup classifies this launch and restores persisted sessions.
func (r *Registry) Startup(ctx context.Context) (StartupReport, error) {
	kind, _, err := r.version.CheckRebuild()
	if err != nil {
		r.log.Warn("version tracking failed", "error", err)
	}
	restored, total := r.LoadSessions(ctx)
	r.log.Info("startup complete", "kind", kind.String(), "restored", restored, "total", total)
	if kind == Rebuild {
		r.record(ctx, Key{}, "", EventRebuild, fmt.Sprintf("restored %d of %d", restored, total))
	}
	return StartupReport{Kind: kind, Restored: restored, Total: total}, nil
}

// LoadSessions restores persisted sessions that are under 24h old and
// whose terminals still exist. Returns (restored, total persisted).
func (r *Registry) LoadSessions(ctx context.Context) (int, int) {
	var persisted []PersistedSession
	if _, err := r.store.Load(&persisted); err != nil {
		r.log.Warn("failed to load persisted sessions", "error", err)
		return 0, 0
	}
	total := len(persisted)

	r.mu.Lock()
	defer r.mu.Unlock()
	restored := 0
	for _, p := range persisted {
		if p.Age() > restoreWindow {
			r.log.Debug("skipping expired session", "terminal", p.TerminalName, "age", p.Age().String())
			continue
		}
		if !r.mux.SessionExists(ctx, p.TerminalName) {
			r.log.Debug("skipping session, terminal gone", "terminal", p.TerminalName)
			continue
		}
		s := p.Restore()
		r.sessions[s.Key] = s
		restored++
		r.log.Info("restored session", "terminal", p.TerminalName, "chat", p.ChatID)
	}
	return restored, total
}

// saveSessions persists the current session set. Failures are logged, not
// propagated; the in-memory state stays authoritative.
func (r *Registry) saveSessions() {
	r.mu.RLock()
	persisted := make([]PersistedSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		persisted = append(persisted, s.ToPersisted())
	}
	r.mu.RUnlock()

	sort.Slice(persisted, func(i, j int) bool {
		if persisted[i].ChatID != persisted[j].ChatID {
			return persisted[i].ChatID < persisted[j].ChatID
		}
		return persisted[i].ThreadID < persisted[j].ThreadID
	})
	if err := r.store.Save(persisted); err != nil {
		r.log.Warn("failed to save sessions", "error", err)
	}
}

// SaveSessions persists the current session set, for shutdown hooks.
func (r *Registry) SaveSessions() {
	r.saveSessions()
}

func (r *Registry) record(ctx context.Context, key Key, terminal, kind, detail string) {
	if r.history == nil {
		return
	}
	if err := r.history.Record(ctx, key, terminal, kind, detail); err != nil {
		r.log.Warn("failed to record history event", "kind", kind, "error", err)
	}
}

// validateProjectPath ensures a project directory exists and is usable.
func validateProjectPath(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("project path must be absolute: %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("project path not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project path is not a directory: %s", path)
	}
	return nil
}
