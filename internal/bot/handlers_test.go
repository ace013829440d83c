package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjoeboo/commander/internal/adapter"
	"github.com/sjoeboo/commander/internal/config"
	"github.com/sjoeboo/commander/internal/session"
	"github.com/sjoeboo/commander/internal/summarize"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in       string
		botName  string
		wantName string
		wantArgs string
	}{
		{"/start", "", "start", ""},
		{"/connect webapp", "", "connect", "webapp"},
		{"/connect@commander_bot webapp", "commander_bot", "connect", "webapp"},
		{"/CONNECT webapp", "", "connect", "webapp"},
		{"/send   cd ..", "", "send", "cd .."},
		{"/pair ABC123", "", "pair", "ABC123"},
	}
	for _, tt := range tests {
		name, args := splitCommand(tt.in, tt.botName)
		assert.Equal(t, tt.wantName, name, tt.in)
		assert.Equal(t, tt.wantArgs, args, tt.in)
	}
}

func TestParseConnectArgs(t *testing.T) {
	got, err := parseConnectArgs("webapp")
	require.NoError(t, err)
	assert.Equal(t, "webapp", got.Existing)
	assert.False(t, got.New)

	got, err = parseConnectArgs("/home/dev/app -a cc -n myapp")
	require.NoError(t, err)
	assert.True(t, got.New)
	assert.Equal(t, "/home/dev/app", got.Path)
	assert.Equal(t, "cc", got.Adapter)
	assert.Equal(t, "myapp", got.Name)

	// Flag order does not matter.
	got, err = parseConnectArgs("/home/dev/app -n myapp -a mpm")
	require.NoError(t, err)
	assert.Equal(t, "mpm", got.Adapter)
	assert.Equal(t, "myapp", got.Name)

	_, err = parseConnectArgs("")
	assert.Error(t, err)

	_, err = parseConnectArgs("one two")
	assert.Error(t, err)

	_, err = parseConnectArgs("/path -a")
	assert.Error(t, err)

	_, err = parseConnectArgs("/path -a cc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-n")

	_, err = parseConnectArgs("/path -n app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-a")

	_, err = parseConnectArgs("/path -a cc -n app -x oops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestHTMLEscape(t *testing.T) {
	assert.Equal(t, "a &amp;&lt;b&gt; c", htmlEscape("a &<b> c"))
	assert.Equal(t, "plain", htmlEscape("plain"))
}

func TestExtractGitBranch(t *testing.T) {
	tests := []struct {
		screen string
		want   string
	}{
		{"user@host ~/project (main) $ ", "main"},
		{"user@host ~/project [develop] $ ", "develop"},
		{"~/project (feature/new-feature) $ ", "feature/new-feature"},
		{"~/project ◉ staging $ ", "staging"},
		{"user@host ~/project $ ", ""},
		{"user@host ~/project (12345) $ ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractGitBranch(tt.screen), tt.screen)
	}
}

func TestExtractConversationContext(t *testing.T) {
	got := extractConversationContext("Some output\n✅ Fixed HTML parsing bug\nPrompt> ")
	assert.Contains(t, got, "Fixed HTML parsing bug")

	got = extractConversationContext("Processing...\nWorking on Telegram bot improvements\nReady $ ")
	assert.Contains(t, got, "Working on Telegram bot improvements")

	longLine := "Fixed " + strings.Repeat("x", 200)
	got = extractConversationContext("Some output\n" + longLine + "\nPrompt> ")
	assert.LessOrEqual(t, len(got), 100)
	assert.True(t, strings.HasSuffix(got, "..."))

	assert.Empty(t, extractConversationContext("$ ls -la\n> command\n❯ prompt\n"))
	assert.Empty(t, extractConversationContext(""))
}

func TestRebuildNotice(t *testing.T) {
	text := rebuildNotice(session.StartupReport{Kind: session.Rebuild, Restored: 2, Total: 3})
	assert.Contains(t, text, "🔄 Bot rebuilt and restarted.")
	assert.Contains(t, text, "✅ Restored 2 of 3 session(s).")
	assert.Contains(t, text, "⚠️ 1 session(s) could not be restored")

	text = rebuildNotice(session.StartupReport{Kind: session.Rebuild, Restored: 2, Total: 2})
	assert.NotContains(t, text, "⚠️")
}

func TestStopReportText(t *testing.T) {
	text := stopReportText(session.StopReport{
		Terminal:      "commander-webapp",
		Committed:     true,
		CommitMessage: "WIP: Auto-commit from Commander session 'webapp'",
		Merged:        true,
		Branch:        "session/webapp",
	})
	assert.Contains(t, text, "Session <code>commander-webapp</code> stopped.")
	assert.Contains(t, text, "Git changes committed:")
	assert.Contains(t, text, "WIP: Auto-commit from Commander session 'webapp'")
	assert.Contains(t, text, "session/webapp")
	assert.Contains(t, text, "merged into the default branch")

	text = stopReportText(session.StopReport{Terminal: "commander-clean"})
	assert.Contains(t, text, "No uncommitted changes found.")
	assert.NotContains(t, text, "Branch")
}

func TestSessionsListing(t *testing.T) {
	infos := []session.TerminalInfo{
		{Name: "commander-webapp", Connected: true},
		{Name: "commander-api"},
		{Name: "scratch"},
	}
	text, keyboard := sessionsListing(infos, "commander-webapp")

	assert.Contains(t, text, "✅ <b>webapp</b> (connected)")
	assert.Contains(t, text, "🤖 <b>api</b>")
	assert.Contains(t, text, "📟 <b>scratch</b>")

	require.Len(t, keyboard, 3)
	assert.Equal(t, "Open webapp", keyboard[0][0].Label)
	assert.Equal(t, "connect:commander-webapp", keyboard[0][0].Data)
	assert.Equal(t, "connect:scratch", keyboard[2][0].Data)
}

// fakeTransport records outbound traffic.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []Outgoing
	nextID int
}

func (f *fakeTransport) Updates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	return nil, nil
}

func (f *fakeTransport) Send(ctx context.Context, out Outgoing) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, out)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTransport) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	return nil
}

func (f *fakeTransport) Delete(ctx context.Context, chatID int64, messageID int) error { return nil }

func (f *fakeTransport) Typing(ctx context.Context, chatID, threadID int64) error { return nil }

func (f *fakeTransport) AnswerCallback(ctx context.Context, id string) error { return nil }

func (f *fakeTransport) CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error) {
	return 77, nil
}

func (f *fakeTransport) ChatInfo(ctx context.Context, chatID int64) (ChatRef, error) {
	return ChatRef{ID: chatID, Type: "supergroup", IsForum: true}, nil
}

func (f *fakeTransport) BotName() string { return "commander_bot" }

func (f *fakeTransport) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1].Text
}

// fakeMux is an in-memory terminal multiplexer.
type fakeMux struct {
	mu         sync.Mutex
	sessions   map[string]bool
	output     map[string]string
	captureErr map[string]error
}

func newFakeMux() *fakeMux {
	return &fakeMux{
		sessions:   make(map[string]bool),
		output:     make(map[string]string),
		captureErr: make(map[string]error),
	}
}

func (m *fakeMux) SessionExists(ctx context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[name]
}

func (m *fakeMux) CreateSessionInDir(ctx context.Context, name, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[name] = true
	return nil
}

func (m *fakeMux) DestroySession(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, name)
	return nil
}

func (m *fakeMux) SendLine(ctx context.Context, name, text string) error { return nil }

func (m *fakeMux) CaptureOutput(ctx context.Context, name string, n int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.captureErr[name]; err != nil {
		return "", err
	}
	return m.output[name], nil
}

func (m *fakeMux) setCaptureErr(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureErr[name] = err
}

func (m *fakeMux) ListSessions(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for n := range m.sessions {
		names = append(names, n)
	}
	return names, nil
}

func newTestService(t *testing.T) (*Service, *fakeTransport, *fakeMux) {
	t.Helper()
	t.Setenv("OPENROUTER_API_KEY", "")

	dir := t.TempDir()
	mux := newFakeMux()
	sum := summarize.New("")
	reg := session.NewRegistry(session.Config{
		Mux:               mux,
		Summarizer:        sum,
		Adapters:          adapter.NewRegistry(),
		SessionsPath:      filepath.Join(dir, "telegram_sessions.json"),
		PairingsPath:      filepath.Join(dir, "pairings.json"),
		AuthorizedPath:    filepath.Join(dir, "authorized_chats.json"),
		GroupConfigsPath:  filepath.Join(dir, "group_configs.json"),
		ProjectsPath:      filepath.Join(dir, "projects.json"),
		NotificationsPath: filepath.Join(dir, "notifications.json"),
		VersionPath:       filepath.Join(dir, "bot_version.json"),
	})

	tg := &fakeTransport{}
	return newService(tg, reg, sum, config.DefaultSettings()), tg, mux
}

func inbound(chatID int64, text string) *Incoming {
	return &Incoming{MessageID: 1, Chat: ChatRef{ID: chatID, Type: "private"}, Text: text}
}

// authorize pairs a chat so it can use the gated commands.
func authorize(t *testing.T, s *Service, chatID int64) {
	t.Helper()
	code, err := s.registry.CreatePairing("", "")
	require.NoError(t, err)
	_, _, err = s.registry.RedeemPairing(context.Background(), session.NewKey(chatID), code)
	require.NoError(t, err)
}

func TestHandleCommandUnknown(t *testing.T) {
	s, tg, _ := newTestService(t)
	authorize(t, s, 1)

	require.NoError(t, s.handleCommand(context.Background(), inbound(1, "/bogus")))
	assert.Contains(t, tg.lastText(t), "Unknown command: /bogus")
	assert.Contains(t, tg.lastText(t), "/help")
}

func TestHandlePairValidation(t *testing.T) {
	s, tg, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.handleCommand(ctx, inbound(1, "/pair")))
	assert.Contains(t, tg.lastText(t), "Please provide a pairing code.")

	require.NoError(t, s.handleCommand(ctx, inbound(1, "/pair ABC")))
	assert.Contains(t, tg.lastText(t), "Pairing codes are 6 characters.")

	require.NoError(t, s.handleCommand(ctx, inbound(1, "/pair ZZZZZZ")))
	assert.Contains(t, tg.lastText(t), "Invalid or expired pairing code.")
}

func TestHandlePairAuthorizes(t *testing.T) {
	s, tg, _ := newTestService(t)
	ctx := context.Background()

	code, err := s.registry.CreatePairing("", "")
	require.NoError(t, err)

	require.NoError(t, s.handleCommand(ctx, inbound(1, "/pair "+code)))
	assert.Contains(t, tg.lastText(t), "Paired successfully!")
	assert.True(t, s.registry.IsAuthorized(1))
	assert.False(t, s.registry.IsAuthorized(2))
}

func TestUnauthorizedCommandRejected(t *testing.T) {
	s, tg, mux := newTestService(t)
	ctx := context.Background()
	mux.sessions["commander-webapp"] = true

	// A fresh install has no paired chats, so nobody is authorized.
	assert.False(t, s.registry.IsAuthorized(2))
	require.NoError(t, s.handleCommand(ctx, inbound(2, "/connect webapp")))
	assert.Contains(t, tg.lastText(t), "Not authorized.")

	// Free text (including alias routing) is gated the same way.
	require.NoError(t, s.handleText(ctx, inbound(2, "@webapp run the tests")))
	assert.Contains(t, tg.lastText(t), "Not authorized.")
	assert.False(t, s.registry.HasSession(session.NewKey(2)))

	// Pairing another chat does not open chat 2.
	authorize(t, s, 1)
	require.NoError(t, s.handleCommand(ctx, inbound(2, "/connect webapp")))
	assert.Contains(t, tg.lastText(t), "Not authorized.")
}

func TestConnectExistingTerminal(t *testing.T) {
	s, tg, mux := newTestService(t)
	ctx := context.Background()
	authorize(t, s, 1)

	mux.sessions["commander-webapp"] = true
	mux.output["commander-webapp"] = "✅ Done\n❯"

	require.NoError(t, s.handleCommand(ctx, inbound(1, "/connect webapp")))
	last := tg.lastText(t)
	assert.Contains(t, last, "✅ Connected to <b>webapp</b>")
	assert.Contains(t, last, "📊 Status:")
	assert.True(t, s.registry.HasSession(session.NewKey(1)))
}

func TestConnectUsageAndAlreadyConnected(t *testing.T) {
	s, tg, mux := newTestService(t)
	ctx := context.Background()
	authorize(t, s, 1)

	require.NoError(t, s.handleCommand(ctx, inbound(1, "/connect")))
	assert.Contains(t, tg.lastText(t), "Please specify a target.")

	mux.sessions["commander-webapp"] = true
	require.NoError(t, s.handleCommand(ctx, inbound(1, "/connect webapp")))
	require.NoError(t, s.handleCommand(ctx, inbound(1, "/connect webapp")))
	assert.Contains(t, tg.lastText(t), "Already connected to <b>webapp</b>")
}

func TestDisconnect(t *testing.T) {
	s, tg, mux := newTestService(t)
	ctx := context.Background()
	authorize(t, s, 1)

	require.NoError(t, s.handleCommand(ctx, inbound(1, "/disconnect")))
	assert.Contains(t, tg.lastText(t), "Not connected to any project.")

	mux.sessions["commander-webapp"] = true
	require.NoError(t, s.handleCommand(ctx, inbound(1, "/connect webapp")))
	require.NoError(t, s.handleCommand(ctx, inbound(1, "/disconnect")))
	assert.Contains(t, tg.lastText(t), "Disconnected from <b>webapp</b>")
}

func TestSessionsEmpty(t *testing.T) {
	s, tg, _ := newTestService(t)
	authorize(t, s, 1)
	require.NoError(t, s.handleCommand(context.Background(), inbound(1, "/sessions")))
	assert.Contains(t, tg.lastText(t), "No tmux sessions found.")
}

func TestSessionsKeyboard(t *testing.T) {
	s, tg, mux := newTestService(t)
	authorize(t, s, 1)
	mux.sessions["commander-webapp"] = true

	require.NoError(t, s.handleCommand(context.Background(), inbound(1, "/sessions")))

	tg.mu.Lock()
	out := tg.sent[len(tg.sent)-1]
	tg.mu.Unlock()
	assert.Contains(t, out.Text, "<b>Sessions:</b>")
	require.Len(t, out.Keyboard, 1)
	assert.Equal(t, "connect:commander-webapp", out.Keyboard[0][0].Data)
}

func TestCallbackConnect(t *testing.T) {
	s, tg, mux := newTestService(t)
	ctx := context.Background()
	authorize(t, s, 1)
	mux.sessions["commander-webapp"] = true

	q := &CallbackQuery{
		ID:      "cb1",
		Data:    "connect:commander-webapp",
		Message: inbound(1, ""),
	}
	require.NoError(t, s.handleCallback(ctx, q))
	assert.Contains(t, tg.lastText(t), "✅ Connected to <b>webapp</b>")
	assert.True(t, s.registry.HasSession(session.NewKey(1)))
}

func TestFreeTextNotConnected(t *testing.T) {
	s, tg, _ := newTestService(t)
	authorize(t, s, 1)
	require.NoError(t, s.handleText(context.Background(), inbound(1, "hello")))
	assert.Contains(t, tg.lastText(t), "Not connected to any project.")
}

func TestFreeTextForwardsToSession(t *testing.T) {
	s, tg, mux := newTestService(t)
	ctx := context.Background()
	authorize(t, s, 1)
	mux.sessions["commander-webapp"] = true

	require.NoError(t, s.handleCommand(ctx, inbound(1, "/connect webapp")))
	before := len(tg.sent)

	require.NoError(t, s.handleText(ctx, inbound(1, "run the tests")))
	// Forwarding produces no chat reply; the poller owns the response.
	assert.Len(t, tg.sent, before)

	sess, ok := s.registry.Get(session.NewKey(1))
	require.True(t, ok)
	assert.True(t, sess.IsWaiting)
	assert.Equal(t, "run the tests", sess.PendingQuery)

	// A second message while waiting is rejected as busy.
	require.NoError(t, s.handleText(ctx, inbound(1, "another one")))
	assert.Contains(t, tg.lastText(t), "Still processing the previous message.")
}

func TestAliasRouting(t *testing.T) {
	s, _, mux := newTestService(t)
	ctx := context.Background()
	authorize(t, s, 1)
	mux.sessions["commander-webapp"] = true

	require.NoError(t, s.handleText(ctx, inbound(1, "@webapp run the tests")))

	sess, ok := s.registry.Get(session.NewKey(1))
	require.True(t, ok)
	assert.Equal(t, "webapp", sess.ProjectName)
	assert.Equal(t, "run the tests", sess.PendingQuery)
}

func TestTopicFlow(t *testing.T) {
	s, tg, mux := newTestService(t)
	ctx := context.Background()
	authorize(t, s, -100)
	mux.sessions["commander-webapp"] = true

	require.NoError(t, s.handleCommand(ctx, inbound(-100, "/groupmode")))
	assert.Contains(t, tg.lastText(t), "Group mode enabled!")

	require.NoError(t, s.handleCommand(ctx, inbound(-100, "/topic webapp")))
	assert.Contains(t, tg.lastText(t), "Topic created and connected to <b>webapp</b>")
	assert.True(t, s.registry.HasSession(session.NewTopicKey(-100, 77)))

	require.NoError(t, s.handleCommand(ctx, inbound(-100, "/topics")))
	assert.Contains(t, tg.lastText(t), "commander-webapp")

	// Messages in the topic route to its session.
	topicMsg := &Incoming{MessageID: 9, Chat: ChatRef{ID: -100, Type: "supergroup"}, ThreadID: 77, Text: "hi"}
	require.NoError(t, s.handleText(ctx, topicMsg))
	sess, ok := s.registry.Get(session.NewTopicKey(-100, 77))
	require.True(t, ok)
	assert.Equal(t, "hi", sess.PendingQuery)
}

func TestStopNotConnected(t *testing.T) {
	s, tg, _ := newTestService(t)
	authorize(t, s, 1)
	require.NoError(t, s.handleCommand(context.Background(), inbound(1, "/stop")))
	assert.Contains(t, tg.lastText(t), "Not connected to any session.")
}

func TestStopUnknownTerminal(t *testing.T) {
	s, tg, _ := newTestService(t)
	authorize(t, s, 1)
	require.NoError(t, s.handleCommand(context.Background(), inbound(1, "/stop ghost")))
	assert.Contains(t, tg.lastText(t), "Session 'commander-ghost' not found.")
}

func TestStatusNotConnected(t *testing.T) {
	s, tg, _ := newTestService(t)
	authorize(t, s, 1)
	require.NoError(t, s.handleCommand(context.Background(), inbound(1, "/status")))
	assert.Contains(t, tg.lastText(t), "❌ Connection: Not connected")
}

func TestStatusConnected(t *testing.T) {
	s, tg, mux := newTestService(t)
	ctx := context.Background()
	authorize(t, s, 1)
	mux.sessions["commander-webapp"] = true
	mux.output["commander-webapp"] = "✅ All tests passing\n❯"

	require.NoError(t, s.handleCommand(ctx, inbound(1, "/connect webapp")))
	require.NoError(t, s.handleCommand(ctx, inbound(1, "/status")))

	last := tg.lastText(t)
	assert.Contains(t, last, "✅ Connection: Connected")
	assert.Contains(t, last, "📁 Project: webapp")
	assert.Contains(t, last, "💤 Activity: Idle (ready for commands)")
	// No LLM configured, so the raw screen is shown.
	assert.Contains(t, last, "📺 Screen:")
}

func TestSendCommandUsage(t *testing.T) {
	s, tg, _ := newTestService(t)
	authorize(t, s, 1)
	require.NoError(t, s.handleCommand(context.Background(), inbound(1, "/send")))
	assert.Contains(t, tg.lastText(t), "Please provide a message to send.")
}

func TestDispatchIgnoresEmpty(t *testing.T) {
	s, tg, _ := newTestService(t)
	s.dispatch(context.Background(), Update{})
	s.dispatch(context.Background(), Update{Message: &Incoming{Chat: ChatRef{ID: 1}}})
	assert.Empty(t, tg.sent)
}
