package statusserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjoeboo/commander/internal/adapter"
	"github.com/sjoeboo/commander/internal/session"
	"github.com/sjoeboo/commander/internal/statusserver"
)

type fakeMux struct {
	sessions map[string]bool
}

func (m *fakeMux) SessionExists(ctx context.Context, name string) bool { return m.sessions[name] }

func (m *fakeMux) CreateSessionInDir(ctx context.Context, name, dir string) error {
	m.sessions[name] = true
	return nil
}

func (m *fakeMux) DestroySession(ctx context.Context, name string) error {
	delete(m.sessions, name)
	return nil
}

func (m *fakeMux) SendLine(ctx context.Context, name, text string) error { return nil }

func (m *fakeMux) CaptureOutput(ctx context.Context, name string, n int) (string, error) {
	return "", nil
}

func (m *fakeMux) ListSessions(ctx context.Context) ([]string, error) {
	var names []string
	for n := range m.sessions {
		names = append(names, n)
	}
	return names, nil
}

type stubSummarizer struct{}

func (stubSummarizer) Available() bool                                          { return false }
func (stubSummarizer) SummarizeFinal(context.Context, string, string) string    { return "" }
func (stubSummarizer) SummarizeIncremental(context.Context, string, int) string { return "" }

func newTestRegistry(t *testing.T) (*session.Registry, *fakeMux) {
	t.Helper()
	dir := t.TempDir()
	mux := &fakeMux{sessions: make(map[string]bool)}
	reg := session.NewRegistry(session.Config{
		Mux:               mux,
		Summarizer:        stubSummarizer{},
		Adapters:          adapter.NewRegistry(),
		SessionsPath:      filepath.Join(dir, "telegram_sessions.json"),
		PairingsPath:      filepath.Join(dir, "pairings.json"),
		AuthorizedPath:    filepath.Join(dir, "authorized_chats.json"),
		GroupConfigsPath:  filepath.Join(dir, "group_configs.json"),
		ProjectsPath:      filepath.Join(dir, "projects.json"),
		NotificationsPath: filepath.Join(dir, "notifications.json"),
		VersionPath:       filepath.Join(dir, "bot_version.json"),
	})
	return reg, mux
}

func TestHealthz(t *testing.T) {
	reg, _ := newTestRegistry(t)
	srv := statusserver.New(0, reg)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHealthzWrongMethod(t *testing.T) {
	reg, _ := newTestRegistry(t)
	srv := statusserver.New(0, reg)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestSessionsSnapshot(t *testing.T) {
	reg, mux := newTestRegistry(t)
	srv := statusserver.New(0, reg)
	ctx := context.Background()

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var empty []statusserver.SessionStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &empty))
	assert.Empty(t, empty)

	mux.sessions["commander-webapp"] = true
	_, err := reg.Connect(ctx, session.NewKey(42), "webapp")
	require.NoError(t, err)

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	var got []statusserver.SessionStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].ChatID)
	assert.Equal(t, "webapp", got[0].Project)
	assert.Equal(t, "commander-webapp", got[0].Terminal)
	assert.False(t, got[0].Waiting)
}

func TestWebsocketStream(t *testing.T) {
	reg, mux := newTestRegistry(t)
	srv := statusserver.New(0, reg)
	ctx := context.Background()

	mux.sessions["commander-webapp"] = true
	_, err := reg.Connect(ctx, session.NewKey(7), "webapp")
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	// The first frame is the current snapshot.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got []statusserver.SessionStatus
	require.NoError(t, conn.ReadJSON(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "commander-webapp", got[0].Terminal)
}

func TestStartShutsDownOnCancel(t *testing.T) {
	reg, _ := newTestRegistry(t)
	srv := statusserver.New(0, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
