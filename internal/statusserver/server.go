package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjoeboo/commander/internal/logging"
	"github.com/sjoeboo/commander/internal/session"
)

// Server is an embedded HTTP server exposing session state to local
// tooling. It binds to 127.0.0.1 only and is lifecycle-bound to the
// bridge process.
type Server struct {
	port     int
	registry *session.Registry
	server   *http.Server
	upgrader websocket.Upgrader
	log      *slog.Logger

	// wsPoll is how often /ws re-checks for state changes.
	wsPoll time.Duration
}

// SessionStatus is one row of the /sessions snapshot.
type SessionStatus struct {
	ChatID       int64     `json:"chat_id"`
	ThreadID     int64     `json:"thread_id,omitempty"`
	Project      string    `json:"project"`
	Terminal     string    `json:"terminal"`
	Tool         string    `json:"tool,omitempty"`
	Waiting      bool      `json:"waiting"`
	LastActivity time.Time `json:"last_activity"`
}

// New creates a Server. port=0 is valid for tests (use ServeHTTP directly).
func New(port int, registry *session.Registry) *Server {
	s := &Server{
		port:     port,
		registry: registry,
		upgrader: websocket.Upgrader{
			// Loopback-only listener; origin checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:    logging.ForComponent(logging.CompStatus),
		wsPoll: 500 * time.Millisecond,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/ws", s.handleWS)
	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	return s
}

// ServeHTTP implements http.Handler for testing, delegating to the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// Start binds to 127.0.0.1:{port} and serves until ctx is cancelled.
// Returns nil on clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("status server listen :%d: %w", s.port, err)
	}
	s.log.Info("status server started", "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.log.Warn("failed to encode sessions", "error", err)
	}
}

// handleWS streams the session snapshot to the client whenever it changes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close handshakes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.wsPoll)
	defer ticker.Stop()

	var last []SessionStatus
	for first := true; ; first = false {
		if !first {
			<-ticker.C
		}
		current := s.snapshot()
		if !first && reflect.DeepEqual(current, last) {
			continue
		}
		last = current
		if err := conn.WriteJSON(current); err != nil {
			return
		}
	}
}

// snapshot renders the connected sessions in a stable order.
func (s *Server) snapshot() []SessionStatus {
	keys := s.registry.Keys()
	out := make([]SessionStatus, 0, len(keys))
	for _, key := range keys {
		sess, ok := s.registry.Get(key)
		if !ok {
			continue
		}
		out = append(out, SessionStatus{
			ChatID:       key.ChatID,
			ThreadID:     key.ThreadID,
			Project:      sess.ProjectName,
			Terminal:     sess.TerminalName,
			Tool:         sess.ToolID,
			Waiting:      sess.IsWaiting,
			LastActivity: sess.LastActivity,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChatID != out[j].ChatID {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].ThreadID < out[j].ThreadID
	})
	return out
}
