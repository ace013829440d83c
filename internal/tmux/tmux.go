// Package tmux wraps the tmux binary for session and scrollback control.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sjoeboo/commander/internal/logging"
)

// SessionPrefix marks terminal sessions managed by Commander.
const SessionPrefix = "commander-"

// DefaultCaptureLines is the scrollback depth captured per poll.
const DefaultCaptureLines = 200

var (
	// ErrTmuxNotFound means the tmux binary is not on PATH.
	ErrTmuxNotFound = errors.New("tmux not found in PATH")

	// ErrSessionNotFound means the named session does not exist.
	ErrSessionNotFound = errors.New("tmux session not found")

	// ErrSessionExists means create was called with a name already in use.
	ErrSessionExists = errors.New("tmux session already exists")
)

// CommandError wraps a failed tmux invocation with its stderr.
type CommandError struct {
	Args   []string
	Stderr string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("tmux %s: %s", strings.Join(e.Args, " "), strings.TrimSpace(e.Stderr))
}

// Orchestrator runs tmux commands against the local server.
type Orchestrator struct {
	tmuxPath string
	log      interface {
		Debug(msg string, args ...any)
	}
}

// NewOrchestrator locates tmux and returns an orchestrator.
func NewOrchestrator() (*Orchestrator, error) {
	path, err := exec.LookPath("tmux")
	if err != nil {
		return nil, ErrTmuxNotFound
	}
	log := logging.ForComponent(logging.CompTmux)
	log.Debug("tmux_found", "path", path)
	return &Orchestrator{tmuxPath: path, log: log}, nil
}

// Available reports whether tmux is on PATH.
func Available() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

func (o *Orchestrator) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, o.tmuxPath, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), &CommandError{Args: args, Stderr: stderr.String()}
	}
	return stdout.String(), nil
}

// SessionExists reports whether a session with the given name exists.
func (o *Orchestrator) SessionExists(ctx context.Context, name string) bool {
	_, err := o.run(ctx, "has-session", "-t", "="+name)
	return err == nil
}

// CreateSessionInDir creates a detached session with the given working
// directory. Fails if the name is already in use.
func (o *Orchestrator) CreateSessionInDir(ctx context.Context, name, dir string) error {
	if o.SessionExists(ctx, name) {
		return fmt.Errorf("%w: %s", ErrSessionExists, name)
	}
	o.log.Debug("tmux_create_session", "name", name, "dir", dir)
	_, err := o.run(ctx, "new-session", "-d", "-s", name, "-c", dir)
	return err
}

// DestroySession kills the named session.
func (o *Orchestrator) DestroySession(ctx context.Context, name string) error {
	if !o.SessionExists(ctx, name) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	o.log.Debug("tmux_destroy_session", "name", name)
	_, err := o.run(ctx, "kill-session", "-t", "="+name)
	return err
}

// SendLine types text into the session followed by Enter. The text is sent
// literally so tmux does not expand key names inside it.
func (o *Orchestrator) SendLine(ctx context.Context, name, text string) error {
	if !o.SessionExists(ctx, name) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	if _, err := o.run(ctx, "send-keys", "-t", "="+name, "-l", text); err != nil {
		return err
	}
	_, err := o.run(ctx, "send-keys", "-t", "="+name, "Enter")
	return err
}

// CaptureOutput returns the last n lines of the session's pane, including
// scrollback. n <= 0 uses DefaultCaptureLines.
func (o *Orchestrator) CaptureOutput(ctx context.Context, name string, n int) (string, error) {
	if n <= 0 {
		n = DefaultCaptureLines
	}
	out, err := o.run(ctx, "capture-pane", "-p", "-t", "="+name, "-S", "-"+strconv.Itoa(n))
	if err != nil {
		if !o.SessionExists(ctx, name) {
			return "", fmt.Errorf("%w: %s", ErrSessionNotFound, name)
		}
		return "", err
	}
	return out, nil
}

// ListSessions returns the names of all sessions. An absent tmux server is
// an empty list, not an error.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]string, error) {
	out, err := o.run(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && isNoServer(cmdErr.Stderr) {
			return nil, nil
		}
		return nil, err
	}
	return parseSessionNames(out), nil
}

func isNoServer(stderr string) bool {
	return strings.Contains(stderr, "no server running") ||
		strings.Contains(stderr, "no sessions") ||
		strings.Contains(stderr, "error connecting to")
}

func parseSessionNames(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}

// ManagedName returns the conventional session name for an alias.
func ManagedName(alias string) string {
	if strings.HasPrefix(alias, SessionPrefix) {
		return alias
	}
	return SessionPrefix + alias
}

// DisplayName strips the managed prefix for user-facing output.
func DisplayName(sessionName string) string {
	return strings.TrimPrefix(sessionName, SessionPrefix)
}
