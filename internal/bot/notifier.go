package bot

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sjoeboo/commander/internal/tmux"
)

// notifyLoop broadcasts unread cross-channel notifications to authorized
// chats. A filesystem watch on the queue file wakes the loop early so CLI
// pushes land without waiting for the next tick.
func (s *Service) notifyLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.settings.NotifyInterval())
	defer ticker.Stop()

	queuePath := s.registry.Notifications().Path()
	kick := s.watchQueueFile(ctx, queuePath)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-kick:
		}
		s.broadcastNotifications(ctx)
	}
}

// watchQueueFile watches the queue file's directory; the store replaces
// the file by rename, so watching the file itself would go stale.
func (s *Service) watchQueueFile(ctx context.Context, path string) <-chan struct{} {
	kick := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn("notification watcher unavailable, polling only", "error", err)
		return kick
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		s.log.Warn("notification watcher unavailable, polling only", "error", err)
		watcher.Close()
		return kick
	}

	base := filepath.Base(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case kick <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return kick
}

func (s *Service) broadcastNotifications(ctx context.Context) {
	queue := s.registry.Notifications()
	unread, err := queue.Unread(notifyChannel)
	if err != nil {
		s.log.Warn("failed to read notifications", "error", err)
		return
	}
	if len(unread) == 0 {
		return
	}

	ids := make([]string, 0, len(unread))
	for _, n := range unread {
		ids = append(ids, n.ID)
	}

	chats := s.registry.AuthorizedChats()
	if len(chats) == 0 {
		// Nobody to tell; mark read anyway so the queue never backs up.
		if err := queue.MarkRead(notifyChannel, ids); err != nil {
			s.log.Warn("failed to mark notifications read", "error", err)
		}
		return
	}

	connected := s.connectedTerminalsByChat()
	for _, n := range unread {
		out := Outgoing{Text: n.Message}
		if n.Session != "" {
			out.Keyboard = [][]Button{{{
				Label: "Open " + tmux.DisplayName(n.Session),
				Data:  "connect:" + n.Session,
			}}}
		}
		for _, chatID := range chats {
			// A chat already talking to this session does not need the nudge.
			if n.Session != "" && connected[chatID][n.Session] {
				s.log.Debug("skipping notification, chat already connected",
					"chat", chatID, "session", n.Session)
				continue
			}
			out.ChatID = chatID
			if _, err := s.tg.Send(ctx, out); err != nil {
				s.log.Warn("failed to send notification", "chat", chatID, "error", err)
			} else {
				s.log.Info("notification sent", "chat", chatID, "notification", n.ID)
			}
		}
	}

	if err := queue.MarkRead(notifyChannel, ids); err != nil {
		s.log.Warn("failed to mark notifications read", "error", err)
	}
}

// connectedTerminalsByChat maps each chat to the terminals any of its
// sessions (including topics) is attached to.
func (s *Service) connectedTerminalsByChat() map[int64]map[string]bool {
	out := make(map[int64]map[string]bool)
	for _, key := range s.registry.Keys() {
		sess, ok := s.registry.Get(key)
		if !ok {
			continue
		}
		if out[key.ChatID] == nil {
			out[key.ChatID] = make(map[string]bool)
		}
		out[key.ChatID][sess.TerminalName] = true
	}
	return out
}
