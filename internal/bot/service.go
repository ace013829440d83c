package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sjoeboo/commander/internal/config"
	"github.com/sjoeboo/commander/internal/logging"
	"github.com/sjoeboo/commander/internal/session"
	"github.com/sjoeboo/commander/internal/summarize"
)

// updateTimeoutSec is the long-poll timeout for getUpdates. Short enough
// that shutdown is not held up for long.
const updateTimeoutSec = 10

// topicIconColor is the default forum topic icon color (0x6FB9F0, blue).
const topicIconColor = 7322096

// notifyChannel is our consumer id in the shared notification queue.
const notifyChannel = "telegram"

// Runner is an auxiliary component with a context-bound lifetime, e.g. the
// status server.
type Runner interface {
	Start(ctx context.Context) error
}

// Service is the Telegram bridge: it owns the inbound dispatcher, the
// output poller, and the notification broadcaster.
type Service struct {
	tg       transport
	registry *session.Registry
	sum      *summarize.Summarizer
	settings config.Settings

	// Status is optional; when set it runs inside the service errgroup.
	Status Runner

	log *slog.Logger
}

// New authenticates against Telegram and builds the service.
func New(token string, registry *session.Registry, sum *summarize.Summarizer, settings config.Settings) (*Service, error) {
	tg, err := newTelegramAPI(token)
	if err != nil {
		return nil, err
	}
	return newService(tg, registry, sum, settings), nil
}

func newService(tg transport, registry *session.Registry, sum *summarize.Summarizer, settings config.Settings) *Service {
	return &Service{
		tg:       tg,
		registry: registry,
		sum:      sum,
		settings: settings,
		log:      logging.ForComponent(logging.CompBot),
	}
}

// BotName returns the authenticated bot username.
func (s *Service) BotName() string {
	return s.tg.BotName()
}

// Run restores persisted state and drives the service loops until ctx is
// cancelled. Sessions are saved on the way out.
func (s *Service) Run(ctx context.Context) error {
	report, err := s.registry.Startup(ctx)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	s.log.Info("bridge starting",
		"bot", s.tg.BotName(),
		"start_kind", report.Kind.String(),
		"restored", report.Restored,
		"total", report.Total)

	if report.Kind == session.Rebuild && report.Restored > 0 {
		s.broadcast(ctx, rebuildNotice(report))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.updateLoop(ctx) })
	g.Go(func() error { return s.pollLoop(ctx) })
	g.Go(func() error { return s.notifyLoop(ctx) })
	if s.Status != nil {
		g.Go(func() error { return s.Status.Start(ctx) })
	}

	err = g.Wait()
	s.registry.SaveSessions()
	if err != nil && ctx.Err() != nil {
		// Cancellation is the normal way out.
		return nil
	}
	return err
}

// rebuildNotice is the one-shot broadcast after a binary change.
func rebuildNotice(report session.StartupReport) string {
	text := fmt.Sprintf("🔄 Bot rebuilt and restarted.\n✅ Restored %d of %d session(s).",
		report.Restored, report.Total)
	if failed := report.Total - report.Restored; failed > 0 {
		text += fmt.Sprintf("\n⚠️ %d session(s) could not be restored (expired or tmux session not found).", failed)
	}
	return text
}

// broadcast sends text to every authorized chat.
func (s *Service) broadcast(ctx context.Context, text string) {
	for _, chatID := range s.registry.AuthorizedChats() {
		if _, err := s.tg.Send(ctx, Outgoing{ChatID: chatID, Text: text}); err != nil {
			s.log.Warn("broadcast failed", "chat", chatID, "error", err)
		}
	}
}

// updateLoop long-polls Telegram and dispatches each update.
func (s *Service) updateLoop(ctx context.Context) error {
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		updates, err := s.tg.Updates(ctx, offset, updateTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("get updates failed", "error", err)
			continue
		}
		for _, u := range updates {
			if u.ID >= offset {
				offset = u.ID + 1
			}
			s.dispatch(ctx, u)
		}
	}
}

// dispatch routes one update to its handler. Handler errors are logged;
// one bad update must not take the loop down.
func (s *Service) dispatch(ctx context.Context, u Update) {
	switch {
	case u.Callback != nil:
		if err := s.handleCallback(ctx, u.Callback); err != nil {
			s.log.Warn("callback handler failed", "error", err)
		}
	case u.Message != nil && u.Message.Text != "":
		msg := u.Message
		var err error
		if strings.HasPrefix(msg.Text, "/") {
			err = s.handleCommand(ctx, msg)
		} else {
			err = s.handleText(ctx, msg)
		}
		if err != nil {
			s.log.Warn("message handler failed", "chat", msg.Chat.ID, "error", err)
		}
	}
}

// keyFor resolves the session key for an inbound message.
func keyFor(msg *Incoming) session.Key {
	if msg.ThreadID != 0 {
		return session.NewTopicKey(msg.Chat.ID, msg.ThreadID)
	}
	return session.NewKey(msg.Chat.ID)
}

// reply sends text to the chat/topic an inbound message came from.
func (s *Service) reply(ctx context.Context, msg *Incoming, text string, html bool) error {
	_, err := s.tg.Send(ctx, Outgoing{
		ChatID:   msg.Chat.ID,
		ThreadID: msg.ThreadID,
		Text:     text,
		HTML:     html,
	})
	return err
}
