package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sjoeboo/commander/internal/filter"
	"github.com/sjoeboo/commander/internal/session"
	"github.com/sjoeboo/commander/internal/tmux"
)

// typingRefresh is how often the typing indicator is re-sent per waiting
// session; Telegram shows it for about five seconds.
const typingRefresh = 4 * time.Second

// summarizingText replaces the progress counter while the final summary
// call runs.
const summarizingText = "🤖 Summarizing output..."

// maxMessageLen keeps final responses under Telegram's 4096-char limit
// with headroom for the truncation marker.
const maxMessageLen = 4000

// pollLoop drives response collection for every waiting session and turns
// poll results into chat traffic.
func (s *Service) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.settings.PollInterval())
	defer ticker.Stop()

	// Progress message ids and typing timestamps live here, not on the
	// session: they are chat-transport state.
	progress := make(map[session.Key]int)
	lastTyping := make(map[session.Key]time.Time)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, key := range s.registry.WaitingKeys() {
			s.pollOnce(ctx, key, progress, lastTyping)
		}
	}
}

// pollOnce advances one waiting session by a tick and delivers whatever
// the poll produced.
func (s *Service) pollOnce(ctx context.Context, key session.Key, progress map[session.Key]int, lastTyping map[session.Key]time.Time) {
	if time.Since(lastTyping[key]) >= typingRefresh {
		if err := s.tg.Typing(ctx, key.ChatID, key.ThreadID); err == nil {
			lastTyping[key] = time.Now()
		}
	}

	result, err := s.registry.PollOutput(ctx, key)
	if err != nil {
		if errors.Is(err, tmux.ErrSessionNotFound) {
			// The terminal died under us; the collection can never
			// complete.
			s.dropProgress(ctx, key, progress)
			delete(lastTyping, key)
			s.registry.Disconnect(ctx, key)
			_, _ = s.tg.Send(ctx, Outgoing{
				ChatID:   key.ChatID,
				ThreadID: key.ThreadID,
				Text:     "⚠️ Session ended: the terminal is gone. Use /connect to start again.",
			})
		} else {
			// Transient capture failure: keep the progress message and
			// retry on the next tick.
			s.log.Warn("error polling output", "key", key.String(), "error", err)
		}
		return
	}

	switch result.Kind {
	case session.PollProgress:
		s.showProgress(ctx, key, progress, result.Text)
	case session.PollIncremental:
		// Incremental summaries are standalone messages; the
		// progress counter keeps its own message.
		if _, err := s.tg.Send(ctx, Outgoing{
			ChatID:   key.ChatID,
			ThreadID: key.ThreadID,
			Text:     result.Text,
		}); err != nil {
			s.log.Warn("failed to send incremental summary", "key", key.String(), "error", err)
		} else {
			s.log.Info("incremental summary sent", "key", key.String())
		}
	case session.PollSummarizing:
		s.showProgress(ctx, key, progress, summarizingText)
	case session.PollComplete:
		s.dropProgress(ctx, key, progress)
		delete(lastTyping, key)
		s.deliverComplete(ctx, key, result)
	}
}

// showProgress edits the existing progress message or sends a new one. A
// failed edit is ignored; the next tick re-creates the message.
func (s *Service) showProgress(ctx context.Context, key session.Key, progress map[session.Key]int, text string) {
	if msgID, ok := progress[key]; ok {
		if err := s.tg.Edit(ctx, key.ChatID, msgID, text); err == nil {
			return
		}
		delete(progress, key)
	}
	msgID, err := s.tg.Send(ctx, Outgoing{ChatID: key.ChatID, ThreadID: key.ThreadID, Text: text})
	if err != nil {
		s.log.Warn("failed to send progress message", "key", key.String(), "error", err)
		return
	}
	progress[key] = msgID
}

// dropProgress deletes the progress message for a key, if any.
func (s *Service) dropProgress(ctx context.Context, key session.Key, progress map[session.Key]int) {
	if msgID, ok := progress[key]; ok {
		_ = s.tg.Delete(ctx, key.ChatID, msgID)
		delete(progress, key)
	}
}

// deliverComplete sends the final response, reply-threaded to the
// originating message, with an Open button when the text was truncated.
func (s *Service) deliverComplete(ctx context.Context, key session.Key, result session.PollResult) {
	text := formatComplete(result)

	out := Outgoing{
		ChatID:   key.ChatID,
		ThreadID: key.ThreadID,
		Text:     text,
		ReplyTo:  result.ReplyTo,
	}
	if isTruncated(text) {
		if sess, ok := s.registry.Get(key); ok {
			out.Keyboard = [][]Button{{{
				Label: "Open " + tmux.DisplayName(sess.TerminalName),
				Data:  "connect:" + sess.TerminalName,
			}}}
		}
	}

	if _, err := s.tg.Send(ctx, out); err != nil {
		s.log.Warn("failed to send response", "key", key.String(), "error", err)
		return
	}
	s.log.Info("response sent", "key", key.String(), "kind", result.Output.String())
}

// formatComplete prefixes questions and action items so they stand out,
// and bounds the message length.
func formatComplete(result session.PollResult) string {
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "Session ended with no output."
	}
	switch result.Output {
	case filter.KindClarification:
		text = "❓ " + text
	case filter.KindActionRequired:
		text = "⚠️ " + text
	}
	return capMessage(text, maxMessageLen)
}

// capMessage truncates text to max bytes at a line boundary, appending a
// marker with the cut size.
func capMessage(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	if i := strings.LastIndexByte(cut, '\n'); i > max/2 {
		cut = cut[:i]
	}
	remaining := len(text) - len(cut)
	return cut + fmt.Sprintf("\n\n_(truncated, %d more characters)_", remaining)
}

// isTruncated detects the truncation markers added here and by the
// summarizer fallbacks.
func isTruncated(text string) bool {
	return strings.Contains(text, "more characters)_") || strings.Contains(text, "more lines)_")
}
