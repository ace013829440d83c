package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sjoeboo/commander/internal/filter"
	"github.com/sjoeboo/commander/internal/tmux"
)

const (
	// maxNotifications caps the shared queue length.
	maxNotifications = 100

	// notificationTTL is how long an entry stays deliverable.
	notificationTTL = 3600 * time.Second
)

// Notification is one entry in the shared notification file. Producers
// (the CLI, watchers) append; consumers mark entries read per channel.
type Notification struct {
	ID        string   `json:"id"`
	Message   string   `json:"message"`
	Session   string   `json:"session,omitempty"`
	CreatedAt int64    `json:"created_at"`
	ReadBy    []string `json:"read_by,omitempty"`
}

// Expired reports whether the notification is past its TTL.
func (n Notification) Expired() bool {
	return time.Since(time.Unix(n.CreatedAt, 0)) > notificationTTL
}

// ReadByChannel reports whether channel already consumed this entry.
func (n Notification) ReadByChannel(channel string) bool {
	for _, c := range n.ReadBy {
		if c == channel {
			return true
		}
	}
	return false
}

type notificationFile struct {
	Notifications []Notification `json:"notifications"`
}

// NotificationQueue manages the shared notifications file.
type NotificationQueue struct {
	store *Store
}

// NewNotificationQueue opens the queue backed by path.
func NewNotificationQueue(path string) *NotificationQueue {
	return &NotificationQueue{store: NewStore(path)}
}

// Path returns the backing file path, for filesystem watchers.
func (q *NotificationQueue) Path() string {
	return q.store.Path()
}

func (q *NotificationQueue) load() (notificationFile, error) {
	var nf notificationFile
	if _, err := q.store.Load(&nf); err != nil {
		return notificationFile{}, err
	}
	kept := nf.Notifications[:0]
	for _, n := range nf.Notifications {
		if !n.Expired() {
			kept = append(kept, n)
		}
	}
	nf.Notifications = kept
	return nf, nil
}

// Push appends a notification, evicting the oldest entries past the cap.
func (q *NotificationQueue) Push(message, sessionName string) error {
	nf, err := q.load()
	if err != nil {
		return err
	}
	for len(nf.Notifications) >= maxNotifications {
		nf.Notifications = nf.Notifications[1:]
	}
	nf.Notifications = append(nf.Notifications, Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Session:   sessionName,
		CreatedAt: time.Now().Unix(),
	})
	return q.store.Save(&nf)
}

// Unread returns the entries channel has not consumed yet, oldest first.
func (q *NotificationQueue) Unread(channel string) ([]Notification, error) {
	nf, err := q.load()
	if err != nil {
		return nil, err
	}
	var out []Notification
	for _, n := range nf.Notifications {
		if !n.ReadByChannel(channel) {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkRead records that channel consumed the given entries. Entries stay
// in the file for other channels until they expire.
func (q *NotificationQueue) MarkRead(channel string, ids []string) error {
	nf, err := q.load()
	if err != nil {
		return err
	}
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	for i := range nf.Notifications {
		n := &nf.Notifications[i]
		if _, ok := idSet[n.ID]; ok && !n.ReadByChannel(channel) {
			n.ReadBy = append(n.ReadBy, channel)
		}
	}
	return q.store.Save(&nf)
}

// NotifySessionReady broadcasts that a terminal finished working and is
// waiting for input. The preview, when given, is condensed to one line.
func (q *NotificationQueue) NotifySessionReady(sessionName, preview string) error {
	display := tmux.DisplayName(sessionName)

	message := fmt.Sprintf("Session %q is ready for input", display)
	if brief := briefPreview(preview); brief != "" {
		message = fmt.Sprintf("Session %q is ready: %s", display, brief)
	}
	message += fmt.Sprintf("\n\n/connect %s", display)
	return q.Push(message, sessionName)
}

// NotifySessionResumed broadcasts that a terminal started working again.
func (q *NotificationQueue) NotifySessionResumed(sessionName string) error {
	display := tmux.DisplayName(sessionName)
	return q.Push(fmt.Sprintf("Session %q resumed work", display), sessionName)
}

// NotifySessionsWaiting broadcasts a digest of terminals awaiting input.
// Each entry pairs a terminal name with a raw screen preview.
func (q *NotificationQueue) NotifySessionsWaiting(sessions [][2]string) error {
	if len(sessions) == 0 {
		return nil
	}

	var b strings.Builder
	if len(sessions) == 1 {
		b.WriteString("A session is waiting for your input:")
	} else {
		fmt.Fprintf(&b, "%d sessions are waiting for your input:", len(sessions))
	}

	connects := make([]string, 0, len(sessions))
	for _, s := range sessions {
		display := tmux.DisplayName(s[0])
		if brief := briefPreview(s[1]); brief != "" {
			fmt.Fprintf(&b, "\n  - %q: %s", display, brief)
		} else {
			fmt.Fprintf(&b, "\n  - %q", display)
		}
		connects = append(connects, "/connect "+display)
	}

	b.WriteString("\n\nChat with: ")
	b.WriteString(strings.Join(connects, " | "))
	return q.Push(b.String(), "")
}

// previewMaxRunes bounds the single-line preview in waiting notifications.
const previewMaxRunes = 120

// briefPreview reduces a raw screen capture to its last meaningful line.
func briefPreview(preview string) string {
	clean := filter.StripANSI(preview)
	lines := strings.Split(clean, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || filter.IsUINoise(line) {
			continue
		}
		if runes := []rune(line); len(runes) > previewMaxRunes {
			return string(runes[:previewMaxRunes-3]) + "..."
		}
		return line
	}
	return ""
}
