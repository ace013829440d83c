package session

import (
	"fmt"
	"strconv"
)

// Key identifies a registry entry: one chat, or one forum topic within a
// chat. ThreadID zero means a one-to-one chat.
type Key struct {
	ChatID   int64
	ThreadID int64
}

// NewKey builds a key for a plain chat.
func NewKey(chatID int64) Key {
	return Key{ChatID: chatID}
}

// NewTopicKey builds a key for a forum topic.
func NewTopicKey(chatID, threadID int64) Key {
	return Key{ChatID: chatID, ThreadID: threadID}
}

// HasThread reports whether the key addresses a forum topic.
func (k Key) HasThread() bool {
	return k.ThreadID != 0
}

func (k Key) String() string {
	if k.ThreadID == 0 {
		return strconv.FormatInt(k.ChatID, 10)
	}
	return fmt.Sprintf("%d:%d", k.ChatID, k.ThreadID)
}
