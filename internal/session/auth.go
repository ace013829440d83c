package session

import "sort"

// AuthBook persists the set of chats allowed to use the bot. A chat joins
// the set by redeeming a pairing code; until then it is denied.
type AuthBook struct {
	store *Store
}

// NewAuthBook opens the authorized chats file at path.
func NewAuthBook(path string) *AuthBook {
	return &AuthBook{store: NewStore(path)}
}

func (b *AuthBook) load() ([]int64, error) {
	var chats []int64
	if _, err := b.store.Load(&chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// Authorize records a chat. Idempotent.
func (b *AuthBook) Authorize(chatID int64) error {
	chats, err := b.load()
	if err != nil {
		return err
	}
	for _, c := range chats {
		if c == chatID {
			return nil
		}
	}
	chats = append(chats, chatID)
	sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
	return b.store.Save(chats)
}

// IsAuthorized reports whether a chat may use the bot.
func (b *AuthBook) IsAuthorized(chatID int64) bool {
	chats, err := b.load()
	if err != nil {
		return false
	}
	for _, c := range chats {
		if c == chatID {
			return true
		}
	}
	return false
}

// List returns all authorized chats.
func (b *AuthBook) List() ([]int64, error) {
	return b.load()
}
