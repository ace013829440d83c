package session

import "strconv"

// GroupConfig holds per-group chat settings. Forum groups route sessions
// through topics, one topic per terminal.
type GroupConfig struct {
	IsForum bool `json:"is_forum"`
	// TopicSessions maps a forum thread ID to the terminal name it hosts.
	TopicSessions map[int64]string `json:"topic_sessions,omitempty"`
}

// GroupBook persists group configs keyed by chat ID.
type GroupBook struct {
	store *Store
}

// NewGroupBook opens the group config file at path.
func NewGroupBook(path string) *GroupBook {
	return &GroupBook{store: NewStore(path)}
}

// JSON object keys must be strings, so chat IDs round-trip as decimal.
func (b *GroupBook) load() (map[string]GroupConfig, error) {
	configs := make(map[string]GroupConfig)
	if _, err := b.store.Load(&configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// Get returns the config for a chat, or a zero config when unknown.
func (b *GroupBook) Get(chatID int64) (GroupConfig, error) {
	configs, err := b.load()
	if err != nil {
		return GroupConfig{}, err
	}
	return configs[strconv.FormatInt(chatID, 10)], nil
}

// Set stores the config for a chat.
func (b *GroupBook) Set(chatID int64, cfg GroupConfig) error {
	configs, err := b.load()
	if err != nil {
		return err
	}
	configs[strconv.FormatInt(chatID, 10)] = cfg
	return b.store.Save(configs)
}

// SetTopicSession records which terminal a forum topic hosts.
func (b *GroupBook) SetTopicSession(chatID, threadID int64, terminal string) error {
	cfg, err := b.Get(chatID)
	if err != nil {
		return err
	}
	cfg.IsForum = true
	if cfg.TopicSessions == nil {
		cfg.TopicSessions = make(map[int64]string)
	}
	cfg.TopicSessions[threadID] = terminal
	return b.Set(chatID, cfg)
}

// RemoveTopicSession clears a topic's terminal mapping.
func (b *GroupBook) RemoveTopicSession(chatID, threadID int64) error {
	cfg, err := b.Get(chatID)
	if err != nil {
		return err
	}
	if cfg.TopicSessions == nil {
		return nil
	}
	delete(cfg.TopicSessions, threadID)
	return b.Set(chatID, cfg)
}

// TopicForTerminal returns the thread hosting terminal in chat, if any.
func (b *GroupBook) TopicForTerminal(chatID int64, terminal string) (int64, bool) {
	cfg, err := b.Get(chatID)
	if err != nil {
		return 0, false
	}
	for thread, t := range cfg.TopicSessions {
		if t == terminal {
			return thread, true
		}
	}
	return 0, false
}
