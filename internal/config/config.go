// Package config locates Commander's state directory and loads optional
// user settings from config.toml.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// StateDirEnv is the environment variable for a custom state directory.
const StateDirEnv = "COMMANDER_STATE_DIR"

// defaultStateDir is the directory name under home.
const defaultStateDir = ".commander"

// ConfigFileName is the TOML config file for user preferences.
const ConfigFileName = "config.toml"

// StateDir returns the Commander state directory.
//
// Resolution order:
//  1. COMMANDER_STATE_DIR environment variable
//  2. ~/.commander
//  3. .commander in the current directory as a last resort
func StateDir() string {
	if dir := os.Getenv(StateDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultStateDir
	}
	return filepath.Join(home, defaultStateDir)
}

// EnsureStateDir creates the state directory if it does not exist.
// Owner-only permissions: session state identifies chats and projects.
func EnsureStateDir() error {
	return os.MkdirAll(StateDir(), 0700)
}

// SessionsFile is the persisted Telegram session registry.
func SessionsFile() string {
	return filepath.Join(StateDir(), "telegram_sessions.json")
}

// VersionFile stores the bot version marker for rebuild detection.
func VersionFile() string {
	return filepath.Join(StateDir(), "bot_version.json")
}

// AuthorizedChatsFile stores the set of paired chat ids.
func AuthorizedChatsFile() string {
	return filepath.Join(StateDir(), "authorized_chats.json")
}

// GroupConfigsFile stores per-chat forum configuration.
func GroupConfigsFile() string {
	return filepath.Join(StateDir(), "group_configs.json")
}

// PairingsFile stores outstanding pairing codes.
func PairingsFile() string {
	return filepath.Join(StateDir(), "pairings.json")
}

// NotificationsFile is the cross-channel notification queue shared with the TUI.
func NotificationsFile() string {
	return filepath.Join(StateDir(), "notifications.json")
}

// ProjectsFile stores registered project definitions.
func ProjectsFile() string {
	return filepath.Join(StateDir(), "projects.json")
}

// HistoryFile is the sqlite session activity database.
func HistoryFile() string {
	return filepath.Join(StateDir(), "history.db")
}

// LogDir is the directory for rotating log files.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// EnvFile is the optional env file loaded at startup.
func EnvFile() string {
	return filepath.Join(StateDir(), "env")
}

// Settings is the user-facing configuration in TOML format. Every field is
// optional; zero values fall back to the defaults below.
type Settings struct {
	// PollIntervalMS is the output poll tick in milliseconds (default: 500)
	PollIntervalMS int `toml:"poll_interval_ms"`

	// NotifyIntervalMS is the notification broadcast tick (default: 2000)
	NotifyIntervalMS int `toml:"notify_interval_ms"`

	// IdleThresholdMS is quiet time before a session counts as idle (default: 1500)
	IdleThresholdMS int `toml:"idle_threshold_ms"`

	// CaptureLines is the scrollback depth per capture (default: 200)
	CaptureLines int `toml:"capture_lines"`

	// SummarizerModel overrides OPENROUTER_MODEL
	SummarizerModel string `toml:"summarizer_model"`

	// LogLevel is "debug", "info", "warn" or "error" (default: "info")
	LogLevel string `toml:"log_level"`

	// LogFormat is "json" or "text" (default: "json")
	LogFormat string `toml:"log_format"`

	// StatusPort is the localhost status server port; 0 disables it
	StatusPort int `toml:"status_port"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		PollIntervalMS:   500,
		NotifyIntervalMS: 2000,
		IdleThresholdMS:  1500,
		CaptureLines:     200,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// LoadSettings reads config.toml from the state directory, applying defaults
// for any field left unset. A missing file is not an error.
func LoadSettings() (Settings, error) {
	return loadSettingsFrom(filepath.Join(StateDir(), ConfigFileName))
}

func loadSettingsFrom(path string) (Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, err
	}

	var overrides Settings
	if err := toml.Unmarshal(data, &overrides); err != nil {
		return s, err
	}

	if overrides.PollIntervalMS > 0 {
		s.PollIntervalMS = overrides.PollIntervalMS
	}
	if overrides.NotifyIntervalMS > 0 {
		s.NotifyIntervalMS = overrides.NotifyIntervalMS
	}
	if overrides.IdleThresholdMS > 0 {
		s.IdleThresholdMS = overrides.IdleThresholdMS
	}
	if overrides.CaptureLines > 0 {
		s.CaptureLines = overrides.CaptureLines
	}
	if overrides.SummarizerModel != "" {
		s.SummarizerModel = overrides.SummarizerModel
	}
	if overrides.LogLevel != "" {
		s.LogLevel = overrides.LogLevel
	}
	if overrides.LogFormat != "" {
		s.LogFormat = overrides.LogFormat
	}
	if overrides.StatusPort > 0 {
		s.StatusPort = overrides.StatusPort
	}

	return s, nil
}

// PollInterval returns the poll tick as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

// NotifyInterval returns the broadcast tick as a duration.
func (s Settings) NotifyInterval() time.Duration {
	return time.Duration(s.NotifyIntervalMS) * time.Millisecond
}

// IdleThreshold returns the idle cutoff as a duration.
func (s Settings) IdleThreshold() time.Duration {
	return time.Duration(s.IdleThresholdMS) * time.Millisecond
}
