package session

import "errors"

var (
	// ErrNoSession means the chat (or topic) has no connected session.
	ErrNoSession = errors.New("no session connected")

	// ErrAlreadyConnected means the chat already has a session.
	ErrAlreadyConnected = errors.New("session already connected")

	// ErrBusy means the session is still collecting a previous response.
	ErrBusy = errors.New("session is busy processing a previous request")

	// ErrTerminalNotFound means no tmux session matched the requested name.
	ErrTerminalNotFound = errors.New("terminal not found")

	// ErrProjectNotFound means no registered project matched the name.
	ErrProjectNotFound = errors.New("project not found")

	// ErrPairingInvalid means the pairing code is unknown, expired, or used.
	ErrPairingInvalid = errors.New("invalid or expired pairing code")

	// ErrPairingLimit means the terminal already has the maximum number of
	// outstanding pairing codes.
	ErrPairingLimit = errors.New("too many active pairing codes for terminal")

	// ErrUnauthorized means the chat has not been authorized to use the bot.
	ErrUnauthorized = errors.New("chat is not authorized")
)
