package session

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

const (
	// pairingTTL is how long a pairing code stays redeemable.
	pairingTTL = 300 * time.Second

	// pairingCodeLen is the length of generated codes.
	pairingCodeLen = 6

	// maxPairingsPerTerminal caps outstanding codes for one terminal.
	maxPairingsPerTerminal = 3

	// pairingCharset omits ambiguous characters (I, O, 0, 1).
	pairingCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Pairing is a pending pairing code entry, shared between the CLI that
// generates it and the bot that redeems it.
type Pairing struct {
	ProjectName string `json:"project_name"`
	SessionName string `json:"session_name"`
	CreatedAt   int64  `json:"created_at"`
}

// Expired reports whether the pairing is past its TTL.
func (p Pairing) Expired() bool {
	return time.Since(time.Unix(p.CreatedAt, 0)) > pairingTTL
}

// GenerateCode returns a random pairing code.
func GenerateCode() (string, error) {
	buf := make([]byte, pairingCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate pairing code: %w", err)
	}
	var b strings.Builder
	for _, c := range buf {
		b.WriteByte(pairingCharset[int(c)%len(pairingCharset)])
	}
	return b.String(), nil
}

// PairingBook manages the shared pairings file.
type PairingBook struct {
	store *Store
}

// NewPairingBook opens the pairing book backed by path.
func NewPairingBook(path string) *PairingBook {
	return &PairingBook{store: NewStore(path)}
}

func (b *PairingBook) load() (map[string]Pairing, error) {
	pairings := make(map[string]Pairing)
	if _, err := b.store.Load(&pairings); err != nil {
		return nil, err
	}
	// Drop expired entries on every access.
	for code, p := range pairings {
		if p.Expired() {
			delete(pairings, code)
		}
	}
	return pairings, nil
}

// Create generates and records a pairing code for a terminal. Fails when
// the terminal already has maxPairingsPerTerminal outstanding codes.
func (b *PairingBook) Create(projectName, sessionName string) (string, error) {
	pairings, err := b.load()
	if err != nil {
		return "", err
	}

	active := 0
	for _, p := range pairings {
		if p.SessionName == sessionName {
			active++
		}
	}
	if active >= maxPairingsPerTerminal {
		return "", ErrPairingLimit
	}

	code, err := GenerateCode()
	if err != nil {
		return "", err
	}
	pairings[code] = Pairing{
		ProjectName: projectName,
		SessionName: sessionName,
		CreatedAt:   time.Now().Unix(),
	}
	if err := b.store.Save(pairings); err != nil {
		return "", err
	}
	return code, nil
}

// Consume redeems a code, removing it so it cannot be reused. Codes are
// matched case-insensitively.
func (b *PairingBook) Consume(code string) (Pairing, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	pairings, err := b.load()
	if err != nil {
		return Pairing{}, err
	}
	p, ok := pairings[code]
	if !ok {
		return Pairing{}, ErrPairingInvalid
	}
	delete(pairings, code)
	if err := b.store.Save(pairings); err != nil {
		return Pairing{}, err
	}
	return p, nil
}

// Exists reports whether a code is outstanding and unexpired.
func (b *PairingBook) Exists(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	pairings, err := b.load()
	if err != nil {
		return false
	}
	_, ok := pairings[code]
	return ok
}
