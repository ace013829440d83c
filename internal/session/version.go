package session

import (
	"hash/fnv"
	"os"
	"strconv"
	"time"
)

// StartKind classifies a bot startup.
type StartKind int

const (
	// FirstStart means no version file existed yet.
	FirstStart StartKind = iota
	// Restart means the same binary started again.
	Restart
	// Rebuild means the binary changed since the last start.
	Rebuild
)

func (k StartKind) String() string {
	switch k {
	case FirstStart:
		return "first_start"
	case Restart:
		return "restart"
	default:
		return "rebuild"
	}
}

// BotVersion tracks the running binary across starts so a rebuild can be
// told apart from a plain restart.
type BotVersion struct {
	BinaryHash uint64 `json:"binary_hash"`
	LastStart  int64  `json:"last_start"`
	StartCount uint64 `json:"start_count"`
}

// VersionTracker persists BotVersion in the state directory.
type VersionTracker struct {
	store *Store
}

// NewVersionTracker opens the version file at path.
func NewVersionTracker(path string) *VersionTracker {
	return &VersionTracker{store: NewStore(path)}
}

// CheckRebuild records this startup and classifies it. The version file is
// updated before returning.
func (t *VersionTracker) CheckRebuild() (StartKind, BotVersion, error) {
	hash := binaryHash()
	now := time.Now().Unix()

	var v BotVersion
	found, err := t.store.Load(&v)
	if err != nil || !found {
		v = BotVersion{BinaryHash: hash, LastStart: now, StartCount: 1}
		if serr := t.store.Save(&v); serr != nil {
			return FirstStart, v, serr
		}
		return FirstStart, v, nil
	}

	kind := Restart
	if v.BinaryHash != hash {
		kind = Rebuild
	}
	v.BinaryHash = hash
	v.LastStart = now
	v.StartCount++
	if err := t.store.Save(&v); err != nil {
		return kind, v, err
	}
	return kind, v, nil
}

// binaryHash fingerprints the running executable. Size plus mtime is a
// good enough proxy for the binary having been rebuilt.
func binaryHash() uint64 {
	h := fnv.New64a()
	exe, err := os.Executable()
	if err != nil {
		h.Write([]byte("commander-unknown-exe"))
		return h.Sum64()
	}
	info, err := os.Stat(exe)
	if err != nil {
		h.Write([]byte(exe))
		return h.Sum64()
	}
	h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
	h.Write([]byte(strconv.FormatInt(info.ModTime().Unix(), 10)))
	return h.Sum64()
}
