// internal/store/store.go
//
// Package store is the backing-store contract the game engine needs:
// a per-game state blob and append-only log written together in one
// optimistic transaction, a per-game lock, a wake channel, a
// creation-ordered game index, and a queue for finished-game records.
// Anything satisfying Store is substitutable; Redis backs multi-process
// deployments and Memory a single process (and the tests).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrConflict is returned by UpdateGame when another writer changed the
// game between read and commit. Callers retry the whole
// read-compute-write cycle; the mutate function must be pure enough for
// that to be safe.
var ErrConflict = errors.New("store: concurrent modification")

// LogEntry is one appended record. IDs start at 1 and increase by one
// per entry within a game; the payload is opaque to the store.
type LogEntry struct {
	ID      int64           `json:"id"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// Subscription delivers wake signals for one channel. Signals may be
// coalesced or spurious; receivers must re-check the condition they
// wait on.
type Subscription interface {
	C() <-chan struct{}
	Close()
}

// Mutate inspects the current state blob (nil if the game has no state
// yet) and returns the next blob plus the event payloads to append.
// Returning an error aborts the update with nothing written; returning
// a nil next blob keeps the state untouched (log-only append).
type Mutate func(cur []byte) (next []byte, events [][]byte, err error)

// Store is the complete set of primitives the engine requires.
type Store interface {
	// RegisterGame adds a game to the global index, newest first.
	// It reports whether the name was new and bumps the index version
	// (with a wake on the index channel) only when it was.
	RegisterGame(ctx context.Context, name string) (bool, error)

	// GameNames lists known games, most recently created first.
	GameNames(ctx context.Context) ([]string, error)

	// IndexVersion is the monotonic counter behind GameNames.
	IndexVersion(ctx context.Context) (int64, error)

	// SubscribeIndex delivers wakes when the index version moves.
	SubscribeIndex(ctx context.Context) (Subscription, error)

	// LoadState returns the game's state blob, or nil if none exists.
	LoadState(ctx context.Context, game string) ([]byte, error)

	// UpdateGame runs mutate against a fresh read of the game's state
	// and commits the new blob and appended entries atomically,
	// assigning consecutive ids. Returns the id of the last entry
	// written (the game's new version), or ErrConflict if another
	// writer got there first.
	UpdateGame(ctx context.Context, game string, mutate Mutate) (int64, error)

	// LogRange returns entries with id > afterID in ascending order.
	LogRange(ctx context.Context, game string, afterID int64) ([]LogEntry, error)

	// LogCursor is the id of the newest entry (0 when empty).
	LogCursor(ctx context.Context, game string) (int64, error)

	// AcquireLock takes the per-game lock for ttl if nobody holds it.
	AcquireLock(ctx context.Context, game, token string, ttl time.Duration) (bool, error)

	// ReleaseLock drops the lock if token still owns it.
	ReleaseLock(ctx context.Context, game, token string) error

	// Publish wakes every subscriber of the game's channel.
	Publish(ctx context.Context, game string) error

	// Subscribe delivers wakes for one game. Subscribe before
	// re-checking the log cursor to avoid losing a concurrent append.
	Subscribe(ctx context.Context, game string) (Subscription, error)

	// EnqueueArchive pushes a finished-game record for the historian.
	EnqueueArchive(ctx context.Context, payload []byte) error
}
