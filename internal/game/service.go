// internal/game/service.go
//
// Service wires the pure rules to the backing store: it serializes
// transitions behind a per-game lock token, retries on optimistic
// write conflicts, appends the resulting events to the update log,
// publishes a wake notice, and answers blocking info reads.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/goldrush-io/goldrush/internal/store"
)

const (
	// lockTTL is a lease, not a timeout: transitions finish in
	// microseconds, the TTL only stops a crashed holder from wedging
	// the game forever.
	lockTTL = 10 * time.Second

	// lockRetryDelay paces the acquisition spin.
	lockRetryDelay = 5 * time.Millisecond
)

// Service is the engine's public face: join, start, move, chat, info.
type Service struct {
	store store.Store
	log   *logrus.Logger
}

// NewService builds a Service on the given store.
func NewService(st store.Store, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{store: st, log: logger}
}

// Join adds player to the named game, creating and registering the game
// if this is its first join.
func (s *Service) Join(ctx context.Context, gameName, player string) error {
	if err := s.advance(ctx, gameName, func(st *State) ([]Event, error) {
		return st.Join(player)
	}); err != nil {
		return err
	}
	if _, err := s.store.RegisterGame(ctx, gameName); err != nil {
		// The join itself committed; an unlisted game is a lobby
		// cosmetic, not a lost move.
		s.log.WithError(err).WithField("game", gameName).Warn("failed to register game in index")
	}
	return nil
}

// Start records player's vote to begin the named game.
func (s *Service) Start(ctx context.Context, gameName, player string) error {
	return s.advance(ctx, gameName, func(st *State) ([]Event, error) {
		return st.ConfirmStart(player)
	})
}

// Move submits player's lando/han choice for the current deal.
func (s *Service) Move(ctx context.Context, gameName, player, choice string) error {
	return s.advance(ctx, gameName, func(st *State) ([]Event, error) {
		return st.Move(player, choice)
	})
}

// Chat appends a message to the game's log. It never touches game
// state, so it skips the per-game lock; the store's transaction alone
// assigns the id. A system message bypasses the membership check.
func (s *Service) Chat(ctx context.Context, gameName, speaker, message string, system bool) error {
	payload, err := EncodeEvent(Chat{Speaker: speaker, Message: message, System: system})
	if err != nil {
		return err
	}
	for {
		_, err := s.store.UpdateGame(ctx, gameName, func(cur []byte) ([]byte, [][]byte, error) {
			if !system {
				if cur == nil {
					return nil, nil, reject("%q is not in this game", speaker)
				}
				st, err := DecodeState(cur)
				if err != nil {
					return nil, nil, err
				}
				if !st.CanChat(speaker) {
					return nil, nil, reject("%q is not in this game", speaker)
				}
			}
			return nil, [][]byte{payload}, nil
		})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return err
		}
		return s.store.Publish(ctx, gameName)
	}
}

// Info is the blocking incremental read. It subscribes to the game's
// wake channel before re-checking the log cursor, so an append landing
// between check and wait cannot be missed, and it re-checks the cursor
// after every wake rather than trusting the signal. A negative sinceID
// means "answer immediately"; otherwise the call blocks until the log
// moves past sinceID or ctx ends. The core imposes no timeout of its
// own.
func (s *Service) Info(ctx context.Context, gameName, player string, sinceID int64) (*Info, error) {
	sub, err := s.store.Subscribe(ctx, gameName)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	cursor, err := s.store.LogCursor(ctx, gameName)
	if err != nil {
		return nil, err
	}
	for sinceID >= 0 && cursor <= sinceID {
		select {
		case <-sub.C():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if cursor, err = s.store.LogCursor(ctx, gameName); err != nil {
			return nil, err
		}
	}

	raw, err := s.store.LogRange(ctx, gameName, sinceID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		ev, err := DecodeEvent(item.Payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{ID: item.ID, At: item.At, Event: ev})
	}
	if n := len(entries); n > 0 && entries[n-1].ID > cursor {
		cursor = entries[n-1].ID
	}

	blob, err := s.store.LoadState(ctx, gameName)
	if err != nil {
		return nil, err
	}
	st := NewState()
	if blob != nil {
		if st, err = DecodeState(blob); err != nil {
			return nil, err
		}
	}

	info := &Info{ID: cursor, Events: entries, Status: ProjectStatus(st)}
	if player != "" {
		info.You = ProjectYou(st, player)
	}
	return info, nil
}

// Games is the blocking lobby listing: most recently created game
// first, with the index version as the long-poll id.
func (s *Service) Games(ctx context.Context, sinceID int64) (*GameList, error) {
	sub, err := s.store.SubscribeIndex(ctx)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	version, err := s.store.IndexVersion(ctx)
	if err != nil {
		return nil, err
	}
	for sinceID >= 0 && version <= sinceID {
		select {
		case <-sub.C():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if version, err = s.store.IndexVersion(ctx); err != nil {
			return nil, err
		}
	}

	names, err := s.store.GameNames(ctx)
	if err != nil {
		return nil, err
	}
	list := &GameList{ID: version, Games: make([]GameSummary, 0, len(names))}
	for _, n := range names {
		list.Games = append(list.Games, GameSummary{Name: n})
	}
	return list, nil
}

// Info is what a viewer gets back from a read: the new log entries, the
// id to poll from next, the public status and the private you view.
type Info struct {
	ID     int64   `json:"id"`
	Events []Entry `json:"events,omitempty"`
	Status *Status `json:"state"`
	You    *You    `json:"you,omitempty"`
}

// GameList is the lobby view.
type GameList struct {
	ID    int64         `json:"id"`
	Games []GameSummary `json:"games"`
}

// GameSummary is one lobby row.
type GameSummary struct {
	Name string `json:"name"`
}

// ArchiveRecord is what gets queued for the historian when a game ends.
type ArchiveRecord struct {
	ID         uuid.UUID      `json:"id"`
	Game       string         `json:"game"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []PlayerResult `json:"results"`
}

// advance is the transaction guard: acquire the per-game lock token,
// run the transition against a fresh read inside the store's optimistic
// transaction, retry the whole cycle on conflict, always release, then
// publish. Rejections come back as *RejectError with nothing written.
func (s *Service) advance(ctx context.Context, gameName string, op func(*State) ([]Event, error)) error {
	token := uuid.NewString()
	if err := s.acquireLock(ctx, gameName, token); err != nil {
		return err
	}
	defer func() {
		// Release must not depend on the request context surviving.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.store.ReleaseLock(releaseCtx, gameName, token); err != nil {
			s.log.WithError(err).WithField("game", gameName).Warn("failed to release game lock")
		}
	}()

	var over *GameOver
	for {
		over = nil
		_, err := s.store.UpdateGame(ctx, gameName, func(cur []byte) ([]byte, [][]byte, error) {
			st := NewState()
			if cur != nil {
				var err error
				if st, err = DecodeState(cur); err != nil {
					return nil, nil, err
				}
			}
			events, err := op(st)
			if err != nil {
				return nil, nil, err
			}
			payloads := make([][]byte, 0, len(events))
			for _, ev := range events {
				p, err := EncodeEvent(ev)
				if err != nil {
					return nil, nil, err
				}
				payloads = append(payloads, p)
				if g, ok := ev.(GameOver); ok {
					over = &g
				}
			}
			next, err := st.Encode()
			if err != nil {
				return nil, nil, err
			}
			return next, payloads, nil
		})
		if errors.Is(err, store.ErrConflict) {
			s.log.WithField("game", gameName).Debug("write conflict, retrying transition")
			continue
		}
		if err != nil {
			return err
		}
		break
	}

	if err := s.store.Publish(ctx, gameName); err != nil {
		s.log.WithError(err).WithField("game", gameName).Warn("failed to publish update notice")
	}
	if over != nil {
		s.enqueueArchive(ctx, gameName, *over)
	}
	return nil
}

// acquireLock spins until the lock is free or ctx ends. Transitions are
// near-instantaneous, so contention is brief; the caller's context is
// the only bound.
func (s *Service) acquireLock(ctx context.Context, gameName, token string) error {
	for {
		ok, err := s.store.AcquireLock(ctx, gameName, token, lockTTL)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-time.After(lockRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) enqueueArchive(ctx context.Context, gameName string, over GameOver) {
	record := ArchiveRecord{
		ID:         uuid.New(),
		Game:       gameName,
		FinishedAt: time.Now().UTC(),
		Results:    over.Results,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal archive record")
		return
	}
	if err := s.store.EnqueueArchive(ctx, payload); err != nil {
		s.log.WithError(err).WithField("game", gameName).Warn("failed to enqueue archive record")
	}
}
