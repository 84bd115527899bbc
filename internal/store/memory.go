// internal/store/memory.go
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Memory implements Store for a single process: a mutex-guarded map
// with buffered wake channels standing in for pub/sub. It backs the
// tests and the no-Redis deployment mode.
type Memory struct {
	mu       sync.Mutex
	games    map[string]*memGame
	index    []string // newest first
	indexVer int64
	indexSub []chan struct{}
	archive  [][]byte
}

type memGame struct {
	state   []byte
	entries []LogEntry
	lock    string
	lockExp time.Time
	subs    []chan struct{}
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{games: make(map[string]*memGame)}
}

func (m *Memory) game(name string) *memGame {
	g, ok := m.games[name]
	if !ok {
		g = &memGame{}
		m.games[name] = g
	}
	return g
}

func (m *Memory) RegisterGame(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.index {
		if n == name {
			return false, nil
		}
	}
	m.index = append([]string{name}, m.index...)
	m.indexVer++
	wakeAll(m.indexSub)
	return true, nil
}

func (m *Memory) GameNames(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.index))
	copy(out, m.index)
	return out, nil
}

func (m *Memory) IndexVersion(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexVer, nil
}

func (m *Memory) SubscribeIndex(ctx context.Context) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{}, 1)
	m.indexSub = append(m.indexSub, ch)
	return &memSub{remove: func() { m.dropIndexSub(ch) }, ch: ch}, nil
}

func (m *Memory) LoadState(ctx context.Context, game string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[game]
	if !ok || g.state == nil {
		return nil, nil
	}
	out := make([]byte, len(g.state))
	copy(out, g.state)
	return out, nil
}

// UpdateGame holds the store mutex across mutate, so there is nothing
// to conflict with: ErrConflict is never returned here.
func (m *Memory) UpdateGame(ctx context.Context, game string, mutate Mutate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.game(game)

	next, events, err := mutate(g.state)
	if err != nil {
		return 0, err
	}
	if next != nil {
		g.state = next
	}
	now := time.Now().UTC()
	for _, payload := range events {
		g.entries = append(g.entries, LogEntry{
			ID:      int64(len(g.entries)) + 1,
			At:      now,
			Payload: json.RawMessage(payload),
		})
	}
	return int64(len(g.entries)), nil
}

func (m *Memory) LogRange(ctx context.Context, game string, afterID int64) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[game]
	if !ok || afterID >= int64(len(g.entries)) {
		return nil, nil
	}
	if afterID < 0 {
		afterID = 0
	}
	out := make([]LogEntry, len(g.entries[afterID:]))
	copy(out, g.entries[afterID:])
	return out, nil
}

func (m *Memory) LogCursor(ctx context.Context, game string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[game]
	if !ok {
		return 0, nil
	}
	return int64(len(g.entries)), nil
}

func (m *Memory) AcquireLock(ctx context.Context, game, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.game(game)
	now := time.Now()
	if g.lock != "" && now.Before(g.lockExp) {
		return false, nil
	}
	g.lock = token
	g.lockExp = now.Add(ttl)
	return true, nil
}

func (m *Memory) ReleaseLock(ctx context.Context, game, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.game(game)
	if g.lock == token {
		g.lock = ""
	}
	return nil
}

func (m *Memory) Publish(ctx context.Context, game string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.games[game]; ok {
		wakeAll(g.subs)
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, game string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.game(game)
	ch := make(chan struct{}, 1)
	g.subs = append(g.subs, ch)
	return &memSub{remove: func() { m.dropGameSub(game, ch) }, ch: ch}, nil
}

func (m *Memory) EnqueueArchive(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.archive = append(m.archive, cp)
	return nil
}

// Archived exposes the queued finished-game records; test hook.
func (m *Memory) Archived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.archive))
	copy(out, m.archive)
	return out
}

func (m *Memory) dropIndexSub(ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexSub = dropChan(m.indexSub, ch)
}

func (m *Memory) dropGameSub(game string, ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.games[game]; ok {
		g.subs = dropChan(g.subs, ch)
	}
}

func wakeAll(subs []chan struct{}) {
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default: // coalesce
		}
	}
}

func dropChan(subs []chan struct{}, ch chan struct{}) []chan struct{} {
	for i, c := range subs {
		if c == ch {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

type memSub struct {
	remove func()
	ch     chan struct{}
	once   sync.Once
}

func (s *memSub) C() <-chan struct{} { return s.ch }
func (s *memSub) Close()             { s.once.Do(s.remove) }
