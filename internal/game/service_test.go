// internal/game/service_test.go
package game

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldrush-io/goldrush/internal/store"
)

func newTestService() (*Service, *store.Memory) {
	mem := store.NewMemory()
	return NewService(mem, nil), mem
}

func TestServiceLobbyFlow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	require.NoError(t, svc.Join(ctx, "mines", "ann"))
	require.NoError(t, svc.Join(ctx, "mines", "ben"))
	require.NoError(t, svc.Start(ctx, "mines", "ann"))
	require.NoError(t, svc.Start(ctx, "mines", "ben"))

	info, err := svc.Info(ctx, "mines", "ann", -1)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, info.Status.Type)
	require.NotNil(t, info.You)
	assert.Equal(t, StateUndecided, info.You.State)
	assert.GreaterOrEqual(t, len(info.Events), 6, "joins, starts and the round opening")
	assert.Equal(t, int64(len(info.Events)), info.ID)

	// Rejections surface to the caller and write nothing.
	before := info.ID
	err = svc.Join(ctx, "mines", "eve")
	_, ok := Rejection(err)
	require.True(t, ok)
	info, err = svc.Info(ctx, "mines", "", -1)
	require.NoError(t, err)
	assert.Equal(t, before, info.ID)
	assert.Nil(t, info.You, "spectators get no private view")
}

func TestServiceGamesIndex(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	require.NoError(t, svc.Join(ctx, "first", "ann"))
	require.NoError(t, svc.Join(ctx, "second", "ann"))

	list, err := svc.Games(ctx, -1)
	require.NoError(t, err)
	require.Len(t, list.Games, 2)
	assert.Equal(t, "second", list.Games[0].Name, "newest game first")
	assert.Equal(t, int64(2), list.ID)
}

func TestInfoBlocksUntilNextEntry(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	require.NoError(t, svc.Join(ctx, "mines", "ann"))

	cur, err := svc.Info(ctx, "mines", "", -1)
	require.NoError(t, err)

	got := make(chan *Info, 1)
	go func() {
		info, err := svc.Info(ctx, "mines", "", cur.ID)
		if err == nil {
			got <- info
		}
	}()

	select {
	case <-got:
		t.Fatal("Info returned before the log moved")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, svc.Chat(ctx, "mines", "ann", "anyone there?", false))

	select {
	case info := <-got:
		require.Len(t, info.Events, 1)
		chat, ok := info.Events[0].Event.(Chat)
		require.True(t, ok)
		assert.Equal(t, "anyone there?", chat.Message)
		assert.Equal(t, cur.ID+1, info.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("Info did not wake on the new entry")
	}
}

func TestInfoHonorsContext(t *testing.T) {
	svc, _ := newTestService()
	require.NoError(t, svc.Join(context.Background(), "mines", "ann"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	cur, err := svc.Info(context.Background(), "mines", "", -1)
	require.NoError(t, err)

	_, err = svc.Info(ctx, "mines", "", cur.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChatMembership(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	require.NoError(t, svc.Join(ctx, "mines", "ann"))

	err := svc.Chat(ctx, "mines", "eve", "let me in", false)
	_, ok := Rejection(err)
	assert.True(t, ok)

	assert.NoError(t, svc.Chat(ctx, "mines", "overseer", "welcome", true), "system chat bypasses membership")
}

func TestConcurrentChatsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	require.NoError(t, svc.Join(ctx, "mines", "ann"))

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = svc.Chat(ctx, "mines", "ann", "echo", false)
		}()
	}
	wg.Wait()

	info, err := svc.Info(ctx, "mines", "", -1)
	require.NoError(t, err)
	require.Len(t, info.Events, n+1) // the join plus every chat
	for i, e := range info.Events {
		assert.Equal(t, int64(i+1), e.ID, "log ids are dense and ordered")
	}
}

func TestSimultaneousMovesResolveOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	players := []string{"ann", "ben", "cal", "dee"}
	for _, p := range players {
		require.NoError(t, svc.Join(ctx, "mines", p))
	}
	for _, p := range players {
		require.NoError(t, svc.Start(ctx, "mines", p))
	}

	// Every player decides at once. Whichever move lands last completes
	// the deal; the guard must let exactly one caller run resolution.
	var wg sync.WaitGroup
	wg.Add(len(players))
	for _, p := range players {
		go func(name string) {
			defer wg.Done()
			assert.NoError(t, svc.Move(ctx, "mines", name, MoveLando))
		}(p)
	}
	wg.Wait()

	info, err := svc.Info(ctx, "mines", "", -1)
	require.NoError(t, err)

	moved, splits, ventures := 0, 0, 0
	for _, e := range info.Events {
		switch e.Event.(type) {
		case Moved:
			moved++
		case LootSplit:
			splits++
		case Venturing:
			ventures++
		}
	}
	assert.Equal(t, len(players), moved)
	assert.Equal(t, 1, splits, "never zero, never two")
	assert.Zero(t, ventures)
}

func TestInfoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	require.NoError(t, svc.Join(ctx, "mines", "ann"))
	require.NoError(t, svc.Join(ctx, "mines", "ben"))
	require.NoError(t, svc.Chat(ctx, "mines", "ann", "ready?", false))

	first, err := svc.Info(ctx, "mines", "ann", 1)
	require.NoError(t, err)
	second, err := svc.Info(ctx, "mines", "ann", 1)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same id, no intervening write, same answer")
}

func TestGameOverEnqueuesArchive(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService()

	require.NoError(t, svc.Join(ctx, "mines", "ann"))
	require.NoError(t, svc.Join(ctx, "mines", "ben"))

	// Rig the final deal: last round, no artifacts left to introduce.
	_, err := mem.UpdateGame(ctx, "mines", func(cur []byte) ([]byte, [][]byte, error) {
		st, err := DecodeState(cur)
		if err != nil {
			return nil, nil, err
		}
		st.Round = 5
		st.Deck = &Deck{ArtifactsSeen: 5}
		st.Pot = 7
		for _, p := range st.Players {
			p.State = StateUndecided
		}
		next, err := st.Encode()
		return next, nil, err
	})
	require.NoError(t, err)

	require.NoError(t, svc.Move(ctx, "mines", "ann", MoveLando))
	require.NoError(t, svc.Move(ctx, "mines", "ben", MoveLando))

	info, err := svc.Info(ctx, "mines", "ann", -1)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, info.Status.Type)

	archived := mem.Archived()
	require.Len(t, archived, 1)
	var rec ArchiveRecord
	require.NoError(t, json.Unmarshal(archived[0], &rec))
	assert.Equal(t, "mines", rec.Game)
	require.Len(t, rec.Results, 2)
	for _, r := range rec.Results {
		assert.True(t, r.Winner, "split 3/3 with pot 1 left, tied at the top")
	}
}
