// internal/store/memory_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUpdateAssignsDenseIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.UpdateGame(ctx, "g", func(cur []byte) ([]byte, [][]byte, error) {
		require.Nil(t, cur, "fresh game has no state")
		return []byte(`{"v":1}`), [][]byte{[]byte(`"a"`), []byte(`"b"`)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	// Log-only append: nil next leaves the state untouched.
	id, err = m.UpdateGame(ctx, "g", func(cur []byte) ([]byte, [][]byte, error) {
		assert.JSONEq(t, `{"v":1}`, string(cur))
		return nil, [][]byte{[]byte(`"c"`)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	state, err := m.LoadState(ctx, "g")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(state))

	cursor, err := m.LogCursor(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, int64(3), cursor)

	entries, err := m.LogRange(ctx, "g", 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].ID)
	assert.Equal(t, int64(3), entries[1].ID)

	entries, err = m.LogRange(ctx, "g", -1)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = m.LogRange(ctx, "g", 99)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryUpdateErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	boom := assert.AnError
	_, err := m.UpdateGame(ctx, "g", func(cur []byte) ([]byte, [][]byte, error) {
		return []byte(`{}`), [][]byte{[]byte(`"x"`)}, boom
	})
	assert.ErrorIs(t, err, boom)

	cursor, err := m.LogCursor(ctx, "g")
	require.NoError(t, err)
	assert.Zero(t, cursor)
	state, err := m.LoadState(ctx, "g")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestMemoryLock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.AcquireLock(ctx, "g", "tok1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.AcquireLock(ctx, "g", "tok2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held lock must not be re-granted")

	// Release with the wrong token is a no-op.
	require.NoError(t, m.ReleaseLock(ctx, "g", "tok2"))
	ok, _ = m.AcquireLock(ctx, "g", "tok2", time.Minute)
	assert.False(t, ok)

	require.NoError(t, m.ReleaseLock(ctx, "g", "tok1"))
	ok, err = m.AcquireLock(ctx, "g", "tok2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.AcquireLock(ctx, "g", "tok1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	ok, err = m.AcquireLock(ctx, "g", "tok2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease is up for grabs")
}

func TestMemorySubscribeWakesOnPublish(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	sub, err := m.Subscribe(ctx, "g")
	require.NoError(t, err)
	defer sub.Close()

	select {
	case <-sub.C():
		t.Fatal("spurious wake before publish")
	default:
	}

	require.NoError(t, m.Publish(ctx, "g"))
	// Coalescing: a second publish must not block or panic.
	require.NoError(t, m.Publish(ctx, "g"))

	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("no wake after publish")
	}
}

func TestMemoryIndex(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	sub, err := m.SubscribeIndex(ctx)
	require.NoError(t, err)
	defer sub.Close()

	added, err := m.RegisterGame(ctx, "first")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = m.RegisterGame(ctx, "second")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = m.RegisterGame(ctx, "first")
	require.NoError(t, err)
	assert.False(t, added, "re-registering is idempotent")

	names, err := m.GameNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, names)

	version, err := m.IndexVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version, "duplicates do not bump the version")

	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("no wake after index change")
	}
}
