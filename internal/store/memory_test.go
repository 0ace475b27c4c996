package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"messagely/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUsers_CreateIsAtomic(t *testing.T) {
	s := NewMemoryUsers()
	var wg sync.WaitGroup
	var created, dup int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Create(context.Background(), &models.User{Username: "alice"})
			switch err {
			case nil:
				atomic.AddInt32(&created, 1)
			case ErrDuplicate:
				atomic.AddInt32(&dup, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created)
	assert.Equal(t, int32(19), dup)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryUsers_FindAndTouch(t *testing.T) {
	s := NewMemoryUsers()
	ctx := context.Background()
	join := time.Now().Add(-time.Hour)
	require.NoError(t, s.Create(ctx, &models.User{Username: "alice", JoinAt: join, LastLoginAt: join}))

	_, err := s.Find(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.TouchLogin(ctx, "bob", time.Now()), ErrNotFound)

	now := time.Now()
	require.NoError(t, s.TouchLogin(ctx, "alice", now))
	u, err := s.Find(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, join, u.JoinAt)
	assert.Equal(t, now, u.LastLoginAt)
}

func TestMemoryUsers_ListPublicOrdered(t *testing.T) {
	s := NewMemoryUsers()
	ctx := context.Background()
	for _, name := range []string{"carol", "alice", "bob"} {
		require.NoError(t, s.Create(ctx, &models.User{Username: name, SecretHash: "secret-" + name}))
	}

	users, err := s.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, []string{users[0].Username, users[1].Username, users[2].Username})

	found, err := s.FindPublic(ctx, "bob", "nobody")
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, "bob", found["bob"].Username)
}

func TestMemoryMessages_MarkReadOnce(t *testing.T) {
	s := NewMemoryMessages()
	ctx := context.Background()
	m := &models.Message{FromUsername: "alice", ToUsername: "bob", Body: "hi", SentAt: time.Now()}
	require.NoError(t, s.Create(ctx, m))
	assert.Equal(t, uint(1), m.ID)

	first := time.Now()
	got, changed, err := s.MarkRead(ctx, m.ID, first)
	require.NoError(t, err)
	require.NotNil(t, got.ReadAt)
	assert.True(t, changed)

	again, changed, err := s.MarkRead(ctx, m.ID, first.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first, *again.ReadAt)
	assert.False(t, changed)

	_, _, err = s.MarkRead(ctx, 42, first)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryMessages_ConcurrentMarkReadChangesOnce(t *testing.T) {
	s := NewMemoryMessages()
	ctx := context.Background()
	m := &models.Message{FromUsername: "alice", ToUsername: "bob", Body: "hi"}
	require.NoError(t, s.Create(ctx, m))

	var wg sync.WaitGroup
	var changes atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, changed, err := s.MarkRead(ctx, m.ID, time.Now()); err == nil && changed {
				changes.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), changes.Load())
}

func TestMemoryMessages_Lists(t *testing.T) {
	s := NewMemoryMessages()
	ctx := context.Background()
	for _, p := range [][2]string{{"alice", "bob"}, {"bob", "alice"}, {"alice", "carol"}} {
		require.NoError(t, s.Create(ctx, &models.Message{FromUsername: p[0], ToUsername: p[1]}))
	}

	from, _ := s.ListFrom(ctx, "alice")
	to, _ := s.ListTo(ctx, "alice")
	assert.Len(t, from, 2)
	assert.Len(t, to, 1)
	assert.Less(t, from[0].ID, from[1].ID)
	assert.Equal(t, 3, s.Len())
}
