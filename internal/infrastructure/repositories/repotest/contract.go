// Package repotest holds behaviour checks shared by every repository backend.
package repotest

import (
	"context"
	"testing"
	"time"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SessionRepository exercises a fresh, empty repository returned by newRepo.
func SessionRepository(t *testing.T, newRepo func(t *testing.T) ports.SessionRepository) {
	t.Run("create assigns id and createdAt", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		session := &domain.StreamSession{PublisherID: "alice", RoomID: "alice-1", IsActive: true, Title: "Finals"}
		require.NoError(t, repo.Create(ctx, session))
		assert.NotEmpty(t, session.ID)
		assert.False(t, session.CreatedAt.IsZero())

		got, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.RoomID, got.RoomID)
		assert.Equal(t, "Finals", got.Title)
		assert.True(t, got.IsActive)
		assert.Nil(t, got.EndedAt)
	})

	t.Run("get unknown", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("returned sessions are copies", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		session := &domain.StreamSession{PublisherID: "alice", RoomID: "r", IsActive: true}
		require.NoError(t, repo.Create(ctx, session))
		session.Title = "mutated after create"

		got, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		got.IsActive = false

		again, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		assert.True(t, again.IsActive)
		assert.Empty(t, again.Title)
	})

	t.Run("update ends session and drops it from active lists", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		a := &domain.StreamSession{PublisherID: "alice", RoomID: "a", IsActive: true}
		b := &domain.StreamSession{PublisherID: "bob", RoomID: "b", IsActive: true}
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.Create(ctx, b))

		active, err := repo.ListActive(ctx)
		require.NoError(t, err)
		assert.Len(t, active, 2)

		endedAt := time.Now().UTC().Truncate(time.Millisecond)
		a.End(endedAt)
		require.NoError(t, repo.Update(ctx, a))

		active, err = repo.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, b.ID, active[0].ID)

		byAlice, err := repo.FindActiveByPublisher(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, byAlice)

		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		require.NotNil(t, got.EndedAt)
		assert.True(t, endedAt.Equal(*got.EndedAt))
	})

	t.Run("update unknown", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.Update(context.Background(), &domain.StreamSession{ID: "missing"})
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("find active by publisher", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, &domain.StreamSession{PublisherID: "alice", RoomID: "a1", IsActive: true}))
		require.NoError(t, repo.Create(ctx, &domain.StreamSession{PublisherID: "bob", RoomID: "b1", IsActive: true}))

		found, err := repo.FindActiveByPublisher(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "a1", found[0].RoomID)

		none, err := repo.FindActiveByPublisher(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

// PermissionRepository exercises a fresh, empty repository returned by newRepo.
func PermissionRepository(t *testing.T, newRepo func(t *testing.T) ports.PermissionRepository) {
	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		perm := &domain.SubscriberPermission{SubscriberID: "sub", PublisherID: "alice", AllowVideo: true, GrantedBy: "admin"}
		require.NoError(t, repo.Create(ctx, perm))
		assert.NotEmpty(t, perm.ID)
		assert.False(t, perm.GrantedAt.IsZero())

		got, err := repo.GetByID(ctx, perm.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.UserID("sub"), got.SubscriberID)
		assert.Equal(t, domain.UserID("alice"), got.PublisherID)
		assert.True(t, got.AllowVideo)
		assert.False(t, got.AllowAudio)
		assert.Equal(t, domain.UserID("admin"), got.GrantedBy)
		assert.Nil(t, got.StreamSession)
	})

	t.Run("session join is never stored", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		perm := &domain.SubscriberPermission{
			SubscriberID:  "sub",
			PublisherID:   "alice",
			StreamSession: &domain.StreamSession{ID: "s-1", IsActive: true},
		}
		require.NoError(t, repo.Create(ctx, perm))

		got, err := repo.GetByID(ctx, perm.ID)
		require.NoError(t, err)
		assert.Nil(t, got.StreamSession)
	})

	t.Run("duplicate pair", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, &domain.SubscriberPermission{SubscriberID: "sub", PublisherID: "alice"}))
		err := repo.Create(ctx, &domain.SubscriberPermission{SubscriberID: "sub", PublisherID: "alice"})
		assert.ErrorIs(t, err, domain.ErrPermissionExists)

		require.NoError(t, repo.Create(ctx, &domain.SubscriberPermission{SubscriberID: "sub", PublisherID: "bob"}))
	})

	t.Run("list by subscriber", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, &domain.SubscriberPermission{SubscriberID: "sub", PublisherID: "alice"}))
		require.NoError(t, repo.Create(ctx, &domain.SubscriberPermission{SubscriberID: "sub", PublisherID: "bob"}))
		require.NoError(t, repo.Create(ctx, &domain.SubscriberPermission{SubscriberID: "other", PublisherID: "alice"}))

		perms, err := repo.ListBySubscriber(ctx, "sub")
		require.NoError(t, err)
		assert.Len(t, perms, 2)
		for _, p := range perms {
			assert.Equal(t, domain.UserID("sub"), p.SubscriberID)
		}

		none, err := repo.ListBySubscriber(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("update flags", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		perm := &domain.SubscriberPermission{SubscriberID: "sub", PublisherID: "alice"}
		require.NoError(t, repo.Create(ctx, perm))

		perm.AllowAudio = true
		require.NoError(t, repo.Update(ctx, perm))

		got, err := repo.GetByID(ctx, perm.ID)
		require.NoError(t, err)
		assert.True(t, got.AllowAudio)

		err = repo.Update(ctx, &domain.SubscriberPermission{ID: "missing"})
		assert.ErrorIs(t, err, domain.ErrPermissionNotFound)
	})

	t.Run("delete frees the pair", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		perm := &domain.SubscriberPermission{SubscriberID: "sub", PublisherID: "alice"}
		require.NoError(t, repo.Create(ctx, perm))
		require.NoError(t, repo.Delete(ctx, perm.ID))

		_, err := repo.GetByID(ctx, perm.ID)
		assert.ErrorIs(t, err, domain.ErrPermissionNotFound)
		perms, err := repo.ListBySubscriber(ctx, "sub")
		require.NoError(t, err)
		assert.Empty(t, perms)

		assert.ErrorIs(t, repo.Delete(ctx, perm.ID), domain.ErrPermissionNotFound)
		require.NoError(t, repo.Create(ctx, &domain.SubscriberPermission{SubscriberID: "sub", PublisherID: "alice"}))
	})
}
