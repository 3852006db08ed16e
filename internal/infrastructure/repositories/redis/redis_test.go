package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/internal/infrastructure/repositories/repotest"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisSessionRepository(t *testing.T) {
	repotest.SessionRepository(t, func(t *testing.T) ports.SessionRepository {
		client, _ := newTestClient(t)
		return NewRedisSessionRepository(client)
	})
}

func TestRedisPermissionRepository(t *testing.T) {
	repotest.PermissionRepository(t, func(t *testing.T) ports.PermissionRepository {
		client, _ := newTestClient(t)
		return NewRedisPermissionRepository(client)
	})
}

// failFirstTx fails the first MULTI/EXEC pipeline and passes everything else through.
type failFirstTx struct {
	mu     sync.Mutex
	failed bool
}

func (h *failFirstTx) DialHook(next redis.DialHook) redis.DialHook          { return next }
func (h *failFirstTx) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h *failFirstTx) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.mu.Lock()
		fail := !h.failed && len(cmds) > 0 && cmds[0].Name() == "multi"
		if fail {
			h.failed = true
		}
		h.mu.Unlock()
		if fail {
			return errors.New("connection reset")
		}
		return next(ctx, cmds)
	}
}

func TestRedisSessionRepository_CreateLeavesNothingWhenIndexingFails(t *testing.T) {
	client, mr := newTestClient(t)
	client.AddHook(&failFirstTx{})
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	session := &domain.StreamSession{PublisherID: "alice", RoomID: "alice-1", IsActive: true}
	err := repo.Create(ctx, session)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to index active session")

	assert.False(t, mr.Exists(sessionKey(session.ID)))
	_, err = repo.GetByID(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	active, err := repo.FindActiveByPublisher(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, active)

	// The next attempt goes through.
	retry := &domain.StreamSession{PublisherID: "alice", RoomID: "alice-2", IsActive: true}
	require.NoError(t, repo.Create(ctx, retry))
	active, err = repo.FindActiveByPublisher(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, retry.ID, active[0].ID)
}

func TestRedisSessionRepository_SkipsDanglingIndexEntries(t *testing.T) {
	client, mr := newTestClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	session := &domain.StreamSession{PublisherID: "alice", RoomID: "a", IsActive: true}
	require.NoError(t, repo.Create(ctx, session))
	mr.Del(sessionKey(session.ID))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRedisSessionRepository_StoresJSONUnderPrefixedKeys(t *testing.T) {
	client, mr := newTestClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	session := &domain.StreamSession{PublisherID: "alice", RoomID: "alice-1", IsActive: true}
	require.NoError(t, repo.Create(ctx, session))

	raw, err := mr.Get("screenshare:session:" + string(session.ID))
	require.NoError(t, err)
	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "alice-1", stored["roomId"])

	members, err := mr.Members("screenshare:publisher:alice:active")
	require.NoError(t, err)
	assert.Equal(t, []string{string(session.ID)}, members)
}

func TestMigrate_RebuildsPublisherIndex(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	data, err := json.Marshal(&domain.StreamSession{ID: "s-1", PublisherID: "alice", IsActive: true})
	require.NoError(t, err)
	require.NoError(t, mr.Set(sessionKey("s-1"), string(data)))
	ended, err := json.Marshal(&domain.StreamSession{ID: "s-2", PublisherID: "alice"})
	require.NoError(t, err)
	require.NoError(t, mr.Set(sessionKey("s-2"), string(ended)))
	require.NoError(t, mr.Set(schemaVersionKey, "1"))
	_, err = mr.SAdd(activeSessionsKey(), "s-1")
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, client, nil))

	members, err := mr.Members(publisherActiveKey("alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1"}, members)

	version, err := mr.Get(schemaVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "2", version)

	// A second run is a no-op.
	require.NoError(t, Migrate(ctx, client, nil))
}
