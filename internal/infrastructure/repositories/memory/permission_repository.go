package memory

import (
	"context"
	"sync"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/pkg/utils"

	"github.com/google/uuid"
)

type pairKey struct {
	subscriber domain.UserID
	publisher  domain.UserID
}

type MemoryPermissionRepository struct {
	permissions  map[domain.PermissionID]*domain.SubscriberPermission
	bySubscriber map[domain.UserID]map[domain.PermissionID]struct{}
	pairs        map[pairKey]domain.PermissionID
	mu           sync.RWMutex
}

func NewMemoryPermissionRepository() ports.PermissionRepository {
	return &MemoryPermissionRepository{
		permissions:  make(map[domain.PermissionID]*domain.SubscriberPermission),
		bySubscriber: make(map[domain.UserID]map[domain.PermissionID]struct{}),
		pairs:        make(map[pairKey]domain.PermissionID),
	}
}

func (r *MemoryPermissionRepository) Create(ctx context.Context, permission *domain.SubscriberPermission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{permission.SubscriberID, permission.PublisherID}
	if _, exists := r.pairs[key]; exists {
		return domain.ErrPermissionExists
	}

	if permission.ID == "" {
		permission.ID = domain.PermissionID(uuid.NewString())
	}
	if permission.GrantedAt.IsZero() {
		permission.GrantedAt = utils.Now()
	}

	r.permissions[permission.ID] = permission.Stored()
	r.pairs[key] = permission.ID
	if r.bySubscriber[permission.SubscriberID] == nil {
		r.bySubscriber[permission.SubscriberID] = make(map[domain.PermissionID]struct{})
	}
	r.bySubscriber[permission.SubscriberID][permission.ID] = struct{}{}
	return nil
}

func (r *MemoryPermissionRepository) GetByID(ctx context.Context, id domain.PermissionID) (*domain.SubscriberPermission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	permission, exists := r.permissions[id]
	if !exists {
		return nil, domain.ErrPermissionNotFound
	}
	return permission.Stored(), nil
}

// Update rewrites the flags of an existing permission. Subscriber and publisher are immutable.
func (r *MemoryPermissionRepository) Update(ctx context.Context, permission *domain.SubscriberPermission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.permissions[permission.ID]
	if !exists {
		return domain.ErrPermissionNotFound
	}
	updated := existing.Stored()
	updated.AllowAudio = permission.AllowAudio
	updated.AllowVideo = permission.AllowVideo
	r.permissions[permission.ID] = updated
	return nil
}

func (r *MemoryPermissionRepository) Delete(ctx context.Context, id domain.PermissionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	permission, exists := r.permissions[id]
	if !exists {
		return domain.ErrPermissionNotFound
	}
	delete(r.permissions, id)
	delete(r.pairs, pairKey{permission.SubscriberID, permission.PublisherID})
	if ids := r.bySubscriber[permission.SubscriberID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.bySubscriber, permission.SubscriberID)
		}
	}
	return nil
}

func (r *MemoryPermissionRepository) ListBySubscriber(ctx context.Context, subscriberID domain.UserID) ([]*domain.SubscriberPermission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.bySubscriber[subscriberID]
	result := make([]*domain.SubscriberPermission, 0, len(ids))
	for id := range ids {
		result = append(result, r.permissions[id].Stored())
	}
	return result, nil
}
