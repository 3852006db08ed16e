package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	apperrors "screenshare/pkg/errors"
	"screenshare/pkg/tracing"
	"screenshare/pkg/utils"
	"screenshare/pkg/validation"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type permissionService struct {
	permissions    ports.PermissionRepository
	sessions       ports.SessionRepository
	metrics        ports.Metrics
	logger         *zap.SugaredLogger
	maxConcurrency int
}

func NewPermissionService(
	permissions ports.PermissionRepository,
	sessions ports.SessionRepository,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
	maxConcurrency int,
) ports.PermissionService {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &permissionService{
		permissions:    permissions,
		sessions:       sessions,
		metrics:        metrics,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

func (s *permissionService) GetAvailableStreams(ctx context.Context, subscriberID domain.UserID) (result []*domain.SubscriberPermission, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "permissions.available_streams")
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		span.End()
		s.metrics.ObserveStreamQuery(time.Since(start), err)
	}()
	span.SetAttributes(tracing.SubscriberIDKey.String(string(subscriberID)))

	if err := validation.ValidateIdentifier(string(subscriberID), "subscriberId"); err != nil {
		return nil, invalidInput(err)
	}

	perms, err := s.permissions.ListBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, mapRepoError(err, "list permissions")
	}
	sortPermissions(perms)

	live, err := s.resolveLive(ctx, perms)
	if err != nil {
		return nil, err
	}

	result = make([]*domain.SubscriberPermission, 0, len(perms))
	for _, p := range perms {
		enriched := p.Stored()
		enriched.StreamSession = live[p.PublisherID].Clone()
		result = append(result, enriched)
	}
	return result, nil
}

// resolveLive looks up the active session of every distinct grantor, a bounded number at a time.
func (s *permissionService) resolveLive(ctx context.Context, perms []*domain.SubscriberPermission) (map[domain.UserID]*domain.StreamSession, error) {
	var mu sync.Mutex
	live := make(map[domain.UserID]*domain.StreamSession)
	seen := make(map[domain.UserID]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	for _, p := range perms {
		publisherID := p.PublisherID
		if _, ok := seen[publisherID]; ok {
			continue
		}
		seen[publisherID] = struct{}{}

		g.Go(func() error {
			sessions, err := s.sessions.FindActiveByPublisher(gctx, publisherID)
			if err != nil {
				return mapRepoError(err, "find active session")
			}
			if active := newestActive(sessions); active != nil {
				mu.Lock()
				live[publisherID] = active
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return live, nil
}

// GetPermission returns a single permission joined with the grantor's live session.
func (s *permissionService) GetPermission(ctx context.Context, id domain.PermissionID) (*domain.SubscriberPermission, error) {
	perm, err := s.permissions.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "get permission")
	}

	sessions, err := s.sessions.FindActiveByPublisher(ctx, perm.PublisherID)
	if err != nil {
		return nil, mapRepoError(err, "find active session")
	}

	enriched := perm.Stored()
	enriched.StreamSession = newestActive(sessions).Clone()
	return enriched, nil
}

func (s *permissionService) ListPermissions(ctx context.Context, subscriberID domain.UserID) ([]*domain.SubscriberPermission, error) {
	if err := validation.ValidateIdentifier(string(subscriberID), "subscriberId"); err != nil {
		return nil, invalidInput(err)
	}

	perms, err := s.permissions.ListBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, mapRepoError(err, "list permissions")
	}
	if perms == nil {
		perms = []*domain.SubscriberPermission{}
	}
	sortPermissions(perms)
	return perms, nil
}

func (s *permissionService) GrantPermission(ctx context.Context, params ports.GrantPermissionParams) (*domain.SubscriberPermission, error) {
	if err := validation.ValidateIdentifier(string(params.SubscriberID), "subscriberId"); err != nil {
		return nil, invalidInput(err)
	}
	if err := validation.ValidateIdentifier(string(params.PublisherID), "publisherId"); err != nil {
		return nil, invalidInput(err)
	}
	if params.SubscriberID == params.PublisherID {
		return nil, apperrors.NewInvalidInputError("a publisher cannot be granted access to their own stream")
	}

	perm := &domain.SubscriberPermission{
		SubscriberID: params.SubscriberID,
		PublisherID:  params.PublisherID,
		AllowAudio:   params.AllowAudio,
		AllowVideo:   params.AllowVideo,
		GrantedBy:    params.GrantedBy,
		GrantedAt:    utils.Now(),
	}
	if err := s.permissions.Create(ctx, perm); err != nil {
		return nil, mapRepoError(err, "create permission")
	}

	s.logger.Infow("permission granted",
		"permission_id", perm.ID,
		"subscriber_id", perm.SubscriberID,
		"publisher_id", perm.PublisherID,
		"allow_audio", perm.AllowAudio,
		"allow_video", perm.AllowVideo,
	)
	return perm, nil
}

func (s *permissionService) UpdatePermission(ctx context.Context, id domain.PermissionID, params ports.UpdatePermissionParams) (*domain.SubscriberPermission, error) {
	if params.AllowAudio == nil && params.AllowVideo == nil {
		return nil, apperrors.NewInvalidInputError("nothing to update")
	}

	perm, err := s.permissions.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "get permission")
	}
	if params.AllowAudio != nil {
		perm.AllowAudio = *params.AllowAudio
	}
	if params.AllowVideo != nil {
		perm.AllowVideo = *params.AllowVideo
	}

	if err := s.permissions.Update(ctx, perm); err != nil {
		return nil, mapRepoError(err, "update permission")
	}

	s.logger.Infow("permission updated",
		"permission_id", perm.ID,
		"allow_audio", perm.AllowAudio,
		"allow_video", perm.AllowVideo,
	)
	return perm, nil
}

func (s *permissionService) RevokePermission(ctx context.Context, id domain.PermissionID) error {
	if err := s.permissions.Delete(ctx, id); err != nil {
		return mapRepoError(err, "delete permission")
	}
	s.logger.Infow("permission revoked", "permission_id", id)
	return nil
}

// sortPermissions orders by grant time, then id, so repeated polls render in a stable order.
func sortPermissions(perms []*domain.SubscriberPermission) {
	sort.SliceStable(perms, func(i, j int) bool {
		if !perms[i].GrantedAt.Equal(perms[j].GrantedAt) {
			return perms[i].GrantedAt.Before(perms[j].GrantedAt)
		}
		return perms[i].ID < perms[j].ID
	})
}
