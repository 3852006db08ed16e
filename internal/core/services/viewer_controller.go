package services

import (
	"context"
	"net/http"
	"sync"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	apperrors "screenshare/pkg/errors"
	"screenshare/pkg/tracing"

	"go.uber.org/zap"
)

const (
	roleSubscriber     = "subscriber"
	viewerVideoQuality = "ultra"
)

// ViewerStatus is a snapshot of what a subscriber is currently watching.
type ViewerStatus struct {
	Watching     bool                         `json:"watching"`
	Connected    bool                         `json:"connected"`
	AudioEnabled bool                         `json:"audioEnabled"`
	Permission   *domain.SubscriberPermission `json:"permission,omitempty"`
}

// ViewerController joins a subscriber to a publisher's room in receive-mostly mode and keeps
// the subscriber's microphone and camera within what the permission allows.
type ViewerController struct {
	permissions  ports.PermissionService
	tokens       ports.TokenIssuer
	client       ports.ConferenceClient
	metrics      ports.Metrics
	logger       *zap.SugaredLogger
	subscriberID domain.UserID
	appName      string
	notify       func(ViewerStatus)

	mu     sync.Mutex
	status ViewerStatus
	// generation invalidates listeners registered for an earlier room.
	generation uint64
}

func NewViewerController(
	permissions ports.PermissionService,
	tokens ports.TokenIssuer,
	client ports.ConferenceClient,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
	subscriberID domain.UserID,
	appName string,
	notify func(ViewerStatus),
) *ViewerController {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if notify == nil {
		notify = func(ViewerStatus) {}
	}
	return &ViewerController{
		permissions:  permissions,
		tokens:       tokens,
		client:       client,
		metrics:      metrics,
		logger:       logger,
		subscriberID: subscriberID,
		appName:      appName,
		notify:       notify,
	}
}

func (v *ViewerController) Status() ViewerStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshot()
}

func (v *ViewerController) snapshot() ViewerStatus {
	st := v.status
	st.Permission = v.status.Permission.Clone()
	return st
}

// Watch joins the room of the publisher behind permissionID. The permission must belong to
// this subscriber and its publisher must be live. Any room already being watched is left first.
func (v *ViewerController) Watch(ctx context.Context, permissionID domain.PermissionID) (*domain.SubscriberPermission, error) {
	ctx, span := tracing.StartSpan(ctx, "viewer.watch")
	defer span.End()
	span.SetAttributes(tracing.PermissionIDKey.String(string(permissionID)), tracing.SubscriberIDKey.String(string(v.subscriberID)))

	perm, err := v.watch(ctx, permissionID)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return perm, nil
}

func (v *ViewerController) watch(ctx context.Context, permissionID domain.PermissionID) (*domain.SubscriberPermission, error) {
	perm, err := v.permissions.GetPermission(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if perm.SubscriberID != v.subscriberID {
		return nil, apperrors.NewForbiddenError("permission belongs to another subscriber")
	}
	if !perm.IsLive() {
		return nil, apperrors.WrapError(domain.ErrPublisherNotLive, apperrors.ErrCodeConflict, domain.ErrPublisherNotLive.Error(), http.StatusConflict)
	}

	v.Leave()

	token, err := v.tokens.IssueToken(ctx, perm.StreamSession.RoomID, &domain.UserIdentity{
		ID:   string(v.subscriberID),
		Name: subscriberDisplayName,
	})
	if err != nil {
		return nil, err
	}

	if err := v.client.CreateRoom(ctx, SubscriberProfile(perm.StreamSession.RoomID, token, perm, v.appName)); err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.status = ViewerStatus{Watching: true, Permission: perm}
	st := v.snapshot()
	v.mu.Unlock()
	v.listen(gen, perm)

	v.logger.Infow("subscriber watching",
		"subscriber_id", v.subscriberID,
		"publisher_id", perm.PublisherID,
		"room_id", perm.StreamSession.RoomID,
	)
	v.notify(st)
	return perm.Clone(), nil
}

func (v *ViewerController) listen(gen uint64, perm *domain.SubscriberPermission) {
	v.client.AddEventListener(ports.EventVideoConferenceJoined, func(map[string]interface{}) {
		if !v.update(gen, func(st *ViewerStatus) bool {
			if st.Connected {
				return false
			}
			st.Connected = true
			return true
		}) {
			return
		}
		v.metrics.ConferenceJoined(roleSubscriber)
		ctx := context.Background()
		if err := v.client.ExecuteCommand(ctx, ports.CommandSetVideoQuality, viewerVideoQuality); err != nil {
			v.logger.Warnw("failed to raise video quality", "subscriber_id", v.subscriberID, "error", err)
		}
	})
	v.client.AddEventListener(ports.EventAudioMuteStatusChanged, func(data map[string]interface{}) {
		muted := boolField(data, "muted")
		if !muted && !perm.AllowAudio {
			v.logger.Infow("muting unpermitted microphone", "subscriber_id", v.subscriberID)
			if err := v.client.MuteAudio(context.Background()); err != nil {
				v.logger.Warnw("failed to mute microphone", "subscriber_id", v.subscriberID, "error", err)
			}
			return
		}
		v.update(gen, func(st *ViewerStatus) bool {
			st.AudioEnabled = !muted
			return true
		})
	})
	v.client.AddEventListener(ports.EventVideoMuteStatusChanged, func(data map[string]interface{}) {
		if !boolField(data, "muted") && !perm.AllowVideo {
			v.logger.Infow("muting unpermitted camera", "subscriber_id", v.subscriberID)
			if err := v.client.MuteVideo(context.Background()); err != nil {
				v.logger.Warnw("failed to mute camera", "subscriber_id", v.subscriberID, "error", err)
			}
		}
	})
	v.client.AddEventListener(ports.EventVideoConferenceLeft, func(map[string]interface{}) {
		v.mu.Lock()
		current := v.generation == gen && v.status.Watching
		v.mu.Unlock()
		if current {
			v.Leave()
		}
	})
}

// update applies fn while gen is still the current room and notifies when fn reports a change.
func (v *ViewerController) update(gen uint64, fn func(*ViewerStatus) bool) bool {
	v.mu.Lock()
	if v.generation != gen || !v.status.Watching || !fn(&v.status) {
		v.mu.Unlock()
		return false
	}
	st := v.snapshot()
	v.mu.Unlock()
	v.notify(st)
	return true
}

// Leave disposes the current room. It is a no-op when nothing is being watched.
func (v *ViewerController) Leave() {
	v.mu.Lock()
	if !v.status.Watching {
		v.mu.Unlock()
		return
	}
	connected := v.status.Connected
	v.generation++
	v.status = ViewerStatus{}
	v.mu.Unlock()

	v.client.Dispose()
	if connected {
		v.metrics.ConferenceLeft(roleSubscriber)
	}
	v.logger.Infow("subscriber left stream", "subscriber_id", v.subscriberID)
	v.notify(ViewerStatus{})
}

// ToggleAudio flips the subscriber's microphone. Without an audio permission it fails
// and nothing reaches the SDK.
func (v *ViewerController) ToggleAudio(ctx context.Context) error {
	v.mu.Lock()
	watching, perm, enabled := v.status.Watching, v.status.Permission, v.status.AudioEnabled
	v.mu.Unlock()
	if !watching {
		return nil
	}
	if !perm.AllowAudio {
		return apperrors.WrapError(domain.ErrAudioNotPermitted, apperrors.ErrCodeForbidden, domain.ErrAudioNotPermitted.Error(), http.StatusForbidden)
	}
	if enabled {
		return v.client.MuteAudio(ctx)
	}
	return v.client.UnmuteAudio(ctx)
}

func (v *ViewerController) Close() {
	v.Leave()
	v.client.Dispose()
}
