package services

import (
	"context"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/pkg/tracing"
	"screenshare/pkg/utils"
	"screenshare/pkg/validation"

	"go.uber.org/zap"
)

type sessionService struct {
	repo         ports.SessionRepository
	locker       ports.Locker
	events       ports.EventPublisher
	metrics      ports.Metrics
	logger       *zap.SugaredLogger
	defaultTitle string
}

func NewSessionService(
	repo ports.SessionRepository,
	locker ports.Locker,
	events ports.EventPublisher, // may be nil
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
	defaultTitle string,
) ports.SessionService {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &sessionService{
		repo:         repo,
		locker:       locker,
		events:       events,
		metrics:      metrics,
		logger:       logger,
		defaultTitle: defaultTitle,
	}
}

// StartSession stores a new active session. Any session the publisher still has open is ended
// first, under a per-publisher lock, so a publisher never has two active sessions.
func (s *sessionService) StartSession(ctx context.Context, params ports.CreateSessionParams) (*domain.StreamSession, error) {
	ctx, span := tracing.StartSpan(ctx, "session.start")
	defer span.End()

	session, err := s.buildSession(params)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracing.PublisherIDKey.String(string(session.PublisherID)), tracing.RoomKey.String(session.RoomID))

	release, err := s.locker.Acquire(ctx, "publisher:"+string(session.PublisherID))
	if err != nil {
		return nil, mapRepoError(err, "lock publisher")
	}
	defer release()

	previous, err := s.repo.FindActiveByPublisher(ctx, session.PublisherID)
	if err != nil {
		return nil, mapRepoError(err, "find active session")
	}
	for _, prev := range previous {
		if _, err := s.end(ctx, prev); err != nil {
			return nil, err
		}
		s.logger.Infow("ended previous session on restart",
			"session_id", prev.ID,
			"publisher_id", prev.PublisherID,
		)
	}

	if err := s.repo.Create(ctx, session); err != nil {
		tracing.RecordError(ctx, err)
		return nil, mapRepoError(err, "create session")
	}

	s.metrics.SessionStarted()
	s.publish(ctx, domain.SessionStarted, session)
	s.logger.Infow("session started",
		"session_id", session.ID,
		"publisher_id", session.PublisherID,
		"room_id", session.RoomID,
	)

	return session, nil
}

func (s *sessionService) buildSession(params ports.CreateSessionParams) (*domain.StreamSession, error) {
	if err := validation.ValidateIdentifier(string(params.PublisherID), "publisherId"); err != nil {
		return nil, invalidInput(err)
	}

	roomID := params.RoomID
	if roomID == "" {
		roomID = GenerateRoomID(params.PublisherID)
	} else if err := validation.ValidateRoomName(roomID); err != nil {
		return nil, invalidInput(err)
	}

	title := utils.SanitizeString(params.Title)
	if title == "" {
		title = s.defaultTitle
	}
	if err := validation.ValidateTitle(title); err != nil {
		return nil, invalidInput(err)
	}

	session := &domain.StreamSession{
		PublisherID:   params.PublisherID,
		PublisherName: utils.FirstNonEmpty(utils.SanitizeString(params.PublisherName), string(params.PublisherID)),
		RoomID:        roomID,
		IsActive:      true,
		Title:         title,
		Description:   utils.SanitizeString(params.Description),
		GameName:      utils.SanitizeString(params.GameName),
		League:        utils.SanitizeString(params.League),
		Match:         utils.SanitizeString(params.Match),
	}

	for field, value := range map[string]string{
		"publisherName": session.PublisherName,
		"description":   session.Description,
		"gameName":      session.GameName,
		"league":        session.League,
		"match":         session.Match,
	} {
		if err := validation.ValidateText(value, field); err != nil {
			return nil, invalidInput(err)
		}
	}

	return session, nil
}

// EndSession is idempotent: ending an inactive session returns it unchanged.
func (s *sessionService) EndSession(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error) {
	ctx, span := tracing.StartSpan(ctx, "session.end")
	defer span.End()
	span.SetAttributes(tracing.SessionIDKey.String(string(id)))

	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "get session")
	}

	changed, err := s.end(ctx, session)
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Infow("session ended",
			"session_id", session.ID,
			"publisher_id", session.PublisherID,
		)
	}
	return session, nil
}

func (s *sessionService) end(ctx context.Context, session *domain.StreamSession) (bool, error) {
	if !session.End(utils.Now()) {
		return false, nil
	}
	if err := s.repo.Update(ctx, session); err != nil {
		return false, mapRepoError(err, "end session")
	}
	s.metrics.SessionEnded()
	s.publish(ctx, domain.SessionEnded, session)
	return true, nil
}

func (s *sessionService) GetSession(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "get session")
	}
	return session, nil
}

func (s *sessionService) GetActiveSession(ctx context.Context, publisherID domain.UserID) (*domain.StreamSession, error) {
	active, err := s.repo.FindActiveByPublisher(ctx, publisherID)
	if err != nil {
		return nil, mapRepoError(err, "find active session")
	}
	return newestActive(active), nil
}

func (s *sessionService) ListActiveSessions(ctx context.Context) ([]*domain.StreamSession, error) {
	sessions, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, mapRepoError(err, "list active sessions")
	}
	if sessions == nil {
		sessions = []*domain.StreamSession{}
	}
	return sessions, nil
}

func (s *sessionService) publish(ctx context.Context, eventType domain.SessionEventType, session *domain.StreamSession) {
	if s.events == nil {
		return
	}
	event := domain.SessionEvent{
		Type:        eventType,
		SessionID:   session.ID,
		PublisherID: session.PublisherID,
		RoomID:      session.RoomID,
		At:          utils.Now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		// Watchers still catch up on their next poll.
		s.logger.Warnw("failed to publish session event",
			"type", eventType,
			"session_id", session.ID,
			"error", err,
		)
	}
}

// newestActive picks the most recently created active session. More than one only
// appears if the store was written outside this service.
func newestActive(sessions []*domain.StreamSession) *domain.StreamSession {
	var newest *domain.StreamSession
	for _, s := range sessions {
		if !s.IsActive {
			continue
		}
		if newest == nil || s.CreatedAt.After(newest.CreatedAt) {
			newest = s
		}
	}
	return newest
}
