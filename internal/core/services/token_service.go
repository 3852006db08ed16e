package services

import (
	"context"
	"crypto/rsa"
	"strings"
	"time"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	apperrors "screenshare/pkg/errors"
	"screenshare/pkg/utils"
	"screenshare/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const defaultGuestName = "Guest"

// Token outcomes reported to metrics.
const (
	TokenOutcomeIssued        = "issued"
	TokenOutcomeInvalidInput  = "invalid_input"
	TokenOutcomeConfiguration = "configuration_error"
	TokenOutcomeSigningFailed = "signing_failed"
)

type TokenConfig struct {
	AppID         string
	KeyID         string
	PrivateKey    string
	Audience      string
	Issuer        string
	TTL           time.Duration
	NotBeforeSkew time.Duration
}

// ConferenceUser is the context.user claim.
type ConferenceUser struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Moderator bool   `json:"moderator"`
}

type ConferenceContext struct {
	User ConferenceUser `json:"user"`
}

// ConferenceClaims keeps aud as a plain string; jwt.RegisteredClaims would encode it as an array.
type ConferenceClaims struct {
	Audience  string            `json:"aud"`
	Issuer    string            `json:"iss"`
	Subject   string            `json:"sub"`
	Room      string            `json:"room"`
	Context   ConferenceContext `json:"context"`
	IssuedAt  *jwt.NumericDate  `json:"iat"`
	NotBefore *jwt.NumericDate  `json:"nbf"`
	ExpiresAt *jwt.NumericDate  `json:"exp"`
}

func (c ConferenceClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c ConferenceClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c ConferenceClaims) GetNotBefore() (*jwt.NumericDate, error)      { return c.NotBefore, nil }
func (c ConferenceClaims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c ConferenceClaims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c ConferenceClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

// Signer signs conference claims.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
}

// RSASigner signs with RS256 and stamps the key id into the header. The key is parsed once;
// a parse failure is reported on every Sign call.
type RSASigner struct {
	keyID string
	key   *rsa.PrivateKey
	err   error
}

func NewRSASigner(keyID, privateKeyPEM string) *RSASigner {
	normalized := strings.ReplaceAll(privateKeyPEM, `\n`, "\n")
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalized))
	return &RSASigner{keyID: keyID, key: key, err: err}
}

func (s *RSASigner) Sign(claims jwt.Claims) (string, error) {
	if s.err != nil {
		return "", apperrors.NewSigningError(s.err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", apperrors.NewSigningError(err)
	}
	return signed, nil
}

type tokenService struct {
	cfg     TokenConfig
	signer  Signer
	metrics ports.Metrics
	logger  *zap.SugaredLogger
}

// NewTokenService builds the issuer. signer may be nil, in which case an RSASigner is
// created from cfg when signing material is present.
func NewTokenService(cfg TokenConfig, signer Signer, metrics ports.Metrics, logger *zap.SugaredLogger) ports.TokenIssuer {
	if signer == nil && cfg.KeyID != "" && cfg.PrivateKey != "" {
		signer = NewRSASigner(cfg.KeyID, cfg.PrivateKey)
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &tokenService{cfg: cfg, signer: signer, metrics: metrics, logger: logger}
}

func (s *tokenService) IssueToken(ctx context.Context, roomName string, user *domain.UserIdentity) (string, error) {
	if s.cfg.AppID == "" || s.cfg.KeyID == "" || s.cfg.PrivateKey == "" || s.signer == nil {
		s.metrics.TokenIssued(TokenOutcomeConfiguration)
		s.logger.Errorw("conference token requested but signing configuration is incomplete",
			"has_app_id", s.cfg.AppID != "",
			"has_key_id", s.cfg.KeyID != "",
			"has_private_key", s.cfg.PrivateKey != "",
		)
		return "", apperrors.NewConfigurationError("server is missing conference signing configuration")
	}

	if err := validation.ValidateNonEmptyString(roomName, "roomName"); err != nil {
		s.metrics.TokenIssued(TokenOutcomeInvalidInput)
		return "", invalidInput(err)
	}
	if err := validation.ValidateStringLength(roomName, 1, validation.MaxRoomNameLength, "roomName"); err != nil {
		s.metrics.TokenIssued(TokenOutcomeInvalidInput)
		return "", invalidInput(err)
	}
	if user != nil {
		if err := validation.ValidateOptionalEmail(user.Email); err != nil {
			s.metrics.TokenIssued(TokenOutcomeInvalidInput)
			return "", invalidInput(err)
		}
	}

	claims := s.buildClaims(roomName, user)
	token, err := s.signer.Sign(claims)
	if err != nil {
		s.metrics.TokenIssued(TokenOutcomeSigningFailed)
		s.logger.Errorw("failed to sign conference token", "room", roomName, "error", err)
		if !apperrors.IsAppError(err) {
			err = apperrors.NewSigningError(err)
		}
		return "", err
	}

	s.metrics.TokenIssued(TokenOutcomeIssued)
	s.logger.Debugw("conference token issued", "room", roomName, "user_id", claims.Context.User.ID)
	return token, nil
}

func (s *tokenService) buildClaims(roomName string, user *domain.UserIdentity) ConferenceClaims {
	if user == nil {
		user = &domain.UserIdentity{}
	}

	now := utils.Now().Truncate(time.Second)
	return ConferenceClaims{
		Audience: s.cfg.Audience,
		Issuer:   s.cfg.Issuer,
		Subject:  s.cfg.AppID,
		Room:     roomName,
		Context: ConferenceContext{
			User: ConferenceUser{
				ID:        user.ID,
				Name:      utils.FirstNonEmpty(user.Name, defaultGuestName),
				Email:     user.Email,
				Moderator: user.Moderator,
			},
		},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-s.cfg.NotBeforeSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
	}
}
