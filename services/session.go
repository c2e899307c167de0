package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/models"
	"github.com/cppla/forum/utils"
)

// lastActiveResolution bounds how often Resolve writes last_active_at.
const lastActiveResolution = time.Minute

// UserFinder is the slice of the credential store sessions need.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	TouchLastActive(ctx context.Context, username string, at time.Time) error
}

// Session is the client-held proof of a login.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionManager issues, resolves and revokes signed session tokens. Nothing
// but revocations is kept server side; losing them only re-admits tokens that
// were logged out early.
type SessionManager struct {
	issuer    *utils.TokenIssuer
	ttl       time.Duration
	blacklist utils.TokenBlacklist
	users     UserFinder
}

// NewSessionManager wires a SessionManager; ttl <= 0 means 72h.
func NewSessionManager(issuer *utils.TokenIssuer, ttl time.Duration, blacklist utils.TokenBlacklist, users UserFinder) *SessionManager {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &SessionManager{issuer: issuer, ttl: ttl, blacklist: blacklist, users: users}
}

// Start opens a session for user.
func (m *SessionManager) Start(user *models.User) (*Session, error) {
	token, claims, err := m.issuer.Generate(user.Username, m.ttl)
	if err != nil {
		return nil, apperr.Internal("issue session token", err)
	}
	return &Session{Token: token, Username: user.Username, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Resolve returns the user behind token. Invalid, expired, revoked or orphaned
// tokens are Unauthorized.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*models.User, error) {
	claims, err := m.issuer.Parse(token)
	if err != nil {
		return nil, apperr.Unauthorized("invalid token")
	}

	revoked, err := m.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindStorageUnavailable, Message: "check session revocation", Err: err}
	}
	if revoked {
		return nil, apperr.Unauthorized("token revoked")
	}

	user, err := m.users.FindByUsername(ctx, claims.Username)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Unauthorized("account no longer exists")
		}
		return nil, err
	}

	now := time.Now()
	if user.LastActiveAt == nil || now.Sub(*user.LastActiveAt) > lastActiveResolution {
		if err := m.users.TouchLastActive(ctx, user.Username, now); err != nil {
			utils.Logger.Warn("touch last active failed", zap.String("op", "resolve session"),
				zap.String("username", user.Username), zap.Error(err))
		} else {
			user.LastActiveAt = &now
		}
	}
	return user, nil
}

// End revokes token until it would have expired anyway.
func (m *SessionManager) End(ctx context.Context, token string) error {
	claims, err := m.issuer.Parse(token)
	if err != nil {
		return apperr.Unauthorized("invalid token")
	}
	expiresAt := time.Now().Add(m.ttl)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := m.blacklist.Revoke(ctx, claims.ID, expiresAt); err != nil {
		return &apperr.Error{Kind: apperr.KindStorageUnavailable, Message: "revoke session", Err: err}
	}
	return nil
}
