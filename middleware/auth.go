package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/models"
	"github.com/cppla/forum/utils"
)

const (
	// ContextUserKey stores the resolved *models.User inside Gin context.
	ContextUserKey = "current_user"
	// ContextTokenKey stores the raw bearer token so logout can revoke it.
	ContextTokenKey = "session_token"
)

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// AuthRequired rejects requests without a valid, unrevoked session token.
func AuthRequired(auth Authenticator) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := bearerToken(ctx)
		if err != nil {
			utils.Fail(ctx, err)
			ctx.Abort()
			return
		}

		user, err := auth.Authenticate(ctx.Request.Context(), token)
		if err != nil {
			utils.Fail(ctx, err)
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserKey, user)
		ctx.Set(ContextTokenKey, token)
		ctx.Next()
	}
}

// OptionalAuth attaches the user when a valid token is presented and lets
// anonymous requests through otherwise. Only storage failures abort.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := bearerToken(ctx)
		if err != nil {
			ctx.Next()
			return
		}
		user, err := auth.Authenticate(ctx.Request.Context(), token)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindUnauthorized {
				ctx.Next()
				return
			}
			utils.Fail(ctx, err)
			ctx.Abort()
			return
		}
		ctx.Set(ContextUserKey, user)
		ctx.Set(ContextTokenKey, token)
		ctx.Next()
	}
}

// CurrentUser returns the authenticated user or nil for anonymous requests.
func CurrentUser(ctx *gin.Context) *models.User {
	if v, ok := ctx.Get(ContextUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// CurrentToken returns the bearer token of an authenticated request.
func CurrentToken(ctx *gin.Context) string {
	return ctx.GetString(ContextTokenKey)
}

func bearerToken(ctx *gin.Context) (string, error) {
	authHeader := utils.AuthorizationHeader(ctx)
	if authHeader == "" {
		return "", apperr.Unauthorized("authorization header missing")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperr.Unauthorized("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", apperr.Unauthorized("empty bearer token")
	}
	return token, nil
}
