package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/forum/middleware"
	"github.com/cppla/forum/services"
	"github.com/cppla/forum/utils"
)

// AuthController handles registration, sessions and user profiles.
type AuthController struct {
	svc *services.ForumService
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(svc *services.ForumService) *AuthController {
	return &AuthController{svc: svc}
}

// Register accepts JSON (avatar as base64) or a multipart form with an
// optional "avatar" file.
func (a *AuthController) Register(ctx *gin.Context) {
	var req services.RegisterInput
	if isMultipart(ctx) {
		req.Username = ctx.PostForm("username")
		req.DisplayName = ctx.PostForm("display_name")
		req.Password = ctx.PostForm("password")
		req.Email = ctx.PostForm("email")
		req.Bio = ctx.PostForm("bio")
		avatar, err := formAvatar(ctx, a.svc.AvatarMaxBytes())
		if err != nil {
			utils.Fail(ctx, err)
			return
		}
		req.Avatar = avatar
	} else if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, badPayload())
		return
	}

	user, err := a.svc.Register(ctx.Request.Context(), req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Respond(ctx, http.StatusCreated, 0, "success", gin.H{"user": user})
}

// Login exchanges credentials for a bearer token.
func (a *AuthController) Login(ctx *gin.Context) {
	var req services.LoginInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, badPayload())
		return
	}

	session, user, err := a.svc.Login(ctx.Request.Context(), req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"user":       user,
	})
}

// Logout revokes the token until its expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	if err := a.svc.Logout(ctx.Request.Context(), middleware.CurrentToken(ctx)); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "logged out"})
}

func (a *AuthController) Me(ctx *gin.Context) {
	user, err := a.svc.Me(ctx.Request.Context(), middleware.CurrentUser(ctx))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, user)
}

// UpdateProfile changes bio, email or avatar of the authenticated user.
// Multipart forms only touch the fields that are present.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	actor := middleware.CurrentUser(ctx)
	var req services.ProfileInput
	if isMultipart(ctx) {
		req.Bio = formString(ctx, "bio")
		req.Email = formString(ctx, "email")
		avatar, err := formAvatar(ctx, a.svc.AvatarMaxBytes())
		if err != nil {
			utils.Fail(ctx, err)
			return
		}
		req.Avatar = avatar
	} else if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, badPayload())
		return
	}

	username := ""
	if actor != nil {
		username = actor.Username
	}
	if p := strings.TrimSpace(ctx.Param("username")); p != "" {
		username = p
	}

	user, err := a.svc.UpdateProfile(ctx.Request.Context(), actor, username, req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, user)
}

// GetUserPublic returns the public profile of a user by username.
func (a *AuthController) GetUserPublic(ctx *gin.Context) {
	profile, err := a.svc.GetUser(ctx.Request.Context(), strings.TrimSpace(ctx.Param("username")))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, profile)
}

// Avatar streams the stored avatar blob with its MIME type.
func (a *AuthController) Avatar(ctx *gin.Context) {
	data, mime, err := a.svc.Avatar(ctx.Request.Context(), strings.TrimSpace(ctx.Param("username")))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	ctx.Header("Cache-Control", "public, max-age=300")
	ctx.Header("X-Content-Type-Options", "nosniff")
	ctx.Data(http.StatusOK, mime, data)
}
