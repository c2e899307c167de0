package controllers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/forum/middleware"
	"github.com/cppla/forum/models"
	"github.com/cppla/forum/services"
	"github.com/cppla/forum/utils"
)

// AdminController exposes role management.
type AdminController struct {
	svc *services.ForumService
}

func NewAdminController(svc *services.ForumService) *AdminController {
	return &AdminController{svc: svc}
}

// SetRole promotes or demotes a user.
func (a *AdminController) SetRole(ctx *gin.Context) {
	var req struct {
		Role models.Role `json:"role"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, badPayload())
		return
	}

	user, err := a.svc.SetRole(ctx.Request.Context(), middleware.CurrentUser(ctx),
		strings.TrimSpace(ctx.Param("username")), req.Role)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, user)
}
