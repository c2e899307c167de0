package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/forum/middleware"
	"github.com/cppla/forum/services"
	"github.com/cppla/forum/utils"
)

// NotificationController serves the pull-based notification inbox.
type NotificationController struct {
	svc *services.ForumService
}

func NewNotificationController(svc *services.ForumService) *NotificationController {
	return &NotificationController{svc: svc}
}

// List returns the caller's notifications and marks the unread ones read.
func (n *NotificationController) List(ctx *gin.Context) {
	list, err := n.svc.ListNotifications(ctx.Request.Context(), middleware.CurrentUser(ctx))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"items": list})
}

func (n *NotificationController) UnreadCount(ctx *gin.Context) {
	count, err := n.svc.UnreadCount(ctx.Request.Context(), middleware.CurrentUser(ctx))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"unread": count})
}
