package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/forum/services"
	"github.com/cppla/forum/utils"
)

// StatsController provides forum statistics such as counts and daily page views.
type StatsController struct {
	svc *services.ForumService
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(svc *services.ForumService) *StatsController {
	return &StatsController{svc: svc}
}

// GetStats returns aggregate statistics computed from the store on every call.
func (s *StatsController) GetStats(ctx *gin.Context) {
	stats, err := s.svc.Stats(ctx.Request.Context())
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, stats)
}
