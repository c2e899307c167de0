package controllers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/forum/middleware"
	"github.com/cppla/forum/models"
	"github.com/cppla/forum/services"
	"github.com/cppla/forum/utils"
)

// PostController manages posts and comments.
type PostController struct {
	svc *services.ForumService
}

// NewPostController creates a new PostController instance.
func NewPostController(svc *services.ForumService) *PostController {
	return &PostController{svc: svc}
}

// CreatePost allows authenticated users to create new posts.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req services.CreatePostInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, badPayload())
		return
	}

	post, err := p.svc.CreatePost(ctx.Request.Context(), middleware.CurrentUser(ctx), req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"id": post.ID, "post": post})
}

// ListPosts returns posts newest first, optionally filtered by search text,
// category or author.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	search := strings.TrimSpace(ctx.Query("search"))
	if search == "" {
		search = strings.TrimSpace(ctx.Query("q"))
	}

	posts, err := p.svc.ListPosts(ctx.Request.Context(), services.ListPostsInput{
		Search:   search,
		Category: models.Category(strings.TrimSpace(ctx.Query("category"))),
		Author:   strings.TrimSpace(ctx.Query("author")),
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		utils.Fail(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{
		"items": posts,
		"pagination": gin.H{
			"page":      page,
			"page_size": pageSize,
			"has_more":  len(posts) == pageSize,
		},
	})
}

// GetPost returns a post with its comments and counts the view.
func (p *PostController) GetPost(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	post, err := p.svc.ViewPost(ctx.Request.Context(), id)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

func (p *PostController) TopPosts(ctx *gin.Context) {
	limit := 10
	if n, err := strconv.Atoi(ctx.Query("limit")); err == nil && n > 0 {
		limit = n
	}
	posts, err := p.svc.TopPosts(ctx.Request.Context(), limit)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"items": posts})
}

func (p *PostController) ListComments(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	comments, err := p.svc.ListComments(ctx.Request.Context(), id)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"items": comments})
}

// CreateComment adds a comment to an existing post.
func (p *PostController) CreateComment(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	var req services.CreateCommentInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, badPayload())
		return
	}

	comment, err := p.svc.CreateComment(ctx.Request.Context(), middleware.CurrentUser(ctx), id, req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"id": comment.ID, "comment": comment})
}

// DeletePost removes a post and its comments. Admin only.
func (p *PostController) DeletePost(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	if err := p.svc.DeletePost(ctx.Request.Context(), middleware.CurrentUser(ctx), id); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// DeleteComment removes a single comment. Admin only.
func (p *PostController) DeleteComment(ctx *gin.Context) {
	id, err := parseID(ctx, "commentId")
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	if err := p.svc.DeleteComment(ctx.Request.Context(), middleware.CurrentUser(ctx), id); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "comment deleted"})
}

func (p *PostController) Categories(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"items": p.svc.Categories()})
}
