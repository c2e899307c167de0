package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/models"
)

// PostFilter narrows ListPosts. Zero values match everything.
type PostFilter struct {
	Search   string
	Category models.Category
	Author   string
	Limit    int
	Offset   int
}

// PostRepository is the post half of the content store.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context, filter PostFilter) ([]models.Post, error)
	IncrementViews(ctx context.Context, id uint) error
	Delete(ctx context.Context, id uint) error
	TopByViews(ctx context.Context, limit int) ([]models.Post, error)
	Count(ctx context.Context) (int64, error)
	SumViews(ctx context.Context) (int64, error)
}

type postRepository struct {
	conn
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if strings.TrimSpace(post.Title) == "" {
		return apperr.Validation("title", "title cannot be empty")
	}
	if strings.TrimSpace(post.Body) == "" {
		return apperr.Validation("body", "body cannot be empty")
	}
	if post.Category == "" {
		post.Category = models.CategoryGeneral
	}
	if !post.Category.Valid() {
		return apperr.Validation("category", "invalid category")
	}
	if post.Author == "" {
		return apperr.Validation("author", "author is required")
	}

	db, cancel := r.session(ctx)
	defer cancel()

	post.ID = 0
	post.Views = 0
	return apperr.FromStore("create post", db.Omit("Comments").Create(post).Error)
}

func (r *postRepository) FindByID(ctx context.Context, id uint) (*models.Post, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var post models.Post
	if err := db.First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("post")
		}
		return nil, apperr.FromStore("find post", err)
	}
	return &post, nil
}

// List returns posts newest first. Search is a case-insensitive substring
// match over title and body, always bound as a parameter.
func (r *postRepository) List(ctx context.Context, filter PostFilter) ([]models.Post, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	query := db.Model(&models.Post{}).Order("created_at DESC").Order("id DESC")
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := likePattern(search)
		query = query.Where("(title_fold LIKE ? ESCAPE '!' OR body_fold LIKE ? ESCAPE '!')", pattern, pattern)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Author != "" {
		query = query.Where("author = ?", filter.Author)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	posts := []models.Post{}
	if err := query.Find(&posts).Error; err != nil {
		return nil, apperr.FromStore("list posts", err)
	}
	return posts, nil
}

// IncrementViews adds one view in place; concurrent increments may interleave
// but never read-modify-write in Go.
func (r *postRepository) IncrementViews(ctx context.Context, id uint) error {
	db, cancel := r.session(ctx)
	defer cancel()

	res := db.Model(&models.Post{}).Where("id = ?", id).UpdateColumn("views", gorm.Expr("views + ?", 1))
	if res.Error != nil {
		return apperr.FromStore("increment views", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("post")
	}
	return nil
}

// Delete removes the post and all of its comments atomically.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	db, cancel := r.session(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("post")
		}
		return nil
	})
	return apperr.FromStore("delete post", err)
}

func (r *postRepository) TopByViews(ctx context.Context, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 10
	}
	db, cancel := r.session(ctx)
	defer cancel()

	posts := []models.Post{}
	err := db.Order("views DESC").Order("id DESC").Limit(limit).Find(&posts).Error
	if err != nil {
		return nil, apperr.FromStore("top posts", err)
	}
	return posts, nil
}

func (r *postRepository) Count(ctx context.Context) (int64, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var n int64
	err := db.Model(&models.Post{}).Count(&n).Error
	return n, apperr.FromStore("count posts", err)
}

func (r *postRepository) SumViews(ctx context.Context) (int64, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var sum int64
	err := db.Model(&models.Post{}).Select("COALESCE(SUM(views), 0)").Scan(&sum).Error
	return sum, apperr.FromStore("sum views", err)
}
