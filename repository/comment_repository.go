package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/models"
)

// CommentRepository is the comment half of the content store.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	FindByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByPost(ctx context.Context, postID uint) ([]models.Comment, error)
	Delete(ctx context.Context, id uint) error
	Count(ctx context.Context) (int64, error)
}

type commentRepository struct {
	conn
}

// Create inserts a comment on an existing post; a missing post yields NotFound.
func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if strings.TrimSpace(comment.Body) == "" {
		return apperr.Validation("body", "content cannot be empty")
	}
	if comment.Author == "" {
		return apperr.Validation("author", "author is required")
	}

	db, cancel := r.session(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Post{}).Where("id = ?", comment.PostID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("post")
		}
		comment.ID = 0
		if err := tx.Create(comment).Error; err != nil {
			if isForeignKeyViolation(err) {
				return apperr.NotFound("post")
			}
			return err
		}
		return nil
	})
	return apperr.FromStore("create comment", err)
}

func (r *commentRepository) FindByID(ctx context.Context, id uint) (*models.Comment, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var c models.Comment
	if err := db.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("comment")
		}
		return nil, apperr.FromStore("find comment", err)
	}
	return &c, nil
}

// ListByPost returns comments oldest first. An unknown post has no comments.
func (r *commentRepository) ListByPost(ctx context.Context, postID uint) ([]models.Comment, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	comments := []models.Comment{}
	err := db.Where("post_id = ?", postID).Order("created_at ASC").Order("id ASC").Find(&comments).Error
	if err != nil {
		return nil, apperr.FromStore("list comments", err)
	}
	return comments, nil
}

func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	db, cancel := r.session(ctx)
	defer cancel()

	res := db.Delete(&models.Comment{}, id)
	if res.Error != nil {
		return apperr.FromStore("delete comment", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("comment")
	}
	return nil
}

func (r *commentRepository) Count(ctx context.Context) (int64, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var n int64
	err := db.Model(&models.Comment{}).Count(&n).Error
	return n, apperr.FromStore("count comments", err)
}
