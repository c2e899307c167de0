// Package repository holds the credential and content stores. Stores trust
// their callers: they enforce integrity, never authorization.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/models"
)

// Store bundles the repositories over one connection pool or one transaction.
type Store struct {
	db      *gorm.DB
	timeout time.Duration

	Users         UserRepository
	Posts         PostRepository
	Comments      CommentRepository
	Notifications NotificationRepository
	PageViews     PageViewRepository
}

// NewStore builds the repositories. timeout bounds every single operation;
// zero means no bound beyond the caller's context.
func NewStore(db *gorm.DB, timeout time.Duration) *Store {
	c := conn{db: db, timeout: timeout}
	return &Store{
		db:            db,
		timeout:       timeout,
		Users:         &userRepository{conn: c},
		Posts:         &postRepository{conn: c},
		Comments:      &commentRepository{conn: c},
		Notifications: &notificationRepository{conn: c},
		PageViews:     &pageViewRepository{conn: c},
	}
}

// Transaction runs fn against a Store bound to a single database transaction.
// fn must only use the Store it is given.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx, s.timeout))
	})
	return apperr.FromStore("transaction", err)
}

// Stats are the display counters, computed from the store on every call.
type Stats struct {
	UserCount    int64 `json:"user_count"`
	PostCount    int64 `json:"post_count"`
	CommentCount int64 `json:"comment_count"`
	ViewSum      int64 `json:"view_sum"`
}

// Stats reads every counter inside one transaction so they are mutually consistent.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.Transaction(ctx, func(tx *Store) error {
		var err error
		if st.UserCount, err = tx.Users.Count(ctx); err != nil {
			return err
		}
		if st.PostCount, err = tx.Posts.Count(ctx); err != nil {
			return err
		}
		if st.CommentCount, err = tx.Comments.Count(ctx); err != nil {
			return err
		}
		st.ViewSum, err = tx.Posts.SumViews(ctx)
		return err
	})
	return st, err
}

type conn struct {
	db      *gorm.DB
	timeout time.Duration
}

// session returns a handle scoped to ctx plus the operation timeout.
func (c conn) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if c.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		return c.db.WithContext(ctx), cancel
	}
	return c.db.WithContext(ctx), func() {}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

func isForeignKeyViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key constraint")
}

// likePattern builds a substring pattern folded like the post search
// columns; '!' is the escape character.
func likePattern(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(models.Fold(s)) + "%"
}
