package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/models"
)

// NotificationRepository stores notifications. Rows are appended and marked
// read, never deleted.
type NotificationRepository interface {
	Create(ctx context.Context, notifications ...*models.Notification) error
	ListForRecipient(ctx context.Context, recipient string, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, recipient string) (int64, error)
	MarkRead(ctx context.Context, recipient string, ids []uint) (int64, error)
}

type notificationRepository struct {
	conn
}

func (r *notificationRepository) Create(ctx context.Context, notifications ...*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	db, cancel := r.session(ctx)
	defer cancel()

	for _, n := range notifications {
		n.ID = 0
		n.IsRead = false
	}
	return apperr.FromStore("create notifications", db.CreateInBatches(notifications, markReadChunk/5).Error)
}

// ListForRecipient returns the newest notifications first.
func (r *notificationRepository) ListForRecipient(ctx context.Context, recipient string, limit int) ([]models.Notification, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	query := db.Where("recipient = ?", recipient).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	out := []models.Notification{}
	if err := query.Find(&out).Error; err != nil {
		return nil, apperr.FromStore("list notifications", err)
	}
	return out, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var n int64
	err := db.Model(&models.Notification{}).Where("recipient = ? AND is_read = ?", recipient, false).Count(&n).Error
	return n, apperr.FromStore("count unread", err)
}

// markReadChunk bounds the ids bound into one statement, well under the
// bind-parameter limits of sqlite and postgres.
const markReadChunk = 500

// MarkRead flips exactly the given unread notifications of recipient. Long
// id lists are updated in chunks inside one transaction.
func (r *notificationRepository) MarkRead(ctx context.Context, recipient string, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db, cancel := r.session(ctx)
	defer cancel()

	var total int64
	err := db.Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(ids); start += markReadChunk {
			end := min(start+markReadChunk, len(ids))
			res := tx.Model(&models.Notification{}).
				Where("recipient = ? AND is_read = ? AND id IN ?", recipient, false, ids[start:end]).
				UpdateColumn("is_read", true)
			if res.Error != nil {
				return res.Error
			}
			total += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, apperr.FromStore("mark read", err)
	}
	return total, nil
}
