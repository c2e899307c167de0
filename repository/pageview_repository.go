package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/models"
)

// PageViewRepository aggregates successful detail page hits per day and path.
type PageViewRepository interface {
	Record(ctx context.Context, path string, at time.Time) error
	CountForDay(ctx context.Context, day time.Time) (int64, error)
}

type pageViewRepository struct {
	conn
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Record upserts the day/path counter atomically.
func (r *pageViewRepository) Record(ctx context.Context, path string, at time.Time) error {
	db, cancel := r.session(ctx)
	defer cancel()

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "path"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": at}),
	}).Create(&models.PageView{Date: midnight(at), Path: path, Count: 1}).Error
	return apperr.FromStore("record page view", err)
}

func (r *pageViewRepository) CountForDay(ctx context.Context, day time.Time) (int64, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var n int64
	err := db.Model(&models.PageView{}).Where("date = ?", midnight(day)).
		Select("COALESCE(SUM(count), 0)").Scan(&n).Error
	return n, apperr.FromStore("count page views", err)
}
