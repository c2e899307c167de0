package models

import "time"

// Comment represents a reply to a post. It cannot outlive its post.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"index;not null" json:"post_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Author    string    `gorm:"size:64;not null;index" json:"author"`
	CreatedAt time.Time `json:"created_at"`
}
