package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Category tags the topic of a post. The set is closed.
type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryDiscussion Category = "discussion"
	CategoryQuestion   Category = "question"
	CategoryShare      Category = "share"
	CategoryChat       Category = "chat"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryGeneral,
	CategoryDiscussion,
	CategoryQuestion,
	CategoryShare,
	CategoryChat,
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Post represents a forum thread. Author is the username of the creator.
// TitleFold and BodyFold hold the case-folded text that search matches
// against, since SQL LOWER() on sqlite only folds ASCII.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Author    string    `gorm:"size:64;not null;index" json:"author"`
	Category  Category  `gorm:"size:32;not null;default:general;index" json:"category"`
	Views     int64     `gorm:"not null;default:0;index" json:"views"`
	TitleFold string    `gorm:"size:255" json:"-"`
	BodyFold  string    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Comments  []Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments,omitempty"`
}

// Fold lowercases s with full Unicode case mapping.
func Fold(s string) string {
	return strings.ToLower(s)
}

// BeforeSave keeps the search columns in step with title and body.
func (p *Post) BeforeSave(tx *gorm.DB) error {
	p.TitleFold = Fold(p.Title)
	p.BodyFold = Fold(p.Body)
	return nil
}
