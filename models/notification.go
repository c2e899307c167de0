package models

import "time"

// NotificationKind identifies the event that produced a notification.
type NotificationKind string

const (
	NotificationNewUser    NotificationKind = "new_user"
	NotificationNewPost    NotificationKind = "new_post"
	NotificationNewComment NotificationKind = "new_comment"
)

// Notification is a message addressed to a single user. IsRead only ever
// moves from false to true; rows are never deleted.
type Notification struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	Recipient string           `gorm:"size:64;not null;index:idx_notif_recipient_read" json:"recipient"`
	Kind      NotificationKind `gorm:"size:20;not null" json:"kind"`
	Message   string           `gorm:"type:text;not null" json:"message"`
	Link      string           `gorm:"size:512" json:"link,omitempty"`
	IsRead    bool             `gorm:"not null;default:false;index:idx_notif_recipient_read" json:"read"`
	CreatedAt time.Time        `gorm:"index" json:"created_at"`
}
