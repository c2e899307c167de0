package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is the authorization level of a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User represents a forum account. Passwords are stored as bcrypt hashes only.
// Username is the immutable identity; DisplayName is presentation only.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"size:64;not null;uniqueIndex" json:"username"`
	DisplayName  string     `gorm:"size:128;not null" json:"display_name"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	Role         Role       `gorm:"size:16;not null;default:user;index" json:"role"`
	Email        string     `gorm:"size:255" json:"email"`
	Bio          string     `gorm:"type:text" json:"bio"`
	Avatar       []byte     `json:"-"`
	AvatarMime   string     `gorm:"size:128" json:"avatar_mime,omitempty"`
	LastActiveAt *time.Time `json:"last_active_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasAvatar reports whether an avatar blob is stored for the user.
func (u *User) HasAvatar() bool {
	return len(u.Avatar) > 0
}

// BeforeCreate hook ensures timestamps and role are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// AdminClaim is a single-row sentinel. Whoever inserts row 1 first is the
// bootstrap admin; the primary key makes the claim race free.
type AdminClaim struct {
	ID        uint      `gorm:"primaryKey;autoIncrement:false"`
	Username  string    `gorm:"size:64;not null"`
	CreatedAt time.Time
}

// AdminClaimID is the only id an AdminClaim row may have.
const AdminClaimID uint = 1
