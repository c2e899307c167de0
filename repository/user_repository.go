package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/models"
)

// ProfileChanges lists the self-service profile fields; nil means unchanged.
type ProfileChanges struct {
	Bio        *string
	Email      *string
	Avatar     []byte
	AvatarMime string
	SetAvatar  bool
}

// UserRepository is the credential store.
type UserRepository interface {
	Register(ctx context.Context, user *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindAvatar(ctx context.Context, username string) ([]byte, string, error)
	ListAdminUsernames(ctx context.Context) ([]string, error)
	UpdateProfile(ctx context.Context, username string, changes ProfileChanges) error
	SetRole(ctx context.Context, username string, role models.Role) error
	CountAdmins(ctx context.Context) (int64, error)
	TouchLastActive(ctx context.Context, username string, at time.Time) error
	Count(ctx context.Context) (int64, error)
}

type userRepository struct {
	conn
}

// profileColumns excludes the avatar blob from ordinary user reads.
var profileColumns = []string{
	"id", "username", "display_name", "password_hash", "role", "email", "bio",
	"avatar_mime", "last_active_at", "created_at", "updated_at",
}

// Register inserts user and, inside the same transaction, tries to claim the
// bootstrap admin sentinel. Exactly one registration can ever win the claim.
func (r *userRepository) Register(ctx context.Context, user *models.User) error {
	db, cancel := r.session(ctx)
	defer cancel()

	user.Role = models.RoleUser
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.User{}).Where("username = ?", user.Username).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return apperr.DuplicateUsername(user.Username)
		}

		if err := tx.Create(user).Error; err != nil {
			if isDuplicate(err) {
				return apperr.DuplicateUsername(user.Username)
			}
			return err
		}

		claim := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.AdminClaim{ID: models.AdminClaimID, Username: user.Username})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 1 {
			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
				UpdateColumn("role", models.RoleAdmin).Error; err != nil {
				return err
			}
			user.Role = models.RoleAdmin
		}
		return nil
	})
	if err != nil {
		user.Role = ""
	}
	return apperr.FromStore("register user", err)
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var user models.User
	if err := db.Select(profileColumns).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.FromStore("find user", err)
	}
	return &user, nil
}

// FindAvatar returns the avatar blob and its MIME type. A user without an
// avatar yields NotFound.
func (r *userRepository) FindAvatar(ctx context.Context, username string) ([]byte, string, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var user models.User
	if err := db.Select("avatar", "avatar_mime").Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", apperr.NotFound("user")
		}
		return nil, "", apperr.FromStore("find avatar", err)
	}
	if !user.HasAvatar() {
		return nil, "", apperr.NotFound("avatar")
	}
	return user.Avatar, user.AvatarMime, nil
}

func (r *userRepository) ListAdminUsernames(ctx context.Context) ([]string, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var names []string
	err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).
		Order("id ASC").Pluck("username", &names).Error
	return names, apperr.FromStore("list admins", err)
}

func (r *userRepository) UpdateProfile(ctx context.Context, username string, changes ProfileChanges) error {
	db, cancel := r.session(ctx)
	defer cancel()

	updates := map[string]interface{}{}
	if changes.Bio != nil {
		updates["bio"] = *changes.Bio
	}
	if changes.Email != nil {
		updates["email"] = *changes.Email
	}
	if changes.SetAvatar {
		updates["avatar"] = changes.Avatar
		updates["avatar_mime"] = changes.AvatarMime
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("user")
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = time.Now()
		return tx.Model(&models.User{}).Where("username = ?", username).UpdateColumns(updates).Error
	})
	return apperr.FromStore("update profile", err)
}

func (r *userRepository) SetRole(ctx context.Context, username string, role models.Role) error {
	if !role.Valid() {
		return apperr.Validation("role", "role must be admin or user")
	}
	db, cancel := r.session(ctx)
	defer cancel()

	res := db.Model(&models.User{}).Where("username = ?", username).
		UpdateColumns(map[string]interface{}{"role": role, "updated_at": time.Now()})
	if res.Error != nil {
		return apperr.FromStore("set role", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (r *userRepository) CountAdmins(ctx context.Context) (int64, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var n int64
	err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&n).Error
	return n, apperr.FromStore("count admins", err)
}

// TouchLastActive records activity without bumping UpdatedAt.
func (r *userRepository) TouchLastActive(ctx context.Context, username string, at time.Time) error {
	db, cancel := r.session(ctx)
	defer cancel()

	err := db.Model(&models.User{}).Where("username = ?", username).UpdateColumn("last_active_at", at).Error
	return apperr.FromStore("touch last active", err)
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var n int64
	err := db.Model(&models.User{}).Count(&n).Error
	return n, apperr.FromStore("count users", err)
}
