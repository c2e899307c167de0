// Package services implements the forum use cases on top of the stores:
// identity, authorization and notification side effects live here, never in
// the repositories.
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/models"
	"github.com/cppla/forum/repository"
	"github.com/cppla/forum/utils"
)

const (
	defaultAvatarMaxBytes = 2 << 20
	maxPageSize           = 100
	profileCachePrefix    = "forum:user:"
	profileCacheTTL       = 10 * time.Minute
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// AvatarUpload is an opaque image blob. MimeType is only a hint; the stored
// type is sniffed from the bytes.
type AvatarUpload struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

type RegisterInput struct {
	Username    string        `json:"username" validate:"required,max=64,username"`
	DisplayName string        `json:"display_name" validate:"max=128"`
	Password    string        `json:"password" validate:"required,min=6"`
	Email       string        `json:"email" validate:"omitempty,email,max=255"`
	Bio         string        `json:"bio" validate:"max=2000"`
	Avatar      *AvatarUpload `json:"avatar"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type CreatePostInput struct {
	Title    string          `json:"title" validate:"required,max=255"`
	Body     string          `json:"body" validate:"required,max=50000"`
	Category models.Category `json:"category"`
}

type ListPostsInput struct {
	Search   string
	Category models.Category
	Author   string
	Limit    int
	Offset   int
}

type CreateCommentInput struct {
	Body string `json:"body" validate:"required,max=10000"`
}

// ProfileInput carries the self-service profile fields; nil leaves a field alone.
type ProfileInput struct {
	Bio    *string       `json:"bio" validate:"omitempty,max=2000"`
	Email  *string       `json:"email" validate:"omitempty,email,max=255"`
	Avatar *AvatarUpload `json:"avatar"`
}

// PublicProfile is what anyone may see about a user.
type PublicProfile struct {
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name"`
	Role        models.Role `json:"role"`
	Bio         string      `json:"bio"`
	HasAvatar   bool        `json:"has_avatar"`
	JoinedAt    time.Time   `json:"joined_at"`
}

// StatsView adds the daily page views to the store counters.
type StatsView struct {
	repository.Stats
	DailyViews int64 `json:"daily_views"`
}

type Options struct {
	AvatarMaxBytes int64
	Cache          *utils.Cache
}

// ForumService is stateless per request: the caller passes the resolved user
// (nil for anonymous) into every call that needs an identity.
type ForumService struct {
	store         *repository.Store
	sessions      *SessionManager
	notifications *NotificationDispatcher
	hasher        utils.PasswordHasher
	cache         *utils.Cache
	avatarMax     int64

	timingOnce sync.Once
	timingHash string
}

func NewForumService(store *repository.Store, sessions *SessionManager, hasher utils.PasswordHasher, opts Options) *ForumService {
	if opts.AvatarMaxBytes <= 0 {
		opts.AvatarMaxBytes = defaultAvatarMaxBytes
	}
	return &ForumService{
		store:         store,
		sessions:      sessions,
		notifications: NewNotificationDispatcher(store),
		hasher:        hasher,
		cache:         opts.Cache,
		avatarMax:     opts.AvatarMaxBytes,
	}
}

// Register creates an account. The first account of a fresh store becomes
// admin; existing admins are notified inside the same transaction.
func (s *ForumService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, apperr.Validation("password", fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}

	user := &models.User{
		Username:    in.Username,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Email:       strings.TrimSpace(in.Email),
		Bio:         in.Bio,
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}
	if in.Avatar != nil {
		mime, err := s.checkAvatar(in.Avatar)
		if err != nil {
			return nil, err
		}
		user.Avatar, user.AvatarMime = in.Avatar.Data, mime
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.fail("register", apperr.Internal("hash password", err), zap.String("username", in.Username))
	}
	user.PasswordHash = hash

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Users.Register(ctx, user); err != nil {
			return err
		}
		return s.notifications.WithTx(tx).OnRegistration(ctx, user)
	})
	if err != nil {
		return nil, s.fail("register", err, zap.String("username", in.Username))
	}
	utils.Logger.Info("user registered", zap.String("username", user.Username), zap.String("role", string(user.Role)))
	return user, nil
}

// Login checks credentials and opens a session. Unknown users and wrong
// passwords are indistinguishable, including in timing.
func (s *ForumService) Login(ctx context.Context, in LoginInput) (*Session, *models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validateStruct(in); err != nil {
		return nil, nil, err
	}

	user, err := s.store.Users.FindByUsername(ctx, in.Username)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			s.hasher.Verify(in.Password, s.dummyHash())
			return nil, nil, apperr.InvalidCredentials()
		}
		return nil, nil, s.fail("login", err, zap.String("username", in.Username))
	}
	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		return nil, nil, apperr.InvalidCredentials()
	}

	session, err := s.sessions.Start(user)
	if err != nil {
		return nil, nil, s.fail("login", err, zap.String("username", in.Username))
	}
	now := time.Now()
	if err := s.store.Users.TouchLastActive(ctx, user.Username, now); err != nil {
		utils.Logger.Warn("touch last active failed", zap.String("op", "login"), zap.String("username", user.Username), zap.Error(err))
	} else {
		user.LastActiveAt = &now
	}
	return session, user, nil
}

// Logout revokes the session token.
func (s *ForumService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.End(ctx, token); err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			return err
		}
		return s.fail("logout", err)
	}
	return nil
}

// Authenticate resolves a session token to its user.
func (s *ForumService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	user, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			return nil, err
		}
		return nil, s.fail("authenticate", err)
	}
	return user, nil
}

// Me returns a fresh copy of the caller's account.
func (s *ForumService) Me(ctx context.Context, actor *models.User) (*models.User, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	user, err := s.store.Users.FindByUsername(ctx, actor.Username)
	if err != nil {
		return nil, s.fail("me", err, zap.String("username", actor.Username))
	}
	return user, nil
}

func (s *ForumService) CreatePost(ctx context.Context, actor *models.User, in CreatePostInput) (*models.Post, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:    in.Title,
		Body:     in.Body,
		Author:   actor.Username,
		Category: in.Category,
	}
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Posts.Create(ctx, post); err != nil {
			return err
		}
		return s.notifications.WithTx(tx).OnNewPost(ctx, post)
	})
	if err != nil {
		return nil, s.fail("create post", err, zap.String("author", actor.Username))
	}
	return post, nil
}

// ListPosts returns post summaries newest first.
func (s *ForumService) ListPosts(ctx context.Context, in ListPostsInput) ([]models.Post, error) {
	if in.Category != "" && !in.Category.Valid() {
		return nil, apperr.Validation("category", "invalid category")
	}
	if in.Limit > maxPageSize {
		in.Limit = maxPageSize
	}
	if in.Offset < 0 {
		in.Offset = 0
	}
	posts, err := s.store.Posts.List(ctx, repository.PostFilter{
		Search:   in.Search,
		Category: in.Category,
		Author:   in.Author,
		Limit:    in.Limit,
		Offset:   in.Offset,
	})
	if err != nil {
		return nil, s.fail("list posts", err, zap.String("category", string(in.Category)))
	}
	return posts, nil
}

// ViewPost counts one view and returns the post with its comments.
func (s *ForumService) ViewPost(ctx context.Context, id uint) (*models.Post, error) {
	if err := s.store.Posts.IncrementViews(ctx, id); err != nil {
		return nil, s.fail("view post", err, zap.Uint("post_id", id))
	}
	post, err := s.store.Posts.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail("view post", err, zap.Uint("post_id", id))
	}
	comments, err := s.store.Comments.ListByPost(ctx, id)
	if err != nil {
		return nil, s.fail("view post", err, zap.Uint("post_id", id))
	}
	post.Comments = comments
	return post, nil
}

// ListComments returns the comments of a post oldest first; an unknown post
// has none.
func (s *ForumService) ListComments(ctx context.Context, postID uint) ([]models.Comment, error) {
	comments, err := s.store.Comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, s.fail("list comments", err, zap.Uint("post_id", postID))
	}
	return comments, nil
}

func (s *ForumService) TopPosts(ctx context.Context, limit int) ([]models.Post, error) {
	if limit > maxPageSize {
		limit = maxPageSize
	}
	posts, err := s.store.Posts.TopByViews(ctx, limit)
	if err != nil {
		return nil, s.fail("top posts", err)
	}
	return posts, nil
}

// DeletePost removes a post and its comments. Admin only.
func (s *ForumService) DeletePost(ctx context.Context, actor *models.User, id uint) error {
	if err := requireModerator(actor); err != nil {
		return err
	}
	if err := s.store.Posts.Delete(ctx, id); err != nil {
		return s.fail("delete post", err, zap.Uint("post_id", id))
	}
	utils.Logger.Info("post deleted", zap.Uint("post_id", id), zap.String("by", actor.Username))
	return nil
}

// CreateComment adds a comment and notifies the post author.
func (s *ForumService) CreateComment(ctx context.Context, actor *models.User, postID uint, in CreateCommentInput) (*models.Comment, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	comment := &models.Comment{PostID: postID, Body: in.Body, Author: actor.Username}
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		post, err := tx.Posts.FindByID(ctx, postID)
		if err != nil {
			return err
		}
		if err := tx.Comments.Create(ctx, comment); err != nil {
			return err
		}
		return s.notifications.WithTx(tx).OnNewComment(ctx, post, comment)
	})
	if err != nil {
		return nil, s.fail("create comment", err, zap.Uint("post_id", postID), zap.String("author", actor.Username))
	}
	return comment, nil
}

// DeleteComment removes one comment. Admin only.
func (s *ForumService) DeleteComment(ctx context.Context, actor *models.User, id uint) error {
	if err := requireModerator(actor); err != nil {
		return err
	}
	if err := s.store.Comments.Delete(ctx, id); err != nil {
		return s.fail("delete comment", err, zap.Uint("comment_id", id))
	}
	return nil
}

// UpdateProfile changes bio, email or avatar of the caller's own account.
func (s *ForumService) UpdateProfile(ctx context.Context, actor *models.User, username string, in ProfileInput) (*models.User, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if actor.Username != username {
		return nil, apperr.Forbidden("you can only edit your own profile")
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	var changes repository.ProfileChanges
	if in.Bio != nil {
		changes.Bio = in.Bio
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		changes.Email = &email
	}
	if in.Avatar != nil {
		mime, err := s.checkAvatar(in.Avatar)
		if err != nil {
			return nil, err
		}
		changes.Avatar, changes.AvatarMime, changes.SetAvatar = in.Avatar.Data, mime, true
	}

	if err := s.store.Users.UpdateProfile(ctx, username, changes); err != nil {
		return nil, s.fail("update profile", err, zap.String("username", username))
	}
	s.cache.InvalidateByPrefix(ctx, profileCachePrefix+username)

	user, err := s.store.Users.FindByUsername(ctx, username)
	if err != nil {
		return nil, s.fail("update profile", err, zap.String("username", username))
	}
	return user, nil
}

// GetUser returns the public profile of username, served from cache when possible.
func (s *ForumService) GetUser(ctx context.Context, username string) (*PublicProfile, error) {
	key := profileCachePrefix + username
	var cached PublicProfile
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	user, err := s.store.Users.FindByUsername(ctx, username)
	if err != nil {
		return nil, s.fail("get user", err, zap.String("username", username))
	}
	profile := &PublicProfile{
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		Bio:         user.Bio,
		HasAvatar:   user.AvatarMime != "",
		JoinedAt:    user.CreatedAt,
	}
	s.cache.SetJSON(ctx, key, profile, profileCacheTTL)
	return profile, nil
}

// Avatar returns the avatar blob of username and its MIME type.
func (s *ForumService) Avatar(ctx context.Context, username string) ([]byte, string, error) {
	data, mime, err := s.store.Users.FindAvatar(ctx, username)
	if err != nil {
		return nil, "", s.fail("get avatar", err, zap.String("username", username))
	}
	return data, mime, nil
}

// SetRole promotes or demotes a user. Admin only; the last admin cannot be demoted.
func (s *ForumService) SetRole(ctx context.Context, actor *models.User, username string, role models.Role) (*models.User, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Validation("role", "role must be admin or user")
	}

	var updated *models.User
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		target, err := tx.Users.FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if target.Role == models.RoleAdmin && role != models.RoleAdmin {
			admins, err := tx.Users.CountAdmins(ctx)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return apperr.Forbidden("cannot demote the last admin")
			}
		}
		if err := tx.Users.SetRole(ctx, username, role); err != nil {
			return err
		}
		target.Role = role
		updated = target
		return nil
	})
	if err != nil {
		return nil, s.fail("set role", err, zap.String("username", username), zap.String("role", string(role)))
	}
	s.cache.InvalidateByPrefix(ctx, profileCachePrefix+username)
	utils.Logger.Info("role changed", zap.String("username", username), zap.String("role", string(role)), zap.String("by", actor.Username))
	return updated, nil
}

// ListNotifications returns the caller's notifications newest first and marks
// the unread ones read. The returned rows keep the flags they had when read.
func (s *ForumService) ListNotifications(ctx context.Context, actor *models.User) ([]models.Notification, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	var list []models.Notification
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		list, err = s.notifications.WithTx(tx).MarkAllRead(ctx, actor.Username)
		return err
	})
	if err != nil {
		return nil, s.fail("list notifications", err, zap.String("username", actor.Username))
	}
	return list, nil
}

func (s *ForumService) UnreadCount(ctx context.Context, actor *models.User) (int64, error) {
	if err := requireUser(actor); err != nil {
		return 0, err
	}
	n, err := s.notifications.UnreadCount(ctx, actor.Username)
	if err != nil {
		return 0, s.fail("unread count", err, zap.String("username", actor.Username))
	}
	return n, nil
}

// Stats computes the counters from the store on every call.
func (s *ForumService) Stats(ctx context.Context) (*StatsView, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, s.fail("stats", err)
	}
	daily, err := s.store.PageViews.CountForDay(ctx, time.Now())
	if err != nil {
		return nil, s.fail("stats", err)
	}
	return &StatsView{Stats: st, DailyViews: daily}, nil
}

// RecordView counts one page view of path for today.
func (s *ForumService) RecordView(ctx context.Context, path string) error {
	if err := s.store.PageViews.Record(ctx, path, time.Now()); err != nil {
		return s.fail("record view", err, zap.String("path", path))
	}
	return nil
}

func (s *ForumService) Categories() []models.Category {
	out := make([]models.Category, len(models.Categories))
	copy(out, models.Categories)
	return out
}

func (s *ForumService) checkAvatar(a *AvatarUpload) (string, error) {
	if len(a.Data) == 0 {
		return "", apperr.Validation("avatar", "avatar is empty")
	}
	if int64(len(a.Data)) > s.avatarMax {
		return "", apperr.Validation("avatar", fmt.Sprintf("avatar exceeds %d bytes", s.avatarMax))
	}
	detected := mimetype.Detect(a.Data)
	if detected.Is("application/octet-stream") && strings.HasPrefix(a.MimeType, "image/") {
		return a.MimeType, nil
	}
	return detected.String(), nil
}

// dummyHash is verified against when the user does not exist so both login
// failures cost one bcrypt comparison.
func (s *ForumService) dummyHash() string {
	s.timingOnce.Do(func() {
		s.timingHash, _ = s.hasher.Hash("not-a-real-password")
	})
	return s.timingHash
}

// fail logs errors the caller cannot act on and returns err unchanged.
func (s *ForumService) fail(op string, err error, fields ...zap.Field) error {
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindStorageUnavailable:
		utils.Logger.Error("forum operation failed",
			append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)...)
	}
	return err
}

func requireUser(actor *models.User) error {
	if actor == nil {
		return apperr.Unauthorized("login required")
	}
	return nil
}

func requireModerator(actor *models.User) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	if !CanModerate(actor) {
		return apperr.Forbidden("admin role required")
	}
	return nil
}

// AvatarMaxBytes is the largest accepted avatar.
func (s *ForumService) AvatarMaxBytes() int64 {
	return s.avatarMax
}
