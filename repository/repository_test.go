package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/config"
	"github.com/cppla/forum/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := config.OpenDatabase("sqlite", dsn, "silent")
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewStore(db, 5*time.Second)
}

func register(t *testing.T, s *Store, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, DisplayName: username, PasswordHash: "hash-" + username}
	require.NoError(t, s.Users.Register(context.Background(), u))
	return u
}

func createPost(t *testing.T, s *Store, author, title, body string) *models.Post {
	t.Helper()
	p := &models.Post{Title: title, Body: body, Author: author, Category: models.CategoryGeneral}
	require.NoError(t, s.Posts.Create(context.Background(), p))
	return p
}

func TestRegisterFirstUserIsAdmin(t *testing.T) {
	s := newTestStore(t)

	alice := register(t, s, "alice")
	bob := register(t, s, "bob")

	assert.Equal(t, models.RoleAdmin, alice.Role)
	assert.Equal(t, models.RoleUser, bob.Role)

	stored, err := s.Users.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, stored.Role)
	assert.Nil(t, stored.LastActiveAt)
}

func TestConcurrentRegistrationsYieldExactlyOneAdmin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := &models.User{Username: fmt.Sprintf("user%02d", i), DisplayName: "u", PasswordHash: "h"}
			errs <- s.Users.Register(ctx, u)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	admins, err := s.Users.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), admins)

	total, err := s.Users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(n), total)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	register(t, s, "alice")

	dup := &models.User{Username: "alice", DisplayName: "Impostor", PasswordHash: "other"}
	err := s.Users.Register(ctx, dup)
	assert.ErrorIs(t, err, apperr.ErrDuplicateUsername)

	stored, err := s.Users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.DisplayName)
	assert.Equal(t, "hash-alice", stored.PasswordHash)
	assert.Equal(t, models.RoleAdmin, stored.Role)
}

func TestFindByUsernameMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Users.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateProfileAndAvatar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	register(t, s, "alice")

	bio := "hello there"
	require.NoError(t, s.Users.UpdateProfile(ctx, "alice", ProfileChanges{
		Bio:        &bio,
		Avatar:     []byte{0x89, 'P', 'N', 'G'},
		AvatarMime: "image/png",
		SetAvatar:  true,
	}))

	u, err := s.Users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "hello there", u.Bio)
	assert.Equal(t, "", u.Email)
	assert.Empty(t, u.Avatar, "avatar blob is not loaded with the profile")
	assert.Equal(t, "image/png", u.AvatarMime)

	data, mime, err := s.Users.FindAvatar(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
	assert.Equal(t, "image/png", mime)

	err = s.Users.UpdateProfile(ctx, "ghost", ProfileChanges{Bio: &bio})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	register(t, s, "alice")
	register(t, s, "bob")

	require.NoError(t, s.Users.SetRole(ctx, "bob", models.RoleAdmin))
	admins, err := s.Users.ListAdminUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, admins)

	assert.ErrorIs(t, s.Users.SetRole(ctx, "bob", models.Role("root")), apperr.ErrValidation)
	assert.ErrorIs(t, s.Users.SetRole(ctx, "ghost", models.RoleUser), apperr.ErrNotFound)
}

func TestCreatePostValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		post  models.Post
		field string
	}{
		{"empty title", models.Post{Title: "  ", Body: "b", Author: "a"}, "title"},
		{"empty body", models.Post{Title: "t", Body: "", Author: "a"}, "body"},
		{"bad category", models.Post{Title: "t", Body: "b", Author: "a", Category: "news"}, "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.post
			err := s.Posts.Create(ctx, &p)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, tt.field, apperr.FieldOf(err))
		})
	}

	p := models.Post{Title: "t", Body: "b", Author: "a"}
	require.NoError(t, s.Posts.Create(ctx, &p))
	assert.Equal(t, models.CategoryGeneral, p.Category)
}

func TestListPostsSearchAndCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createPost(t, s, "alice", "All about FOO", "body")
	createPost(t, s, "bob", "Unrelated", "contains foobar inside")
	createPost(t, s, "bob", "Nothing", "here")
	q := &models.Post{Title: "100% sure", Body: "x", Author: "bob", Category: models.CategoryQuestion}
	require.NoError(t, s.Posts.Create(ctx, q))

	all, err := s.Posts.List(ctx, PostFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, q.ID, all[0].ID, "newest first")

	foo, err := s.Posts.List(ctx, PostFilter{Search: "foo"})
	require.NoError(t, err)
	require.Len(t, foo, 2)
	ids := map[uint]bool{}
	for _, p := range all {
		ids[p.ID] = true
	}
	for _, p := range foo {
		assert.True(t, ids[p.ID], "search result is a subset of the full list")
	}

	pct, err := s.Posts.List(ctx, PostFilter{Search: "0%"})
	require.NoError(t, err)
	require.Len(t, pct, 1, "wildcards in the search text are literal")

	questions, err := s.Posts.List(ctx, PostFilter{Category: models.CategoryQuestion})
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, q.ID, questions[0].ID)

	injected, err := s.Posts.List(ctx, PostFilter{Category: "general' OR '1'='1"})
	require.NoError(t, err)
	assert.Empty(t, injected)
}

func TestIncrementViewsAndTop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := createPost(t, s, "alice", "a", "a")
	b := createPost(t, s, "alice", "b", "b")
	require.NoError(t, s.Posts.IncrementViews(ctx, b.ID))
	require.NoError(t, s.Posts.IncrementViews(ctx, b.ID))
	require.NoError(t, s.Posts.IncrementViews(ctx, a.ID))

	top, err := s.Posts.TopByViews(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, b.ID, top[0].ID)
	assert.Equal(t, int64(2), top[0].Views)

	assert.ErrorIs(t, s.Posts.IncrementViews(ctx, 9999), apperr.ErrNotFound)

	sum, err := s.Posts.SumViews(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum)
}

func TestDeletePostCascadesToComments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := createPost(t, s, "bob", "Hello", "World")
	other := createPost(t, s, "bob", "Other", "post")
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Comments.Create(ctx, &models.Comment{PostID: p.ID, Body: fmt.Sprintf("c%d", i), Author: "alice"}))
	}
	require.NoError(t, s.Comments.Create(ctx, &models.Comment{PostID: other.ID, Body: "keep", Author: "alice"}))

	comments, err := s.Comments.ListByPost(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Equal(t, "c0", comments[0].Body, "oldest first")

	require.NoError(t, s.Posts.Delete(ctx, p.ID))

	comments, err = s.Comments.ListByPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	_, err = s.Posts.FindByID(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	n, err := s.Comments.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, s.Posts.Delete(ctx, p.ID), apperr.ErrNotFound)
}

func TestCreateCommentOnMissingPost(t *testing.T) {
	s := newTestStore(t)
	err := s.Comments.Create(context.Background(), &models.Comment{PostID: 42, Body: "hi", Author: "alice"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteComment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := createPost(t, s, "bob", "t", "b")
	c := &models.Comment{PostID: p.ID, Body: "hi", Author: "alice"}
	require.NoError(t, s.Comments.Create(ctx, c))

	require.NoError(t, s.Comments.Delete(ctx, c.ID))
	assert.ErrorIs(t, s.Comments.Delete(ctx, c.ID), apperr.ErrNotFound)
}

func TestNotificationsMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Notifications.Create(ctx,
		&models.Notification{Recipient: "alice", Kind: models.NotificationNewUser, Message: "m1"},
		&models.Notification{Recipient: "alice", Kind: models.NotificationNewPost, Message: "m2"},
		&models.Notification{Recipient: "bob", Kind: models.NotificationNewComment, Message: "m3"},
	))

	unread, err := s.Notifications.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	list, err := s.Notifications.ListForRecipient(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m2", list[0].Message)

	n, err := s.Notifications.MarkRead(ctx, "alice", []uint{list[1].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// someone else's id is ignored
	bobs, err := s.Notifications.ListForRecipient(ctx, "bob", 0)
	require.NoError(t, err)
	n, err = s.Notifications.MarkRead(ctx, "alice", []uint{bobs[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	unread, err = s.Notifications.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	register(t, s, "alice")
	register(t, s, "bob")
	p := createPost(t, s, "bob", "t", "b")
	require.NoError(t, s.Comments.Create(ctx, &models.Comment{PostID: p.ID, Body: "c", Author: "alice"}))
	require.NoError(t, s.Posts.IncrementViews(ctx, p.ID))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{UserCount: 2, PostCount: 1, CommentCount: 1, ViewSum: 1}, st)
}

func TestTransactionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.Posts.Create(ctx, &models.Post{Title: "t", Body: "b", Author: "a"}); err != nil {
			return err
		}
		return apperr.Forbidden("abort")
	})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	n, err := s.Posts.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPageViews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.PageViews.Record(ctx, "/api/v1/posts/1", now))
	require.NoError(t, s.PageViews.Record(ctx, "/api/v1/posts/1", now))
	require.NoError(t, s.PageViews.Record(ctx, "/api/v1/posts/2", now))

	n, err := s.PageViews.CountForDay(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestOperationTimeoutSurfacesAsStorageUnavailable(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Posts.List(ctx, PostFilter{})
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
}

func TestListPostsSearchFoldsUnicode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := createPost(t, s, "alice", "ÉCOLE Привет", "Straße und Ärger")
	createPost(t, s, "bob", "ecole", "privet")

	for _, q := range []string{"école", "ÉCOLE", "École", "привет", "ПРИВЕТ", "straße", "ärger"} {
		found, err := s.Posts.List(ctx, PostFilter{Search: q})
		require.NoError(t, err)
		require.Len(t, found, 1, q)
		assert.Equal(t, p.ID, found[0].ID, q)
		assert.Equal(t, "ÉCOLE Привет", found[0].Title)
	}
}

func TestMigrateBackfillsSearchColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := createPost(t, s, "alice", "Ünïcode Title", "body")
	require.NoError(t, s.db.Model(&models.Post{}).Where("id = ?", p.ID).
		UpdateColumns(map[string]interface{}{"title_fold": nil, "body_fold": nil}).Error)

	found, err := s.Posts.List(ctx, PostFilter{Search: "ünïcode"})
	require.NoError(t, err)
	assert.Empty(t, found)

	require.NoError(t, config.Migrate(s.db))
	found, err = s.Posts.List(ctx, PostFilter{Search: "ünïcode"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, p.ID, found[0].ID)
}

func TestNotificationsMarkReadLongIDList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const total = 2*markReadChunk + 3
	batch := make([]*models.Notification, 0, total)
	for i := 0; i < total; i++ {
		batch = append(batch, &models.Notification{Recipient: "alice", Kind: models.NotificationNewPost, Message: fmt.Sprintf("m%d", i)})
	}
	require.NoError(t, s.Notifications.Create(ctx, batch...))
	require.NoError(t, s.Notifications.Create(ctx, &models.Notification{Recipient: "bob", Kind: models.NotificationNewPost, Message: "b"}))

	list, err := s.Notifications.ListForRecipient(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, list, total)
	bobs, err := s.Notifications.ListForRecipient(ctx, "bob", 0)
	require.NoError(t, err)

	ids := make([]uint, 0, total+1)
	for _, n := range list {
		ids = append(ids, n.ID)
	}
	ids = append(ids, bobs[0].ID)

	n, err := s.Notifications.MarkRead(ctx, "alice", ids)
	require.NoError(t, err)
	assert.Equal(t, int64(total), n)

	unread, err := s.Notifications.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, unread)
	unread, err = s.Notifications.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}
