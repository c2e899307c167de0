package services

import (
	"context"
	"fmt"

	"github.com/cppla/forum/models"
	"github.com/cppla/forum/repository"
)

// NotificationDispatcher writes notifications as synchronous side effects of
// forum events. There is no queue and no retry.
type NotificationDispatcher struct {
	store *repository.Store
}

// NewNotificationDispatcher binds a dispatcher to store.
func NewNotificationDispatcher(store *repository.Store) *NotificationDispatcher {
	return &NotificationDispatcher{store: store}
}

// WithTx returns a dispatcher writing through tx, so notifications commit or
// roll back together with the event that caused them.
func (d *NotificationDispatcher) WithTx(tx *repository.Store) *NotificationDispatcher {
	return &NotificationDispatcher{store: tx}
}

// Notify appends one notification.
func (d *NotificationDispatcher) Notify(ctx context.Context, recipient string, kind models.NotificationKind, message, link string) error {
	return d.store.Notifications.Create(ctx, &models.Notification{
		Recipient: recipient,
		Kind:      kind,
		Message:   message,
		Link:      link,
	})
}

// OnRegistration tells every admin except the newcomer about a new account.
func (d *NotificationDispatcher) OnRegistration(ctx context.Context, user *models.User) error {
	msg := fmt.Sprintf("New user %s (%s) has registered", user.Username, user.DisplayName)
	return d.notifyAdmins(ctx, user.Username, models.NotificationNewUser, msg, "/users/"+user.Username)
}

// OnNewPost tells every admin except the author about a new post.
func (d *NotificationDispatcher) OnNewPost(ctx context.Context, post *models.Post) error {
	msg := fmt.Sprintf("%s published a new post %q in %s", post.Author, post.Title, post.Category)
	return d.notifyAdmins(ctx, post.Author, models.NotificationNewPost, msg, postLink(post.ID))
}

// OnNewComment tells the post author about a reply unless they wrote it.
func (d *NotificationDispatcher) OnNewComment(ctx context.Context, post *models.Post, comment *models.Comment) error {
	if comment.Author == post.Author {
		return nil
	}
	msg := fmt.Sprintf("%s commented on your post %q", comment.Author, post.Title)
	return d.Notify(ctx, post.Author, models.NotificationNewComment, msg, postLink(post.ID))
}

// UnreadCount counts the unread notifications of username.
func (d *NotificationDispatcher) UnreadCount(ctx context.Context, username string) (int64, error) {
	return d.store.Notifications.UnreadCount(ctx, username)
}

// MarkAllRead lists the notifications of username and marks exactly the ones
// that were unread at that moment. The returned rows keep their pre-read flags.
func (d *NotificationDispatcher) MarkAllRead(ctx context.Context, username string) ([]models.Notification, error) {
	list, err := d.store.Notifications.ListForRecipient(ctx, username, 0)
	if err != nil {
		return nil, err
	}
	unread := make([]uint, 0, len(list))
	for _, n := range list {
		if !n.IsRead {
			unread = append(unread, n.ID)
		}
	}
	if _, err := d.store.Notifications.MarkRead(ctx, username, unread); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *NotificationDispatcher) notifyAdmins(ctx context.Context, except string, kind models.NotificationKind, message, link string) error {
	admins, err := d.store.Users.ListAdminUsernames(ctx)
	if err != nil {
		return err
	}
	batch := make([]*models.Notification, 0, len(admins))
	for _, admin := range admins {
		if admin == except {
			continue
		}
		batch = append(batch, &models.Notification{Recipient: admin, Kind: kind, Message: message, Link: link})
	}
	return d.store.Notifications.Create(ctx, batch...)
}

func postLink(id uint) string {
	return fmt.Sprintf("/posts/%d", id)
}
