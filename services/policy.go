package services

import "github.com/cppla/forum/models"

// CanModerate is the single authorization check for destructive actions.
func CanModerate(user *models.User) bool {
	return user != nil && user.Role == models.RoleAdmin
}
