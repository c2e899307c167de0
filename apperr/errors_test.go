package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("create post: %w", Validation("title", "title cannot be empty"))

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "title", FieldOf(err))
}

func TestFromStore(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"record not found", gorm.ErrRecordNotFound, KindNotFound},
		{"deadline", context.DeadlineExceeded, KindStorageUnavailable},
		{"sqlite busy", errors.New("database is locked"), KindStorageUnavailable},
		{"other", errors.New("syntax error"), KindInternal},
		{"already classified", Forbidden("no"), KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(FromStore("op", tt.err)))
		})
	}
	assert.Nil(t, FromStore("op", nil))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatus(KindDuplicateUsername))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(KindForbidden))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(KindStorageUnavailable))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Kind("bogus")))
}

func TestInvalidCredentialsMessageIsGeneric(t *testing.T) {
	assert.Equal(t, "invalid username or password", InvalidCredentials().Error())
}
