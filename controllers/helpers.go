package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/services"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

// parseID reads a positive numeric path parameter.
func parseID(ctx *gin.Context, name string) (uint, error) {
	raw := strings.TrimSpace(ctx.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation(name, "must be a positive integer")
	}
	return uint(id), nil
}

func isMultipart(ctx *gin.Context) bool {
	return strings.HasPrefix(ctx.ContentType(), "multipart/form-data")
}

// formAvatar reads the optional "avatar" file of a multipart form. At most
// maxBytes+1 bytes are read so oversized uploads are rejected by size.
func formAvatar(ctx *gin.Context, maxBytes int64) (*services.AvatarUpload, error) {
	fh, err := ctx.FormFile("avatar")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, apperr.Validation("avatar", "invalid avatar upload")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Internal("open avatar upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, apperr.Internal("read avatar upload", err)
	}
	return &services.AvatarUpload{Data: data, MimeType: fh.Header.Get("Content-Type")}, nil
}

func formString(ctx *gin.Context, key string) *string {
	v, ok := ctx.GetPostForm(key)
	if !ok {
		return nil
	}
	return &v
}

func badPayload() error {
	return apperr.Validation("body", "invalid request payload")
}
