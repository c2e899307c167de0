package utils

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/forum/apperr"
)

// JSONResponse defines the uniform structure for API responses.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, 200, 0, "success", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}

// appCodes gives each error kind a stable application code.
var appCodes = map[apperr.Kind]int{
	apperr.KindValidation:         40001,
	apperr.KindDuplicateUsername:  40901,
	apperr.KindInvalidCredentials: 40106,
	apperr.KindUnauthorized:       40101,
	apperr.KindNotFound:           40401,
	apperr.KindForbidden:          40301,
	apperr.KindStorageUnavailable: 50301,
	apperr.KindInternal:           50000,
}

// Fail maps err onto the response envelope. Internal details never reach the client.
func Fail(ctx *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	msg := err.Error()
	switch kind {
	case apperr.KindInternal:
		Logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		msg = "internal server error"
	case apperr.KindStorageUnavailable:
		Logger.Warn("storage unavailable", zap.String("path", ctx.FullPath()), zap.Error(err))
		msg = "storage temporarily unavailable, retry later"
		ctx.Header("Retry-After", "1")
	case apperr.KindInvalidCredentials:
		msg = apperr.InvalidCredentials().Message
	}

	ctx.JSON(status, JSONResponse{
		Code:    appCodes[kind],
		Message: msg,
		Field:   apperr.FieldOf(err),
	})
}
