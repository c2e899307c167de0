package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ViewRecorder counts one page view of a path for the current day.
type ViewRecorder interface {
	RecordView(ctx context.Context, path string) error
}

// PageViewRecorder records successful GETs of the given route patterns, keyed
// by the concrete request path so /api/v1/posts/1 and /api/v1/posts/2 differ.
func PageViewRecorder(rec ViewRecorder, routes ...string) gin.HandlerFunc {
	tracked := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		tracked[r] = struct{}{}
	}

	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if _, ok := tracked[c.FullPath()]; !ok {
			return
		}
		// The service logs storage errors; a lost page view never fails the request.
		_ = rec.RecordView(c.Request.Context(), c.Request.URL.Path)
	}
}
