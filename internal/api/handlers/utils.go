package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// parseLimit reads a limit query parameter, applying a default and a hard
// cap.
func parseLimit(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit < 1 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}

// maskTail keeps the first n characters of a sensitive string for display.
func maskTail(s *string, n int) *string {
	if s == nil {
		return nil
	}
	if len(*s) <= n {
		return s
	}
	masked := (*s)[:n] + "..."
	return &masked
}
