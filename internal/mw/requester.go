package mw

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const requesterKey = "requester_id"

// Requester copies the authenticated requester id from header into the context.
// The auth gateway in front of the API owns that header.
func Requester(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(header)); id != "" {
			c.Set(requesterKey, id)
		}
		c.Next()
	}
}

// RequesterID returns the requester id set by Requester, or "".
func RequesterID(c *gin.Context) string {
	return c.GetString(requesterKey)
}
