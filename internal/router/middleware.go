package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ValidTestID rejects :id parameters that are not UUIDs before they reach
// the session store or the database.
func ValidTestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := uuid.Parse(c.Param("id")); err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Hearing test not found"})
			return
		}
		c.Next()
	}
}
