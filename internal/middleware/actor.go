package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	actorHeader = "X-Actor-ID"

	// ActorKey is the context key holding the authenticated actor ID.
	ActorKey = "actor_id"
)

// RequireActor extracts the acting user's identity from the request.
// Every lifecycle operation is performed *as* somebody; authorization
// (driver-only vs passenger-only) happens in the services against the
// ride's actual parties. Token verification belongs to the identity
// provider in front of this service.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetHeader(actorHeader)
		if actorID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + actorHeader + " header"})
			c.Abort()
			return
		}

		c.Set(ActorKey, actorID)
		c.Next()
	}
}

// ActorID retrieves the actor set by RequireActor.
func ActorID(c *gin.Context) string {
	actorID, _ := c.Get(ActorKey)
	if s, ok := actorID.(string); ok {
		return s
	}
	return ""
}
