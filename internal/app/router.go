package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"carpool/internal/handler"
	"carpool/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	UserHandler    *handler.UserHandler
	RideHandler    *handler.RideHandler
	RequestHandler *handler.RequestHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Every mutating route acts on behalf of a caller, so the actor
	// header is required there; reads stay open.
	actor := middleware.RequireActor()

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// User routes.
		users := v1.Group("/users")
		{
			users.POST("/register", deps.UserHandler.Register)
			users.GET("", deps.UserHandler.GetAll)
			users.GET("/:id", deps.UserHandler.GetUser)
			users.GET("/:id/strikes", deps.UserHandler.GetStrikes)
		}

		// Ride routes.
		rides := v1.Group("/rides")
		{
			rides.POST("", actor, deps.RideHandler.PostRide)
			rides.GET("", deps.RideHandler.GetAll)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.GET("/:id/snapshot", deps.RideHandler.GetSnapshot)
			rides.GET("/:id/requests", deps.RideHandler.ListRequests)
			rides.POST("/:id/cancel", actor, deps.RideHandler.CancelRide)
			rides.POST("/:id/start-code", actor, deps.RideHandler.GenerateStartCode)
			rides.POST("/:id/verify-start", actor, deps.RideHandler.VerifyStart)
			rides.POST("/:id/completion-code", actor, deps.RideHandler.GenerateCompletionCode)
			rides.POST("/:id/verify-completion", actor, deps.RideHandler.VerifyCompletion)
		}

		// Seat request routes.
		requests := v1.Group("/requests")
		{
			requests.POST("", actor, deps.RequestHandler.Submit)
			requests.GET("/:id", deps.RequestHandler.GetRequest)
			requests.POST("/:id/approve", actor, deps.RequestHandler.Approve)
			requests.POST("/:id/reject", actor, deps.RequestHandler.Reject)
			requests.POST("/:id/withdraw", actor, deps.RequestHandler.Withdraw)
			requests.POST("/:id/cancel", actor, deps.RequestHandler.CancelByPassenger)
			requests.POST("/:id/remove", actor, deps.RequestHandler.RemovePassenger)
		}
	}

	return router
}
