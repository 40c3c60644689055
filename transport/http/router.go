package http

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter sets up the Gin router
func SetupRouter(api *BookingAPI) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	authHandlers := NewAuthHandlers(api)
	userHandlers := NewUserHandlers(api)
	requireAuth := AuthMiddleware(api)

	// Auth routes
	auth := router.Group("/api/auth")
	{
		auth.POST("/login", authHandlers.Login)
		auth.POST("/register", authHandlers.Register)
		auth.POST("/refresh", authHandlers.Refresh)
		auth.POST("/logout", requireAuth, authHandlers.Logout)
	}

	// Protected profile routes
	users := router.Group("/api/users")
	users.Use(requireAuth)
	{
		users.GET("/:id", userHandlers.Get)
		users.PUT("/me", userHandlers.UpdateMe)
		users.PUT("/me/password", userHandlers.ChangePassword)
	}

	return router
}
