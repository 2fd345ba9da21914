package auth

import (
	"github.com/gin-gonic/gin"
)

// Router handles auth-related routes
type Router struct {
	controller *Controller
	gate       *Gate
}

func NewRouter(controller *Controller, gate *Gate) *Router {
	return &Router{
		controller: controller,
		gate:       gate,
	}
}

// SetupRoutes registers all auth routes
func (authRouter *Router) SetupRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/login", authRouter.controller.Login)
		auth.POST("/logout", authRouter.controller.Logout)
		auth.POST("/register", authRouter.controller.Register)
		auth.GET("/confirm", authRouter.controller.Confirm)
		auth.POST("/forgot-password", authRouter.controller.ForgotPassword)
		auth.GET("/reset-password", authRouter.controller.ResetPasswordForm)
		auth.POST("/reset-password", authRouter.controller.ResetPassword)

		protected := auth.Group("")
		protected.Use(authRouter.gate.RequireUser())
		{
			protected.GET("/me", authRouter.controller.GetMe)
		}
	}
}
