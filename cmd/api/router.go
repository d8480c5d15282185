package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	accountDelivery "taskmind-backend/internal/account/delivery"
	authDelivery "taskmind-backend/internal/auth/delivery"
	authUsecase "taskmind-backend/internal/auth/usecase"
	"taskmind-backend/internal/notification"
	taskDelivery "taskmind-backend/internal/task/delivery"
)

// SetupRoutes wires the HTTP surface. Handlers stay thin; everything
// interesting happens in the usecases.
func SetupRoutes(
	r *gin.Engine,
	authUc authUsecase.AuthUsecase,
	authHandler *authDelivery.AuthHandler,
	accountHandler *accountDelivery.AccountHandler,
	notificationHandler *notification.Handler,
	taskHandler *taskDelivery.TaskHandler,
) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/google", authHandler.GoogleSignIn)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", authDelivery.AuthMiddleware(authUc), authHandler.Me)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(authDelivery.AuthMiddleware(authUc))
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Account connection routes (protected)
		accounts := api.Group("/accounts")
		accounts.Use(authDelivery.AuthMiddleware(authUc))
		{
			accounts.GET("", accountHandler.ListConnections)
			accounts.POST("/gmail", accountHandler.ConnectGmail)
			accounts.POST("/imap", accountHandler.ConnectIMAP)
			accounts.POST("/:id/reconnect", accountHandler.Reconnect)
			accounts.DELETE("/:id", accountHandler.Disconnect)

			accounts.GET("/priority-contacts", accountHandler.ListPriorityContacts)
			accounts.POST("/priority-contacts", accountHandler.AddPriorityContact)
			accounts.DELETE("/priority-contacts/:id", accountHandler.RemovePriorityContact)
		}

		// Notification routes (protected)
		notifications := api.Group("/notifications")
		notifications.Use(authDelivery.AuthMiddleware(authUc))
		{
			notifications.GET("", notificationHandler.List)
			notifications.PATCH("/:id/read", notificationHandler.MarkRead)
			notifications.DELETE("/:id", notificationHandler.Delete)
			notifications.POST("/:id/convert", taskHandler.ConvertNotification)
		}

		// Task routes (protected)
		tasks := api.Group("/tasks")
		tasks.Use(authDelivery.AuthMiddleware(authUc))
		{
			tasks.GET("", taskHandler.GetTasks)
			tasks.POST("", taskHandler.CreateTask)
			tasks.POST("/reschedule", taskHandler.TriggerReschedule)
			tasks.GET("/:id", taskHandler.GetTaskByID)
			tasks.PUT("/:id", taskHandler.UpdateTask)
			tasks.PATCH("/:id/status", taskHandler.UpdateStatus)
			tasks.DELETE("/:id", taskHandler.DeleteTask)
		}
	}
}
