package handler

import (
	"github.com/bitfantasy/nimo-sales/internal/middleware"
	"github.com/gin-gonic/gin"
)

// ApprovePermission 审核、驳回、反审核所需权限
const ApprovePermission = "sales_order:approve"

// RegisterRoutes 注册 /api/v1/sales 路由
func RegisterRoutes(r *gin.Engine, h *Handlers, jwtSecret string) {
	api := r.Group("/api/v1/sales")
	api.Use(middleware.JWTAuth(jwtSecret))
	{
		api.GET("/events", h.SSE.Stream)
		api.GET("/lifecycle", h.Order.Lifecycle)
		api.PUT("/view", h.Order.SetView)
		api.GET("/push-logs", h.Push.Logs)

		orders := api.Group("/orders")
		{
			orders.GET("", h.Order.List)
			orders.POST("", h.Order.Create)
			orders.POST("/bulk-delete", h.Order.BulkDelete)
			orders.GET("/:id", h.Order.Get)
			orders.PUT("/:id", h.Order.Update)
			orders.DELETE("/:id", h.Order.Delete)
			orders.DELETE("/:id/detail", h.Order.CloseDetail)

			orders.POST("/:id/submit", h.Order.Submit)
			orders.POST("/:id/withdraw", h.Order.Withdraw)
			orders.POST("/:id/confirm", h.Order.Confirm)
			orders.POST("/:id/approve", middleware.RequirePermission(ApprovePermission), h.Order.Approve)
			orders.POST("/:id/reject", middleware.RequirePermission(ApprovePermission), h.Order.Reject)
			orders.POST("/:id/unapprove", middleware.RequirePermission(ApprovePermission), h.Order.Unapprove)

			orders.GET("/:id/push", h.Push.Options)
			orders.POST("/:id/push/:target/preview", h.Push.Preview)
			orders.POST("/:id/push/:target/commit", h.Push.Commit)
			orders.POST("/:id/push/:target/cancel", h.Push.Cancel)
		}
	}
}
