package http

import "github.com/gin-gonic/gin"

func RegisterOrderRoutes(r *gin.Engine, handler *OrderHandler) {
	orders := r.Group("/orders")
	{
		orders.POST("/", handler.CreateOrder)
		orders.GET("/:id", handler.GetOrder)
		orders.GET("/", handler.ListOrders)
		orders.POST("/:id/pay", handler.PayOrder)
		orders.POST("/:id/cancel", handler.CancelOrder)
	}
}
