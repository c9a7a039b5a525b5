package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	orderDomain "github.com/davicafu/shoplab/internal/order/domain"
)

// AnalyticsHandler expone las consultas agregadas del log analítico de
// pedidos. Solo se registra cuando ClickHouse está habilitado.
type AnalyticsHandler struct {
	analytics orderDomain.OrderAnalyticsRepository
}

func NewAnalyticsHandler(analytics orderDomain.OrderAnalyticsRepository) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// DailyTrend endpoint GET /admin/analytics/orders/daily
func (h *AnalyticsHandler) DailyTrend(c *gin.Context) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	if v := c.Query("start"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date, expected YYYY-MM-DD"})
			return
		}
		start = t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date, expected YYYY-MM-DD"})
			return
		}
		end = t
	}

	trend, err := h.analytics.GetDailyTrend(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, trend)
}

func RegisterAnalyticsRoutes(r *gin.Engine, handler *AnalyticsHandler) {
	admin := r.Group("/admin/analytics")
	{
		admin.GET("/orders/daily", handler.DailyTrend)
	}
}
