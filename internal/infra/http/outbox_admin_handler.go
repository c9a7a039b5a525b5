package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
)

// OutboxAdminHandler expone la dead-letter para inspección operativa.
// Reintroducir un mensaje fallido es una decisión manual: aquí solo se mira.
type OutboxAdminHandler struct {
	repo sharedDomain.OutboxRepository
}

func NewOutboxAdminHandler(repo sharedDomain.OutboxRepository) *OutboxAdminHandler {
	return &OutboxAdminHandler{repo: repo}
}

// ListFailed endpoint GET /admin/outbox/failed
func (h *OutboxAdminHandler) ListFailed(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	msgs, err := h.repo.FetchFailed(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, msgs)
}

func RegisterOutboxAdminRoutes(r *gin.Engine, handler *OutboxAdminHandler) {
	admin := r.Group("/admin/outbox")
	{
		admin.GET("/failed", handler.ListFailed)
	}
}
