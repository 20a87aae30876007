package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/ilpcore/engine/internal/api/handlers"
)

// listWebhookEvents returns the most recent webhook events, for operators
// diagnosing delivery problems without querying the database directly.
func (h *handlerSet) listWebhookEvents(c *gin.Context) {
	limit := handlers.ParseIntParam(c, "limit", 50)
	offset := handlers.ParseIntParam(c, "offset", 0)

	events, err := h.deps.WebhookEvents.List(c.Request.Context(), limit, offset)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondSuccess(c, events)
}
