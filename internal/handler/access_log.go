package handler

import (
	"MedVault/internal/service"
	"MedVault/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListAccessLogs returns the latest accesses across the caller's links.
func (h *Handler) ListAccessLogs(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	limit := parsePositiveInt(c.Query("limit"), service.DefaultAccessLogLimit)
	items, err := h.AccessLogs.ListAccessLogs(c.Request.Context(), userID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) ListShareLinkAccessLogs(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	items, err := h.AccessLogs.ListShareLinkAccessLogs(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
