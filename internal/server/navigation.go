package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/navigation"
)

func (h *httpHandler) handlePublicNavigation(c *gin.Context) {
	current, ok := currentContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing_context"})
		return
	}
	id, err := strconv.ParseInt(c.Param("navigationId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "navigation_not_found"})
		return
	}

	locale := strings.TrimSpace(c.Query("locale"))
	if locale == "" {
		locale = current.PrimaryLocale
	}

	menu, err := h.navigation.Public(c.Request.Context(), id, current.ID, locale)
	if err != nil {
		if errors.Is(err, navigation.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "navigation_not_found"})
			return
		}
		h.respondInternal(c, "navigation.public.failed", "failed to render navigation", err)
		return
	}
	c.JSON(http.StatusOK, menu)
}
