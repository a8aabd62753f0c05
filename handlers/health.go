package handlers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports process liveness and database reachability.
type HealthHandler struct {
	PG *sql.DB
}

func NewHealthHandler(pg *sql.DB) *HealthHandler {
	return &HealthHandler{PG: pg}
}

func (h *HealthHandler) Health(c *gin.Context) {
	if err := h.PG.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
