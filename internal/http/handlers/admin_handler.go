// README: Admin reporting handler.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dashr/internal/modules/stats"
)

type StatsService interface {
	Report(ctx context.Context, days int) (*stats.Report, error)
}

type StatsHandler struct {
	stats StatsService
}

func NewStatsHandler(svc StatsService) *StatsHandler {
	return &StatsHandler{stats: svc}
}

func (h *StatsHandler) Get(c *gin.Context) {
	days := 0
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = n
	}
	r, err := h.stats.Report(c.Request.Context(), days)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
