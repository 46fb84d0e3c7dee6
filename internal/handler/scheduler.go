package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"guessrounds/internal/service"
)

// SchedulerHandler exposes the lifecycle tick over HTTP so an external
// scheduler (or an operator) can drive rounds in addition to the internal
// cron. Invocations are idempotent, overlapping calls are safe.
type SchedulerHandler struct {
	Scheduler *service.Scheduler
}

func (h *SchedulerHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/scheduler", h.run)
}

func (h *SchedulerHandler) run(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	stats := h.Scheduler.Run(c.Request.Context(), time.Now().UTC())
	Ok(c, stats, nil)
}
