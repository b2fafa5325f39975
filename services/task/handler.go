package task

import (
	"errors"
	"net/http"

	"licensing-controlplane/pkg/errutil"
	"licensing-controlplane/pkg/taskname"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

type Handler struct {
	service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{service: svc}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/v1/tasks")
	g.GET("/runs", h.ListRuns)
	g.POST("/:name/runs", h.Trigger)
}

type listRunsQuery struct {
	Task  string `form:"task"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

func (h *Handler) ListRuns(c *gin.Context) {
	var q listRunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}
	if q.Task != "" {
		name, ok := taskname.Lookup(q.Task)
		if !ok {
			_ = c.Error(errutil.NotFound("unknown task", nil))
			return
		}
		q.Task = name
	}
	if q.Limit == 0 {
		q.Limit = 50
	}

	runs, err := h.service.Runs(c.Request.Context(), q.Task, q.Limit)
	if err != nil {
		_ = c.Error(errutil.Internal("failed to list runs", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// Trigger queues a manual run of the named task.
func (h *Handler) Trigger(c *gin.Context) {
	name, ok := taskname.Lookup(c.Param("name"))
	if !ok {
		_ = c.Error(errutil.NotFound("unknown task", nil))
		return
	}

	run, err := h.service.Enqueue(c.Request.Context(), name, "api")
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask):
		_ = c.Error(errutil.Conflict("task already queued", err))
		return
	case err != nil:
		_ = c.Error(errutil.Internal("failed to queue task", err))
		return
	}
	c.JSON(http.StatusAccepted, run)
}
