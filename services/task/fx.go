package task

import (
	"licensing-controlplane/pkg/taskname"
	"licensing-controlplane/services/license"
	"licensing-controlplane/services/notification"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("task.service",
	fx.Provide(
		NewService,
		func(s *notification.Service) Sweeper { return s },
		func(s *license.Service) StatusRefresher { return s },
	),
)

// WorkerModule serves the license tasks from the queue.
var WorkerModule = fx.Module("task.worker",
	fx.Invoke(registerHandlers),
)

// SchedulerModule enqueues the license tasks on their cron schedules.
var SchedulerModule = fx.Module("task.scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)

// ServerModule exposes run history and manual triggers over HTTP.
var ServerModule = fx.Module("task.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.RegisterRoutes(r)
}

func registerHandlers(mux *asynq.ServeMux, svc *Service) {
	for _, name := range taskname.All {
		mux.HandleFunc(name, svc.HandleTask)
	}
}
