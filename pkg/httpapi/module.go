package httpapi

import (
	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/health"
	"licensing-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine),
	fx.Invoke(registerHealthEndpoint),
)

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Error(),
	)
	return r
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}
