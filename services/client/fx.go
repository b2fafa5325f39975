package client

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("client.module",
	fx.Provide(NewService),
)

var ServerModule = fx.Module("client.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.RegisterRoutes(r)
}
