package license

import (
	"licensing-controlplane/services/catalog"
	"licensing-controlplane/services/client"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("license.module",
	fx.Provide(
		NewService,
		func(s *Service) client.LicenseIndex { return s },
		func(s *Service) catalog.UsageCounter { return s },
	),
)

var ServerModule = fx.Module("license.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.RegisterRoutes(r)
}
