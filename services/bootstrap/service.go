package bootstrap

import (
	"context"
	"fmt"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/services/catalog"
	"licensing-controlplane/services/client"
	"licensing-controlplane/services/license"
	"licensing-controlplane/services/task"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table owned by the control plane, parents first.
var Models = []any{
	&client.Client{},
	&catalog.System{},
	&license.License{},
	&task.SweepRun{},
}

type Service struct {
	db     *gorm.DB
	config *config.Config
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		config: p.Config,
	}
}

// Migrate brings the schema up to date when DATABASE.AUTO_MIGRATE is set.
func (s *Service) Migrate(ctx context.Context) error {
	if !s.config.Database.AutoMigrate {
		zap.L().Info("[bootstrap] auto migrate disabled")
		return nil
	}

	if err := s.db.WithContext(ctx).AutoMigrate(Models...); err != nil {
		zap.L().Error("[bootstrap] failed to migrate schema", zap.Error(err))
		return fmt.Errorf("migrate schema: %w", err)
	}

	zap.L().Info("[bootstrap] schema migrated", zap.Int("tables", len(Models)))
	return nil
}
