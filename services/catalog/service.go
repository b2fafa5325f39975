package catalog

import (
	"context"
	"strings"

	"licensing-controlplane/pkg/db/option"
	"licensing-controlplane/pkg/errutil"
	applog "licensing-controlplane/pkg/logger"
	"licensing-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UsageCounter reports how many licenses reference a system.
type UsageCounter interface {
	CountBySystem(ctx context.Context, tx *gorm.DB, systemID string) (int64, error)
}

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	repo  repository.Repository[System]
	usage UsageCounter
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Usage UsageCounter `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		repo:  repository.ProvideStore[System](p.DB),
		usage: p.Usage,
	}
}

func (s *Service) List(ctx context.Context) ([]*System, error) {
	systems, err := s.repo.Find(ctx, &System{}, option.WithOrder("name"))
	if err != nil {
		applog.FromContext(ctx).Error("failed to list systems", zap.Error(err))
		return nil, errutil.Internal("failed to list systems", err)
	}
	return systems, nil
}

func (s *Service) Get(ctx context.Context, id string) (*System, error) {
	sys, err := s.repo.FindOne(ctx, &System{ID: id})
	if err != nil {
		applog.FromContext(ctx).Error("failed to get system", zap.String("system_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to get system", err)
	}
	if sys == nil {
		return nil, errutil.NotFound("system not found", nil)
	}
	return sys, nil
}

func (s *Service) Create(ctx context.Context, req *CreateRequest) (*System, error) {
	zapLog := applog.FromContext(ctx)

	sys := &System{
		ID:          s.node.Generate().String(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    req.Category,
	}
	if sys.Category == "" {
		sys.Category = Other
	}
	if err := validate(sys); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, sys); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, sys); err != nil {
		zapLog.Error("failed to create system", zap.String("name", sys.Name), zap.Error(err))
		return nil, errutil.Internal("failed to create system", err)
	}

	zapLog.Info("system created", zap.String("system_id", sys.ID), zap.String("name", sys.Name))
	return sys, nil
}

func (s *Service) Update(ctx context.Context, id string, req *UpdateRequest) (*System, error) {
	sys, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		sys.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		sys.Description = *req.Description
	}
	if req.Category != nil {
		sys.Category = *req.Category
	}
	if err := validate(sys); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, sys); err != nil {
		return nil, err
	}

	err = s.repo.Update(ctx, sys.ID, map[string]any{
		"name":        sys.Name,
		"description": sys.Description,
		"category":    sys.Category,
	})
	if err != nil {
		applog.FromContext(ctx).Error("failed to update system", zap.String("system_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to update system", err)
	}
	return s.Get(ctx, id)
}

// Delete refuses to remove a system still referenced by any license.
func (s *Service) Delete(ctx context.Context, id string) error {
	zapLog := applog.FromContext(ctx).With(zap.String("system_id", id))

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)

		sys, err := repo.FindOne(ctx, &System{ID: id})
		if err != nil {
			zapLog.Error("failed to get system", zap.Error(err))
			return errutil.Internal("failed to delete system", err)
		}
		if sys == nil {
			return errutil.NotFound("system not found", nil)
		}

		if s.usage != nil {
			n, err := s.usage.CountBySystem(ctx, tx, id)
			if err != nil {
				zapLog.Error("failed to count system usage", zap.Error(err))
				return errutil.Internal("failed to delete system", err)
			}
			if n > 0 {
				return errutil.Conflict("system is referenced by licenses", nil,
					errutil.WithDetails(errutil.Detail{Field: "id", Message: "referenced by licenses"}))
			}
		}

		if _, err := repo.Delete(ctx, &System{ID: id}); err != nil {
			zapLog.Error("failed to delete system", zap.Error(err))
			return errutil.Internal("failed to delete system", err)
		}

		zapLog.Info("system deleted")
		return nil
	})
}

func (s *Service) ensureUniqueName(ctx context.Context, sys *System) error {
	exist, err := s.repo.FindOne(ctx, &System{Name: sys.Name})
	if err != nil {
		return errutil.Internal("failed to check system name", err)
	}
	if exist != nil && exist.ID != sys.ID {
		return errutil.Conflict("system name already exists", nil,
			errutil.WithDetails(errutil.Detail{Field: "name", Message: "already exists"}))
	}
	return nil
}

func validate(sys *System) error {
	var fields errutil.FieldErrors
	if sys.Name == "" {
		fields.Add("name", "name is required")
	}
	if sys.Category.String() == "" {
		fields.Add("category", "unknown category")
	}
	return fields.Err("invalid system")
}
