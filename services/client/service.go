package client

import (
	"context"
	"strings"
	"time"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/db/option"
	"licensing-controlplane/pkg/db/pagination"
	"licensing-controlplane/pkg/errutil"
	applog "licensing-controlplane/pkg/logger"
	"licensing-controlplane/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LicenseIndex is the view of the license store the registry needs. It is
// satisfied by the license service.
type LicenseIndex interface {
	ExpiredSubscriptionClients(ctx context.Context, keys []string, today time.Time) (map[string]bool, error)
	DeleteForClient(ctx context.Context, tx *gorm.DB, key string) (int64, error)
	DeleteAll(ctx context.Context, tx *gorm.DB) (int64, error)
}

type Service struct {
	db       *gorm.DB
	config   *config.Config
	repo     repository.Repository[Client]
	licenses LicenseIndex
	clock    func() time.Time
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Config   *config.Config
	Licenses LicenseIndex `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		config:   p.Config,
		repo:     repository.ProvideStore[Client](p.DB),
		licenses: p.Licenses,
		clock:    time.Now,
	}
}

// WithTx returns a copy of the service bound to tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	cp := *s
	cp.db = tx
	cp.repo = s.repo.WithTrx(tx)
	return &cp
}

func (s *Service) today() time.Time {
	y, m, d := s.clock().In(s.config.Location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) List(ctx context.Context, f Filter, page pagination.Pagination) ([]*Summary, *pagination.PageInfo, error) {
	zapLog := applog.FromContext(ctx)

	opts := make([]option.QueryOption, 0, 3)
	if v := strings.TrimSpace(f.TaxID); v != "" {
		opts = append(opts, option.WithWhere("LOWER(tax_id) LIKE ?", "%"+strings.ToLower(v)+"%"))
	}
	if strings.TrimSpace(f.Key) != "" {
		opts = append(opts, option.WithWhere("client_key = ?", PadKey(f.Key)))
	}
	if v := strings.TrimSpace(f.Name); v != "" {
		opts = append(opts, option.WithWhere("LOWER(name) LIKE ?", "%"+strings.ToLower(v)+"%"))
	}

	total, err := s.repo.Count(ctx, &Client{}, opts...)
	if err != nil {
		zapLog.Error("failed to count clients", zap.Error(err))
		return nil, nil, errutil.Internal("failed to list clients", err)
	}

	opts = append(opts, option.WithOrder("name"), option.ApplyPagination(page))
	clients, err := s.repo.Find(ctx, &Client{}, opts...)
	if err != nil {
		zapLog.Error("failed to list clients", zap.Error(err))
		return nil, nil, errutil.Internal("failed to list clients", err)
	}

	expired := map[string]bool{}
	if s.licenses != nil && len(clients) > 0 {
		keys := make([]string, 0, len(clients))
		for _, c := range clients {
			keys = append(keys, c.Key)
		}
		expired, err = s.licenses.ExpiredSubscriptionClients(ctx, keys, s.today())
		if err != nil {
			zapLog.Error("failed to annotate expired subscriptions", zap.Error(err))
			return nil, nil, errutil.Internal("failed to list clients", err)
		}
	}

	out := make([]*Summary, 0, len(clients))
	for _, c := range clients {
		out = append(out, &Summary{Client: c, HasExpiredSubscription: expired[c.Key]})
	}

	return out, pagination.BuildPageInfo(page, total), nil
}

func (s *Service) Get(ctx context.Context, key string) (*Client, error) {
	c, err := s.repo.FindOne(ctx, &Client{Key: key})
	if err != nil {
		applog.FromContext(ctx).Error("failed to get client", zap.String("client_key", key), zap.Error(err))
		return nil, errutil.Internal("failed to get client", err)
	}
	if c == nil {
		return nil, errutil.NotFound("client not found", nil)
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Client, error) {
	zapLog := applog.FromContext(ctx).With(zap.String("client_key", req.Key))

	var fields errutil.FieldErrors
	if strings.TrimSpace(req.Key) == "" {
		fields.Add("key", "key is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		fields.Add("name", "name is required")
	}
	if err := fields.Err("invalid client"); err != nil {
		return nil, err
	}

	exist, err := s.repo.FindOne(ctx, &Client{Key: req.Key})
	if err != nil {
		zapLog.Error("failed to check client key", zap.Error(err))
		return nil, errutil.Internal("failed to create client", err)
	}
	if exist != nil {
		return nil, errutil.Conflict("client key already exists", nil,
			errutil.WithDetails(errutil.Detail{Field: "key", Message: "already exists"}))
	}

	c := &Client{
		Key:   req.Key,
		Name:  strings.TrimSpace(req.Name),
		TaxID: trimmed(req.TaxID),
		Email: trimmed(req.Email),
		Phone: trimmed(req.Phone),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		zapLog.Error("failed to create client", zap.Error(err))
		return nil, errutil.Internal("failed to create client", err)
	}

	zapLog.Info("client created")
	return c, nil
}

func (s *Service) Update(ctx context.Context, key string, req *UpdateRequest) (*Client, error) {
	c, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			var fields errutil.FieldErrors
			fields.Add("name", "name is required")
			return nil, fields.Err("invalid client")
		}
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.TaxID != nil {
		c.TaxID = trimmed(req.TaxID)
	}
	if req.Email != nil {
		c.Email = trimmed(req.Email)
	}
	if req.Phone != nil {
		c.Phone = trimmed(req.Phone)
	}

	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		applog.FromContext(ctx).Error("failed to update client", zap.String("client_key", key), zap.Error(err))
		return nil, errutil.Internal("failed to update client", err)
	}
	return c, nil
}

// Delete removes the client and every license it owns in one transaction.
func (s *Service) Delete(ctx context.Context, key string) error {
	zapLog := applog.FromContext(ctx).With(zap.String("client_key", key))

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.repo.WithTrx(tx).Count(ctx, &Client{Key: key})
		if err != nil {
			zapLog.Error("failed to find client", zap.Error(err))
			return errutil.Internal("failed to delete client", err)
		}
		if n == 0 {
			return errutil.NotFound("client not found", nil)
		}

		if s.licenses != nil {
			removed, err := s.licenses.DeleteForClient(ctx, tx, key)
			if err != nil {
				zapLog.Error("failed to delete client licenses", zap.Error(err))
				return errutil.Internal("failed to delete client", err)
			}
			zapLog.Info("client licenses deleted", zap.Int64("count", removed))
		}

		if _, err := s.repo.WithTrx(tx).Delete(ctx, &Client{Key: key}); err != nil {
			zapLog.Error("failed to delete client", zap.Error(err))
			return errutil.Internal("failed to delete client", err)
		}

		zapLog.Info("client deleted")
		return nil
	})
}

// Upsert creates or updates the client identified by rec.Key. The key is
// used verbatim. Nil fields never overwrite stored values.
func (s *Service) Upsert(ctx context.Context, rec Record) (bool, error) {
	c, err := s.repo.FindOne(ctx, &Client{Key: rec.Key})
	if err != nil {
		return false, err
	}

	created := c == nil
	if created {
		c = &Client{Key: rec.Key}
	}
	if rec.Name != nil {
		c.Name = *rec.Name
	}
	if rec.TaxID != nil {
		c.TaxID = rec.TaxID
	}
	if rec.Email != nil {
		c.Email = rec.Email
	}
	if rec.Phone != nil {
		c.Phone = rec.Phone
	}

	if created {
		return true, s.repo.Create(ctx, c)
	}
	return false, s.db.WithContext(ctx).Save(c).Error
}

// DeleteAll removes every client and, through the license index, every
// license.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	if s.licenses != nil {
		if _, err := s.licenses.DeleteAll(ctx, s.db); err != nil {
			return 0, err
		}
	}
	res := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Client{})
	return res.RowsAffected, res.Error
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
