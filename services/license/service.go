package license

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
	"licensing-controlplane/services/catalog"
	"licensing-controlplane/services/client"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const refreshBatchSize = 100

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	config  *config.Config
	repo    repository.Repository[License]
	clients repository.Repository[client.Client]
	systems repository.Repository[catalog.System]
	clock   func() time.Time
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		config:  p.Config,
		repo:    repository.ProvideStore[License](p.DB),
		clients: repository.ProvideStore[client.Client](p.DB),
		systems: repository.ProvideStore[catalog.System](p.DB),
		clock:   time.Now,
	}
}

// Today is the current calendar date in the configured business timezone.
func (s *Service) Today() time.Time {
	return DateOf(s.clock().In(s.config.Location()))
}

type ListFilter struct {
	Status Status `form:"status"`
	Type   Type   `form:"type"`
}

// List returns every license in the default order: end date, then client.
func (s *Service) List(ctx context.Context, f ListFilter, page pagination.Pagination) ([]*License, *pagination.PageInfo, error) {
	zapLog := applog.FromContext(ctx)

	query := &License{Status: f.Status, Type: f.Type}
	total, err := s.repo.Count(ctx, query)
	if err != nil {
		zapLog.Error("failed to count licenses", zap.Error(err))
		return nil, nil, errutil.Internal("failed to list licenses", err)
	}

	licenses, err := s.repo.Find(ctx, query,
		option.WithPreload("System"),
		option.WithOrder("end_date, client_key"),
		option.ApplyPagination(page),
	)
	if err != nil {
		zapLog.Error("failed to list licenses", zap.Error(err))
		return nil, nil, errutil.Internal("failed to list licenses", err)
	}

	return licenses, pagination.BuildPageInfo(page, total), nil
}

// ListByClient returns the client's licenses, latest end date first.
func (s *Service) ListByClient(ctx context.Context, clientKey string) ([]*License, error) {
	zapLog := applog.FromContext(ctx).With(zap.String("client_key", clientKey))

	if err := s.ensureClient(ctx, s.db, clientKey); err != nil {
		return nil, err
	}

	licenses, err := s.repo.Find(ctx, &License{ClientKey: clientKey},
		option.WithPreload("System"),
		option.WithOrder("end_date DESC"),
	)
	if err != nil {
		zapLog.Error("failed to list client licenses", zap.Error(err))
		return nil, errutil.Internal("failed to list licenses", err)
	}
	return licenses, nil
}

func (s *Service) Get(ctx context.Context, clientKey, id string) (*License, error) {
	l, err := s.repo.FindOne(ctx, &License{ID: id, ClientKey: clientKey}, option.WithPreload("System"))
	if err != nil {
		applog.FromContext(ctx).Error("failed to get license", zap.String("license_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to get license", err)
	}
	if l == nil {
		return nil, errutil.NotFound("license not found", nil)
	}
	return l, nil
}

func (s *Service) Create(ctx context.Context, clientKey string, req *CreateRequest) (*License, error) {
	zapLog := applog.FromContext(ctx).With(zap.String("client_key", clientKey))
	today := s.Today()

	requested := req.Status
	if requested == "" {
		requested = StatusActive
	}
	if requested.String() == "" {
		return nil, statusFieldError()
	}

	l := &License{
		ID:              s.node.Generate().String(),
		ClientKey:       clientKey,
		SystemID:        req.SystemID,
		Identifier:      strings.TrimSpace(req.Identifier),
		SoftwareVersion: req.SoftwareVersion,
		SystemVersion:   req.SystemVersion,
		AcquiredOn:      fromCivil(req.AcquiredOn),
		StartDate:       fromCivil(req.StartDate),
		Type:            req.Type,
		Period:          req.Period,
		Notes:           req.Notes,
		UserCount:       1,
	}
	if l.Type == "" {
		l.Type = TypeSubscription
	}
	if l.StartDate == nil {
		start := today
		l.StartDate = &start
	}
	if req.UserCount != nil {
		l.UserCount = *req.UserCount
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureClient(ctx, tx, clientKey); err != nil {
			return err
		}
		sys, err := s.ensureSystem(ctx, tx, l.SystemID)
		if err != nil {
			return err
		}
		l.System = sys
		return s.persist(ctx, tx, l, requested, today, true)
	})
	if err != nil {
		return nil, err
	}

	zapLog.Info("license created",
		zap.String("license_id", l.ID),
		zap.String("identifier", l.Identifier),
		zap.String("status", string(l.Status)),
	)
	return l, nil
}

// Update applies an edit, or a renewal when PaymentConfirmed is set, in one
// transaction.
func (s *Service) Update(ctx context.Context, clientKey, id string, req *UpdateRequest) (*License, error) {
	zapLog := applog.FromContext(ctx).With(zap.String("client_key", clientKey), zap.String("license_id", id))
	today := s.Today()

	var l *License
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		l, err = s.repo.WithTrx(tx).FindOne(ctx, &License{ID: id, ClientKey: clientKey}, option.WithPreload("System"))
		if err != nil {
			zapLog.Error("failed to load license", zap.Error(err))
			return errutil.Internal("failed to update license", err)
		}
		if l == nil {
			return errutil.NotFound("license not found", nil)
		}

		requested := req.Status
		if requested == "" {
			requested = l.Status
		}
		if requested.String() == "" {
			return statusFieldError()
		}

		if req.SystemVersion != nil {
			l.SystemVersion = req.SystemVersion
		}
		if req.Notes != nil {
			l.Notes = *req.Notes
		}
		if req.StartDate != nil {
			l.StartDate = fromCivil(req.StartDate)
		}

		if req.PaymentConfirmed && renewable(l) {
			l.StartDate = fromCivil(req.StartDate)
			l.EndDate = nil
			requested = StatusActive
			zapLog.Info("renewing license")
		}

		return s.persist(ctx, tx, l, requested, today, false)
	})
	if err != nil {
		return nil, err
	}

	zapLog.Info("license updated", zap.String("status", string(l.Status)))
	return l, nil
}

func (s *Service) Delete(ctx context.Context, clientKey, id string) error {
	zapLog := applog.FromContext(ctx).With(zap.String("client_key", clientKey), zap.String("license_id", id))

	n, err := s.repo.Delete(ctx, &License{ID: id, ClientKey: clientKey})
	if err != nil {
		zapLog.Error("failed to delete license", zap.Error(err))
		return errutil.Internal("failed to delete license", err)
	}
	if n == 0 {
		return errutil.NotFound("license not found", nil)
	}

	zapLog.Info("license deleted")
	return nil
}

type RefreshResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// RefreshStatuses re-runs the write path over every license so stored
// statuses follow the calendar between edits. A license that fails
// validation is logged and left untouched.
func (s *Service) RefreshStatuses(ctx context.Context) (*RefreshResult, error) {
	zapLog := applog.FromContext(ctx)
	today := s.Today()
	res := &RefreshResult{}

	var batch []*License
	err := s.db.WithContext(ctx).FindInBatches(&batch, refreshBatchSize, func(_ *gorm.DB, _ int) error {
		var dirty []*License
		for _, l := range batch {
			res.Scanned++

			before := *l
			if err := Prepare(l, before.Status, today); err != nil {
				res.Failed++
				zapLog.Warn("license failed validation during refresh",
					zap.String("license_id", l.ID),
					zap.String("identifier", l.Identifier),
					zap.Error(err),
				)
				continue
			}
			if changed(&before, l) {
				dirty = append(dirty, l)
			}
		}
		if err := s.repo.BatchUpdate(ctx, dirty); err != nil {
			return err
		}
		res.Updated += len(dirty)
		return ctx.Err()
	}).Error
	if err != nil {
		zapLog.Error("failed to refresh license statuses", zap.Error(err))
		return res, errutil.Internal("failed to refresh license statuses", err)
	}

	zapLog.Info("license statuses refreshed",
		zap.Int("scanned", res.Scanned),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// FindSubscriptions loads the subscription licenses in the given status with
// their client and system.
func (s *Service) FindSubscriptions(ctx context.Context, status Status) ([]*License, error) {
	return s.repo.Find(ctx, &License{Type: TypeSubscription, Status: status},
		option.WithPreload("Client"),
		option.WithPreload("System"),
		option.WithOrder("end_date, client_key"),
	)
}

func (s *Service) ExpiredSubscriptionClients(ctx context.Context, keys []string, today time.Time) (map[string]bool, error) {
	var hits []string
	err := s.db.WithContext(ctx).Model(&License{}).
		Distinct("client_key").
		Where("client_key IN ?", keys).
		Where("type = ? AND end_date < ?", TypeSubscription, DateOf(today)).
		Pluck("client_key", &hits).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]bool, len(hits))
	for _, k := range hits {
		out[k] = true
	}
	return out, nil
}

func (s *Service) DeleteForClient(ctx context.Context, tx *gorm.DB, key string) (int64, error) {
	return s.repo.WithTrx(tx).Delete(ctx, &License{ClientKey: key})
}

func (s *Service) DeleteAll(ctx context.Context, tx *gorm.DB) (int64, error) {
	res := tx.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&License{})
	return res.RowsAffected, res.Error
}

func (s *Service) CountBySystem(ctx context.Context, tx *gorm.DB, systemID string) (int64, error) {
	return s.repo.WithTrx(tx).Count(ctx, &License{SystemID: systemID})
}

// persist is the single write path: derive, validate, check uniqueness, write.
func (s *Service) persist(ctx context.Context, tx *gorm.DB, l *License, requested Status, today time.Time, create bool) error {
	zapLog := applog.FromContext(ctx).With(zap.String("license_id", l.ID))

	if err := Prepare(l, requested, today); err != nil {
		return err
	}

	var dup int64
	if err := tx.WithContext(ctx).Model(&License{}).
		Where("identifier = ? AND id <> ?", l.Identifier, l.ID).
		Count(&dup).Error; err != nil {
		zapLog.Error("failed to check license identifier", zap.Error(err))
		return errutil.Internal("failed to save license", err)
	}
	if dup > 0 {
		return errutil.Conflict("license identifier already exists", nil,
			errutil.WithDetails(errutil.Detail{Field: "identifier", Message: "already exists"}))
	}

	q := tx.WithContext(ctx).Omit(clause.Associations)
	var err error
	if create {
		err = q.Create(l).Error
	} else {
		err = q.Save(l).Error
	}
	if err != nil {
		zapLog.Error("failed to save license", zap.Error(err))
		return errutil.Internal("failed to save license", err)
	}
	return nil
}

func (s *Service) ensureClient(ctx context.Context, tx *gorm.DB, key string) error {
	n, err := s.clients.WithTrx(tx).Count(ctx, &client.Client{Key: key})
	if err != nil {
		return errutil.Internal("failed to load client", err)
	}
	if n == 0 {
		return errutil.NotFound("client not found", nil)
	}
	return nil
}

func (s *Service) ensureSystem(ctx context.Context, tx *gorm.DB, id string) (*catalog.System, error) {
	if id == "" {
		return nil, nil
	}
	sys, err := s.systems.WithTrx(tx).FindOne(ctx, &catalog.System{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load system", err)
	}
	if sys == nil {
		var fields errutil.FieldErrors
		fields.Add("system_id", "unknown system")
		return nil, fields.Err("invalid license")
	}
	return sys, nil
}

// renewable compares the license type against the perpetual period value.
// The two never match, so every license is eligible for renewal.
func renewable(l *License) bool {
	return string(l.Type) != string(PeriodPerpetual)
}

func changed(before, after *License) bool {
	return before.Status != after.Status ||
		!sameDate(before.StartDate, after.StartDate) ||
		!sameDate(before.EndDate, after.EndDate)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return DateOf(*a).Equal(DateOf(*b))
}

func statusFieldError() error {
	var fields errutil.FieldErrors
	fields.Add("status", "unknown status")
	return fields.Err("invalid license")
}
