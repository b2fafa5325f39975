package importer

import (
	"context"
	"fmt"
	"strings"

	applog "licensing-controlplane/pkg/logger"
	"licensing-controlplane/services/client"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	// Truncate removes every client and license before importing.
	Truncate bool
}

type Result struct {
	Fetched   int   `json:"fetched"`
	Created   int   `json:"created"`
	Updated   int   `json:"updated"`
	Skipped   int   `json:"skipped"`
	Truncated int64 `json:"truncated"`
}

type Service struct {
	db      *gorm.DB
	clients *client.Service
	source  Source
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Clients *client.Service
	Source  Source
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		clients: p.Clients,
		source:  p.Source,
	}
}

// Import copies the legacy clients into the registry in a single
// transaction. Any failure rolls the whole import back.
func (s *Service) Import(ctx context.Context, opts Options) (*Result, error) {
	zapLog := applog.FromContext(ctx)

	records, err := s.source.Fetch(ctx)
	if err != nil {
		zapLog.Error("failed to fetch legacy clients", zap.Error(err))
		return nil, fmt.Errorf("import clients: %w", err)
	}

	res := &Result{Fetched: len(records)}
	if len(records) == 0 {
		zapLog.Warn("legacy source returned no clients, nothing to import")
		return res, nil
	}
	zapLog.Info("legacy clients fetched", zap.Int("count", len(records)))

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		clients := s.clients.WithTx(tx)

		if opts.Truncate {
			zapLog.Warn("truncate requested, deleting every client")
			n, err := clients.DeleteAll(ctx)
			if err != nil {
				return fmt.Errorf("truncate clients: %w", err)
			}
			res.Truncated = n
		}

		for i, rec := range records {
			if strings.TrimSpace(rec.Key) == "" {
				res.Skipped++
				zapLog.Error("legacy client without key, skipping", zap.Int("row", i), zap.Stringp("name", rec.Name))
				continue
			}

			created, err := clients.Upsert(ctx, clean(rec))
			if err != nil {
				return fmt.Errorf("upsert client %q: %w", rec.Key, err)
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}
		return nil
	})
	if err != nil {
		zapLog.Error("import rolled back", zap.Error(err))
		return nil, fmt.Errorf("import clients: %w", err)
	}

	zapLog.Info("import finished",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// clean trims every field except the key, which keeps its legacy padding.
func clean(rec client.Record) client.Record {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	return client.Record{
		Key:   rec.Key,
		Name:  trim(rec.Name),
		TaxID: trim(rec.TaxID),
		Email: trim(rec.Email),
		Phone: trim(rec.Phone),
	}
}
