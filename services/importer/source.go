package importer

import (
	"context"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/firebird"
	"licensing-controlplane/services/client"
)

//go:generate mockgen -destination=mock/source.go -package=mock . Source

// Source yields the legacy client rows to import.
type Source interface {
	Fetch(ctx context.Context) ([]client.Record, error)
}

// LegacySource reads clients from the legacy Firebird catalog. The query
// must select key, name, tax id, email and phone in that order.
type LegacySource struct {
	reader *firebird.Reader
	query  string
}

func NewLegacySource(cfg *config.Config) (*LegacySource, error) {
	reader, err := firebird.NewReader(firebird.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &LegacySource{reader: reader, query: cfg.Legacy.Query}, nil
}

func (s *LegacySource) Fetch(ctx context.Context) ([]client.Record, error) {
	rows, err := s.reader.Query(ctx, s.query)
	if err != nil {
		return nil, err
	}

	out := make([]client.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, recordOf(row))
	}
	return out, nil
}

func recordOf(row firebird.Row) client.Record {
	col := func(i int) *string {
		if i < len(row) {
			return row[i]
		}
		return nil
	}

	var rec client.Record
	if key := col(0); key != nil {
		rec.Key = *key
	}
	rec.Name = col(1)
	rec.TaxID = col(2)
	rec.Email = col(3)
	rec.Phone = col(4)
	return rec
}
