package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/firebird"
	"licensing-controlplane/services/client"
	"licensing-controlplane/services/importer/mock"
	"licensing-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func strptr(s string) *string { return &s }

func newTestService(t *testing.T) (*Service, *mock.MockSource, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &client.Client{})
	clients := client.NewService(client.ServiceParams{DB: db, Config: &config.Config{}})
	src := mock.NewMockSource(gomock.NewController(t))
	return NewService(ServiceParams{DB: db, Clients: clients, Source: src}), src, db
}

func find(t *testing.T, db *gorm.DB, key string) *client.Client {
	t.Helper()
	var c client.Client
	require.NoError(t, db.First(&c, "client_key = ?", key).Error)
	return &c
}

func TestImport_CreatesAndUpdates(t *testing.T) {
	svc, src, db := newTestService(t)
	require.NoError(t, db.Create(&client.Client{Key: "       200", Name: "Old name", Phone: strptr("555-0100")}).Error)

	src.EXPECT().Fetch(gomock.Any()).Return([]client.Record{
		{Key: "       100", Name: strptr("  ACME Ltd  "), TaxID: strptr(" AAA010101AAA "), Email: strptr(" ops@acme.test ")},
		{Key: "       200", Name: strptr("New name"), Phone: nil},
		{Key: "", Name: strptr("No key")},
		{Key: "   ", Name: strptr("Blank key")},
	}, nil)

	res, err := svc.Import(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, &Result{Fetched: 4, Created: 1, Updated: 1, Skipped: 2}, res)

	acme := find(t, db, "       100")
	require.Equal(t, "ACME Ltd", acme.Name)
	require.Equal(t, "AAA010101AAA", *acme.TaxID)
	require.Equal(t, "ops@acme.test", *acme.Email)
	require.Nil(t, acme.Phone)

	updated := find(t, db, "       200")
	require.Equal(t, "New name", updated.Name)
	require.NotNil(t, updated.Phone, "null source values keep the stored value")
	require.Equal(t, "555-0100", *updated.Phone)

	var count int64
	require.NoError(t, db.Model(&client.Client{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestImport_EmptySourceChangesNothing(t *testing.T) {
	svc, src, db := newTestService(t)
	require.NoError(t, db.Create(&client.Client{Key: "         1", Name: "Keep me"}).Error)

	src.EXPECT().Fetch(gomock.Any()).Return(nil, nil)

	res, err := svc.Import(context.Background(), Options{Truncate: true})
	require.NoError(t, err)
	require.Zero(t, res.Fetched)
	require.Zero(t, res.Truncated)
	find(t, db, "         1")
}

func TestImport_Truncate(t *testing.T) {
	svc, src, db := newTestService(t)
	require.NoError(t, db.Create(&client.Client{Key: "         1", Name: "Gone"}).Error)
	require.NoError(t, db.Create(&client.Client{Key: "         2", Name: "Gone too"}).Error)

	src.EXPECT().Fetch(gomock.Any()).Return([]client.Record{{Key: "         3", Name: strptr("Fresh")}}, nil)

	res, err := svc.Import(context.Background(), Options{Truncate: true})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Truncated)
	require.Equal(t, 1, res.Created)

	var keys []string
	require.NoError(t, db.Model(&client.Client{}).Pluck("client_key", &keys).Error)
	require.Equal(t, []string{"         3"}, keys)
}

func TestImport_RollsBackOnFailure(t *testing.T) {
	svc, src, db := newTestService(t)
	require.NoError(t, db.Create(&client.Client{Key: "         1", Name: "Survivor"}).Error)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_bad_key", func(tx *gorm.DB) {
		if c, ok := tx.Statement.Dest.(*client.Client); ok && strings.TrimSpace(c.Key) == "BAD" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	src.EXPECT().Fetch(gomock.Any()).Return([]client.Record{
		{Key: "         2", Name: strptr("First")},
		{Key: "       BAD", Name: strptr("Broken")},
	}, nil)

	_, err := svc.Import(context.Background(), Options{Truncate: true})
	require.ErrorContains(t, err, "disk full")

	var keys []string
	require.NoError(t, db.Model(&client.Client{}).Pluck("client_key", &keys).Error)
	require.Equal(t, []string{"         1"}, keys)
}

func TestImport_SourceError(t *testing.T) {
	svc, src, _ := newTestService(t)
	src.EXPECT().Fetch(gomock.Any()).Return(nil, errors.New("connection refused"))

	_, err := svc.Import(context.Background(), Options{})
	require.ErrorContains(t, err, "connection refused")
}

func TestRecordOf(t *testing.T) {
	rec := recordOf(firebird.Row{strptr("  42"), strptr("Name"), nil})
	require.Equal(t, "  42", rec.Key)
	require.Equal(t, "Name", *rec.Name)
	require.Nil(t, rec.TaxID)
	require.Nil(t, rec.Email)
	require.Nil(t, rec.Phone)

	require.Empty(t, recordOf(firebird.Row{nil}).Key)
}
