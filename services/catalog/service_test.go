package catalog

import (
	"context"
	"testing"

	"licensing-controlplane/pkg/errutil"
	"licensing-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type usageStub map[string]int64

func (u usageStub) CountBySystem(_ context.Context, _ *gorm.DB, id string) (int64, error) {
	return u[id], nil
}

func newService(t *testing.T, usage usageStub) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &System{})
	return NewService(ServiceParams{DB: db, Node: testutil.NewNode(t), Usage: usage})
}

func TestCreateDefaultsCategory(t *testing.T) {
	svc := newService(t, usageStub{})

	sys, err := svc.Create(context.Background(), &CreateRequest{Name: " Payroll "})
	require.NoError(t, err)
	require.NotEmpty(t, sys.ID)
	require.Equal(t, "Payroll", sys.Name)
	require.Equal(t, Other, sys.Category)

	_, err = svc.Create(context.Background(), &CreateRequest{Name: "Payroll", Category: Antivirus})
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	_, err = svc.Create(context.Background(), &CreateRequest{Name: "Mail", Category: "unknown"})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestListAndUpdate(t *testing.T) {
	svc := newService(t, usageStub{})

	b, err := svc.Create(context.Background(), &CreateRequest{Name: "Billing", Category: PrimaryVendorSuite})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), &CreateRequest{Name: "Antivirus Pro", Category: Antivirus})
	require.NoError(t, err)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "Antivirus Pro", all[0].Name)

	desc := "invoicing"
	cat := OfficeProductivitySuite
	updated, err := svc.Update(context.Background(), b.ID, &UpdateRequest{Description: &desc, Category: &cat})
	require.NoError(t, err)
	require.Equal(t, "invoicing", updated.Description)
	require.Equal(t, OfficeProductivitySuite, updated.Category)
	require.Equal(t, "Billing", updated.Name)

	stored, err := svc.Get(context.Background(), b.ID)
	require.NoError(t, err)
	require.Equal(t, "invoicing", stored.Description)
	require.Equal(t, OfficeProductivitySuite, stored.Category)

	taken := "Antivirus Pro"
	_, err = svc.Update(context.Background(), b.ID, &UpdateRequest{Name: &taken})
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	_, err = svc.Update(context.Background(), "404", &UpdateRequest{})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestDeleteProtectedWhileReferenced(t *testing.T) {
	usage := usageStub{}
	svc := newService(t, usage)

	sys, err := svc.Create(context.Background(), &CreateRequest{Name: "Billing"})
	require.NoError(t, err)

	usage[sys.ID] = 3
	require.True(t, errutil.Is(svc.Delete(context.Background(), sys.ID), errutil.StatusConflict))

	usage[sys.ID] = 0
	require.NoError(t, svc.Delete(context.Background(), sys.ID))

	_, err = svc.Get(context.Background(), sys.ID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
	require.True(t, errutil.Is(svc.Delete(context.Background(), sys.ID), errutil.StatusNotFound))
}

func TestCategoryString(t *testing.T) {
	require.Equal(t, "antivirus", Antivirus.String())
	require.Equal(t, "", Category("games").String())
	require.Equal(t, "Primary vendor suite", PrimaryVendorSuite.Label())
}
