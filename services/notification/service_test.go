package notification

import (
	"context"
	"errors"
	"testing"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/mailer"
	"licensing-controlplane/services/catalog"
	"licensing-controlplane/services/client"
	"licensing-controlplane/services/license"
	"licensing-controlplane/services/notification/mock"
	"licensing-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type licenseSource map[license.Status][]*license.License

func (s licenseSource) FindSubscriptions(_ context.Context, status license.Status) ([]*license.License, error) {
	return s[status], nil
}

type failingSource struct{}

func (failingSource) FindSubscriptions(context.Context, license.Status) ([]*license.License, error) {
	return nil, errors.New("database is gone")
}

func newTestService(t *testing.T, src LicenseSource, d Dispatcher) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Notification.AdminEmail = "admin@vendor.test"
	cfg.Notification.InternalCategory = catalog.PrimaryVendorSuite.String()
	cfg.Notification.SenderName = "Licensing desk"
	cfg.Notification.CompanyName = "Vendor Ltd"

	svc, err := NewService(ServiceParams{Config: cfg, Licenses: src, Dispatcher: d})
	require.NoError(t, err)
	return svc
}

func strptr(s string) *string { return &s }

func subscription(identifier string, email *string, category catalog.Category) *license.License {
	end := testutil.Date(2024, 2, 1)
	return &license.License{
		ID:         identifier,
		ClientKey:  "       100",
		Identifier: identifier,
		Type:       license.TypeSubscription,
		Period:     license.PeriodMonthly,
		Status:     license.StatusExpired,
		EndDate:    &end,
		Client: &client.Client{
			Key:   "       100",
			Name:  "ACME Ltd",
			TaxID: strptr("12.345.678/0001-90"),
			Email: email,
		},
		System: &catalog.System{ID: "s-" + identifier, Name: "Ledger Pro", Category: category},
	}
}

func TestExpiredSweep_RoutesByCategory(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mock.NewMockDispatcher(ctrl)

	internal := subscription("LIC-INT", strptr("client@acme.test"), catalog.PrimaryVendorSuite)
	external := subscription("LIC-EXT", strptr("client@acme.test"), catalog.Antivirus)
	src := licenseSource{license.StatusExpired: {internal, external}}

	var sent []*mailer.Message
	d.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *mailer.Message) error {
			sent = append(sent, msg)
			return nil
		}).Times(2)

	res, err := newTestService(t, src, d).ExpiredSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, &SweepResult{Kind: KindExpired, Found: 2, Sent: 2}, res)

	require.Len(t, sent, 2)
	require.Equal(t, []string{"admin@vendor.test"}, sent[0].To)
	require.Equal(t, "Internal notice: expired license - ACME Ltd (LIC-INT)", sent[0].Subject)
	require.Contains(t, sent[0].Text, "12.345.678/0001-90")

	require.Equal(t, []string{"client@acme.test"}, sent[1].To)
	require.Equal(t, "URGENT: Your Ledger Pro license has expired - LIC-EXT", sent[1].Subject)
	require.Contains(t, sent[1].Text, "01/02/2024")
	require.Contains(t, sent[1].HTML, "01/02/2024")
	require.Contains(t, sent[1].Text, "Vendor Ltd")
}

func TestExpiredSweep_SkipsClientWithoutEmail(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mock.NewMockDispatcher(ctrl)

	src := licenseSource{license.StatusExpired: {
		subscription("LIC-1", nil, catalog.Antivirus),
		subscription("LIC-2", strptr("   "), catalog.Other),
	}}

	res, err := newTestService(t, src, d).ExpiredSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Found)
	require.Equal(t, 2, res.Skipped)
	require.Zero(t, res.Sent)
}

func TestExpiredSweep_ContinuesAfterSendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mock.NewMockDispatcher(ctrl)

	src := licenseSource{license.StatusExpired: {
		subscription("LIC-1", strptr("first@acme.test"), catalog.Antivirus),
		subscription("LIC-2", strptr("second@acme.test"), catalog.Antivirus),
	}}

	gomock.InOrder(
		d.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("smtp timeout")),
		d.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil),
	)

	res, err := newTestService(t, src, d).ExpiredSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, &SweepResult{Kind: KindExpired, Found: 2, Sent: 1, Failed: 1}, res)
}

func TestExpiredSweep_MissingAdminEmail(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mock.NewMockDispatcher(ctrl)

	src := licenseSource{license.StatusExpired: {
		subscription("LIC-INT", strptr("client@acme.test"), catalog.PrimaryVendorSuite),
	}}
	svc := newTestService(t, src, d)
	svc.routing.AdminEmail = ""

	res, err := svc.ExpiredSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
}

func TestPendingSweep_ExcludesInternalCategory(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mock.NewMockDispatcher(ctrl)

	internal := subscription("LIC-INT", strptr("client@acme.test"), catalog.PrimaryVendorSuite)
	internal.Status = license.StatusPendingRenewal
	external := subscription("LIC-EXT", strptr("client@acme.test"), catalog.OfficeProductivitySuite)
	external.Status = license.StatusPendingRenewal
	src := licenseSource{license.StatusPendingRenewal: {internal, external}}

	d.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *mailer.Message) error {
			require.Equal(t, []string{"client@acme.test"}, msg.To)
			require.Equal(t, "WARNING: Your Ledger Pro license is about to expire - LIC-EXT", msg.Subject)
			return nil
		})

	res, err := newTestService(t, src, d).PendingSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, &SweepResult{Kind: KindPending, Found: 1, Sent: 1}, res)
}

func TestSweep_SourceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mock.NewMockDispatcher(ctrl)

	_, err := newTestService(t, failingSource{}, d).PendingSweep(context.Background())
	require.Error(t, err)
}

func TestRouting_Resolve(t *testing.T) {
	r := Routing{InternalCategory: catalog.PrimaryVendorSuite, AdminEmail: " admin@vendor.test "}

	rcpt, err := r.Resolve(subscription("A", nil, catalog.PrimaryVendorSuite))
	require.NoError(t, err)
	require.Equal(t, Recipient{Audience: AudienceInternal, Address: "admin@vendor.test"}, rcpt)

	rcpt, err = r.Resolve(subscription("B", strptr("c@acme.test"), catalog.Other))
	require.NoError(t, err)
	require.Equal(t, AudienceClient, rcpt.Audience)

	_, err = r.Resolve(subscription("C", nil, catalog.Other))
	require.ErrorIs(t, err, ErrNoClientEmail)
}
