package license

import (
	"testing"
	"time"

	"licensing-controlplane/pkg/errutil"
	"licensing-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	cases := []struct {
		name   string
		in     time.Time
		months int
		want   time.Time
	}{
		{"jan31 plus month leap", testutil.Date(2024, 1, 31), 1, testutil.Date(2024, 2, 29)},
		{"jan31 plus month", testutil.Date(2023, 1, 31), 1, testutil.Date(2023, 2, 28)},
		{"leap day plus year", testutil.Date(2024, 2, 29), 12, testutil.Date(2025, 2, 28)},
		{"aug31 plus quarter", testutil.Date(2024, 8, 31), 3, testutil.Date(2024, 11, 30)},
		{"year rollover", testutil.Date(2024, 11, 15), 3, testutil.Date(2025, 2, 15)},
		{"plain", testutil.Date(2024, 1, 1), 1, testutil.Date(2024, 2, 1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, tc.want.Equal(AddMonths(tc.in, tc.months)), "got %s", AddMonths(tc.in, tc.months))
		})
	}
}

func TestComputeEndDate(t *testing.T) {
	start := testutil.Date(2024, 1, 31)

	cases := []struct {
		period BillingPeriod
		want   *time.Time
	}{
		{PeriodMonthly, ptr(testutil.Date(2024, 2, 29))},
		{PeriodQuarterly, ptr(testutil.Date(2024, 4, 30))},
		{PeriodSemiannual, ptr(testutil.Date(2024, 7, 31))},
		{PeriodAnnual, ptr(testutil.Date(2025, 1, 31))},
		{PeriodPerpetual, nil},
		{"", nil},
		{"weekly", nil},
	}

	for _, tc := range cases {
		t.Run(string(tc.period), func(t *testing.T) {
			got := ComputeEndDate(&start, tc.period)
			if tc.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.True(t, tc.want.Equal(*got), "got %s", got)
		})
	}
}

func TestComputeEndDateWithoutStart(t *testing.T) {
	for _, p := range []BillingPeriod{PeriodMonthly, PeriodQuarterly, PeriodSemiannual, PeriodAnnual, PeriodPerpetual} {
		require.Nil(t, ComputeEndDate(nil, p))
	}
}

func TestDeriveStatus(t *testing.T) {
	end := testutil.Date(2024, 2, 1)
	start := testutil.Date(2024, 1, 1)

	cases := []struct {
		name   string
		period BillingPeriod
		end    *time.Time
		start  *time.Time
		today  time.Time
		want   Status
	}{
		{"perpetual ignores dates", PeriodPerpetual, &end, nil, testutil.Date(2030, 1, 1), StatusActive},
		{"perpetual without dates", PeriodPerpetual, nil, nil, testutil.Date(2030, 1, 1), StatusActive},
		{"expired day after end", PeriodMonthly, &end, &start, testutil.Date(2024, 2, 2), StatusExpired},
		{"pending on end date", PeriodMonthly, &end, &start, testutil.Date(2024, 2, 1), StatusPendingRenewal},
		{"pending seven days before", PeriodMonthly, &end, &start, testutil.Date(2024, 1, 25), StatusPendingRenewal},
		{"active eight days before", PeriodMonthly, &end, &start, testutil.Date(2024, 1, 24), StatusActive},
		{"inactive without dates", PeriodMonthly, nil, nil, testutil.Date(2024, 1, 1), StatusInactive},
		{"open ended active", "", nil, &start, testutil.Date(2024, 6, 1), StatusActive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveStatus(tc.period, tc.end, tc.start, tc.today))
		})
	}
}

func draft() *License {
	return &License{
		ID:         "1",
		ClientKey:  "         1",
		SystemID:   "10",
		Identifier: "SN-0001",
		Type:       TypeSubscription,
		Period:     PeriodMonthly,
		StartDate:  ptr(testutil.Date(2024, 1, 1)),
		UserCount:  1,
	}
}

func TestPrepareScenarios(t *testing.T) {
	t.Run("fresh monthly subscription is active", func(t *testing.T) {
		l := draft()
		require.NoError(t, Prepare(l, StatusActive, testutil.Date(2024, 1, 1)))
		require.True(t, testutil.Date(2024, 2, 1).Equal(*l.EndDate))
		require.Equal(t, StatusActive, l.Status)
	})

	t.Run("past end date expires", func(t *testing.T) {
		l := draft()
		require.NoError(t, Prepare(l, StatusActive, testutil.Date(2024, 2, 5)))
		require.Equal(t, StatusExpired, l.Status)
	})

	t.Run("within window is pending renewal", func(t *testing.T) {
		l := draft()
		require.NoError(t, Prepare(l, StatusActive, testutil.Date(2024, 1, 26)))
		require.Equal(t, StatusPendingRenewal, l.Status)
	})

	t.Run("perpetual physical never expires", func(t *testing.T) {
		l := draft()
		l.Type = TypePhysical
		l.Period = PeriodPerpetual
		l.EndDate = ptr(testutil.Date(2020, 1, 1))
		require.NoError(t, Prepare(l, StatusExpired, testutil.Date(2099, 1, 1)))
		require.Nil(t, l.EndDate)
		require.Equal(t, StatusActive, l.Status)
	})
}

func TestPrepareIgnoresStoredEndDate(t *testing.T) {
	l := draft()
	l.EndDate = ptr(testutil.Date(2030, 1, 1))
	l.Status = StatusActive

	require.NoError(t, Prepare(l, StatusActive, testutil.Date(2024, 3, 1)))
	require.True(t, testutil.Date(2024, 2, 1).Equal(*l.EndDate))
	require.Equal(t, StatusExpired, l.Status)
}

func TestPrepareActiveRequestDefaultsStart(t *testing.T) {
	today := testutil.Date(2024, 5, 10)

	l := draft()
	l.StartDate = nil
	require.NoError(t, Prepare(l, StatusActive, today))
	require.NotNil(t, l.StartDate)
	require.True(t, today.Equal(*l.StartDate))
	// end date is computed before the start date is defaulted
	require.Nil(t, l.EndDate)
	require.Equal(t, StatusActive, l.Status)

	l = draft()
	l.StartDate = nil
	require.NoError(t, Prepare(l, StatusInactive, today))
	require.Nil(t, l.StartDate)
	require.Nil(t, l.EndDate)
	require.Equal(t, StatusInactive, l.Status)
}

func TestPrepareIsIdempotent(t *testing.T) {
	today := testutil.Date(2024, 1, 28)

	l := draft()
	require.NoError(t, Prepare(l, StatusActive, today))
	first := *l

	require.NoError(t, Prepare(l, StatusActive, today))
	require.Equal(t, first.Status, l.Status)
	require.True(t, first.EndDate.Equal(*l.EndDate))
	require.True(t, first.StartDate.Equal(*l.StartDate))
}

func TestValidateRejectsInvariantViolations(t *testing.T) {
	t.Run("perpetual subscription", func(t *testing.T) {
		l := draft()
		l.Period = PeriodPerpetual
		err := Prepare(l, StatusActive, testutil.Date(2024, 1, 1))
		require.Error(t, err)
		require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

		var be errutil.BaseError
		require.ErrorAs(t, err, &be)
		require.Equal(t, "billing_period", be.Details[0].Field)
	})

	t.Run("perpetual electronic allowed", func(t *testing.T) {
		l := draft()
		l.Type = TypeElectronic
		l.Period = PeriodPerpetual
		require.NoError(t, Prepare(l, StatusActive, testutil.Date(2024, 1, 1)))
	})

	t.Run("missing required fields", func(t *testing.T) {
		l := draft()
		l.ClientKey = ""
		l.SystemID = ""
		l.Identifier = "  "
		l.UserCount = -1
		err := Validate(l)
		require.Error(t, err)

		var be errutil.BaseError
		require.ErrorAs(t, err, &be)
		fields := errutil.FieldErrors(be.Details)
		require.True(t, fields.Has("client_key"))
		require.True(t, fields.Has("system_id"))
		require.True(t, fields.Has("identifier"))
		require.True(t, fields.Has("user_count"))
	})

	t.Run("unknown enumerations", func(t *testing.T) {
		l := draft()
		l.Type = "digital"
		l.Period = "weekly"
		err := Validate(l)

		var be errutil.BaseError
		require.ErrorAs(t, err, &be)
		fields := errutil.FieldErrors(be.Details)
		require.True(t, fields.Has("type"))
		require.True(t, fields.Has("billing_period"))
	})
}
