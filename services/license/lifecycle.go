package license

import (
	"strings"
	"time"

	"licensing-controlplane/pkg/errutil"
)

// renewalWindowDays is how many days before the end date a license is
// flagged for renewal.
const renewalWindowDays = 7

// DateOf truncates t to its calendar date in t's location, expressed as
// midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths advances d by n calendar months. A day that does not exist in the
// target month is clamped to the month's last day, so Jan 31 + 1 month is the
// last day of February.
func AddMonths(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, d.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, d.Location())
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ComputeEndDate returns nil for perpetual or unknown periods and when start
// is absent.
func ComputeEndDate(start *time.Time, period BillingPeriod) *time.Time {
	if start == nil {
		return nil
	}
	months, ok := period.Months()
	if !ok {
		return nil
	}
	end := AddMonths(DateOf(*start), months)
	return &end
}

// DeriveStatus checks, in order: perpetual is active, then the end date
// (expired, or pending renewal inside the window), then a missing start is
// inactive. Anything else is active.
func DeriveStatus(period BillingPeriod, end, start *time.Time, today time.Time) Status {
	today = DateOf(today)

	switch {
	case period == PeriodPerpetual:
		return StatusActive
	case end != nil:
		e := DateOf(*end)
		if e.Before(today) {
			return StatusExpired
		}
		if !e.AddDate(0, 0, -renewalWindowDays).After(today) {
			return StatusPendingRenewal
		}
		return StatusActive
	case start == nil:
		return StatusInactive
	default:
		return StatusActive
	}
}

// Prepare recomputes the derived fields of l for a write on today and
// validates the result. requested is the status the caller asked for; it only
// matters for defaulting the start date, the stored status is always derived.
func Prepare(l *License, requested Status, today time.Time) error {
	today = DateOf(today)
	if l.StartDate != nil {
		start := DateOf(*l.StartDate)
		l.StartDate = &start
	}

	switch {
	case l.Period == PeriodPerpetual:
		l.EndDate = nil
	case l.StartDate != nil:
		l.EndDate = ComputeEndDate(l.StartDate, l.Period)
	default:
		l.EndDate = nil
	}

	// Runs before the status derivation so that an explicit active request
	// can still give the license a start date.
	if requested == StatusActive && l.StartDate == nil {
		start := today
		l.StartDate = &start
	}

	l.Status = DeriveStatus(l.Period, l.EndDate, l.StartDate, today)

	return Validate(l)
}

// Validate checks the field rules and the type/period invariants.
func Validate(l *License) error {
	var fields errutil.FieldErrors

	if l.ClientKey == "" {
		fields.Add("client_key", "client is required")
	}
	if l.SystemID == "" {
		fields.Add("system_id", "system is required")
	}
	if strings.TrimSpace(l.Identifier) == "" {
		fields.Add("identifier", "identifier is required")
	}
	if l.Type.String() == "" {
		fields.Add("type", "unknown license type")
	}
	if l.Period != "" && l.Period.String() == "" {
		fields.Add("billing_period", "unknown billing period")
	}
	if l.UserCount < 0 {
		fields.Add("user_count", "user count cannot be negative")
	}

	switch {
	case l.Type == TypeSubscription && l.Period == PeriodPerpetual:
		fields.Add("billing_period", "a subscription license cannot be perpetual")
	case l.Period == PeriodPerpetual && l.Type != TypePhysical && l.Type != TypeElectronic && !fields.Has("type"):
		fields.Add("billing_period", "a perpetual period is only valid for physical or electronic licenses")
	}

	if l.Period == PeriodPerpetual && (l.EndDate != nil || l.Status != StatusActive) {
		fields.Add("billing_period", "a perpetual license has no end date and is always active")
	}

	return fields.Err("invalid license")
}
