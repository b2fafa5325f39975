package license

import (
	"time"

	"licensing-controlplane/services/catalog"
	"licensing-controlplane/services/client"

	"cloud.google.com/go/civil"
)

type Status string

var (
	StatusActive         Status = "active"
	StatusExpired        Status = "expired"
	StatusPendingRenewal Status = "pending_renewal"
	StatusInactive       Status = "inactive"
)

func (s Status) String() string {
	switch s {
	case StatusActive, StatusExpired, StatusPendingRenewal, StatusInactive:
		return string(s)
	default:
		return ""
	}
}

// Label is the human readable status.
func (s Status) Label() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusExpired:
		return "Expired"
	case StatusPendingRenewal:
		return "Pending renewal"
	case StatusInactive:
		return "Inactive"
	default:
		return string(s)
	}
}

type Type string

var (
	TypePhysical     Type = "physical"
	TypeElectronic   Type = "electronic"
	TypeSubscription Type = "subscription"
)

func (t Type) String() string {
	switch t {
	case TypePhysical, TypeElectronic, TypeSubscription:
		return string(t)
	default:
		return ""
	}
}

func (t Type) Label() string {
	switch t {
	case TypePhysical:
		return "Physical"
	case TypeElectronic:
		return "Electronic"
	case TypeSubscription:
		return "Subscription"
	default:
		return string(t)
	}
}

// BillingPeriod is optional; the empty value means no period was recorded.
type BillingPeriod string

var (
	PeriodMonthly    BillingPeriod = "monthly"
	PeriodQuarterly  BillingPeriod = "quarterly"
	PeriodSemiannual BillingPeriod = "semiannual"
	PeriodAnnual     BillingPeriod = "annual"
	PeriodPerpetual  BillingPeriod = "perpetual"
)

func (p BillingPeriod) String() string {
	switch p {
	case PeriodMonthly, PeriodQuarterly, PeriodSemiannual, PeriodAnnual, PeriodPerpetual:
		return string(p)
	default:
		return ""
	}
}

func (p BillingPeriod) Label() string {
	switch p {
	case PeriodMonthly:
		return "Monthly"
	case PeriodQuarterly:
		return "Quarterly"
	case PeriodSemiannual:
		return "Semiannual"
	case PeriodAnnual:
		return "Annual"
	case PeriodPerpetual:
		return "Perpetual"
	default:
		return string(p)
	}
}

// Months is the calendar offset of the period. ok is false for perpetual,
// empty and unknown periods.
func (p BillingPeriod) Months() (months int, ok bool) {
	switch p {
	case PeriodMonthly:
		return 1, true
	case PeriodQuarterly:
		return 3, true
	case PeriodSemiannual:
		return 6, true
	case PeriodAnnual:
		return 12, true
	default:
		return 0, false
	}
}

type License struct {
	ID              string          `gorm:"column:id;primaryKey"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
	ClientKey       string          `gorm:"column:client_key;size:50;index;not null"`
	SystemID        string          `gorm:"column:system_id;index;not null"`
	Identifier      string          `gorm:"column:identifier;size:255;uniqueIndex;not null"`
	SoftwareVersion *string         `gorm:"column:software_version;size:50"`
	SystemVersion   *string         `gorm:"column:system_version;size:50"`
	AcquiredOn      *time.Time      `gorm:"column:acquired_on;type:date"`
	StartDate       *time.Time      `gorm:"column:start_date;type:date"`
	EndDate         *time.Time      `gorm:"column:end_date;type:date;index"`
	Status          Status          `gorm:"column:status;size:20;not null;index"`
	Type            Type            `gorm:"column:type;size:20;not null;default:'subscription'"`
	Period          BillingPeriod   `gorm:"column:billing_period;size:20"`
	Notes           string          `gorm:"column:notes;type:text"`
	UserCount       int             `gorm:"column:user_count;not null;default:1"`
	Client          *client.Client  `gorm:"foreignKey:ClientKey;references:Key;constraint:OnDelete:CASCADE"`
	System          *catalog.System `gorm:"foreignKey:SystemID;references:ID;constraint:OnDelete:RESTRICT"`
}

func (License) TableName() string {
	return "licenses"
}

type Response struct {
	ID              string        `json:"id"`
	ClientKey       string        `json:"client_key"`
	SystemID        string        `json:"system_id"`
	SystemName      string        `json:"system_name,omitempty"`
	Identifier      string        `json:"identifier"`
	SoftwareVersion *string       `json:"software_version,omitempty"`
	SystemVersion   *string       `json:"system_version,omitempty"`
	AcquiredOn      *civil.Date   `json:"acquired_on,omitempty"`
	StartDate       *civil.Date   `json:"start_date,omitempty"`
	EndDate         *civil.Date   `json:"end_date,omitempty"`
	Status          Status        `json:"status"`
	Type            Type          `json:"type"`
	Period          BillingPeriod `json:"billing_period,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	UserCount       int           `json:"user_count"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (m *License) ToResponse() *Response {
	out := &Response{
		ID:              m.ID,
		ClientKey:       m.ClientKey,
		SystemID:        m.SystemID,
		Identifier:      m.Identifier,
		SoftwareVersion: m.SoftwareVersion,
		SystemVersion:   m.SystemVersion,
		AcquiredOn:      toCivil(m.AcquiredOn),
		StartDate:       toCivil(m.StartDate),
		EndDate:         toCivil(m.EndDate),
		Status:          m.Status,
		Type:            m.Type,
		Period:          m.Period,
		Notes:           m.Notes,
		UserCount:       m.UserCount,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.System != nil {
		out.SystemName = m.System.Name
	}
	return out
}

type CreateRequest struct {
	SystemID        string        `json:"system_id" binding:"required"`
	Identifier      string        `json:"identifier" binding:"required,max=255"`
	Type            Type          `json:"type"`
	Period          BillingPeriod `json:"billing_period"`
	StartDate       *civil.Date   `json:"start_date"`
	AcquiredOn      *civil.Date   `json:"acquired_on"`
	Status          Status        `json:"status"`
	UserCount       *int          `json:"user_count"`
	SoftwareVersion *string       `json:"software_version" binding:"omitempty,max=50"`
	SystemVersion   *string       `json:"system_version" binding:"omitempty,max=50"`
	Notes           string        `json:"notes"`
}

// UpdateRequest carries the fields editable after creation. PaymentConfirmed
// turns the update into a renewal starting at StartDate.
type UpdateRequest struct {
	SystemVersion    *string     `json:"system_version" binding:"omitempty,max=50"`
	Notes            *string     `json:"notes"`
	Status           Status      `json:"status"`
	StartDate        *civil.Date `json:"start_date"`
	PaymentConfirmed bool        `json:"payment_confirmed"`
}

func toCivil(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := civil.DateOf(*t)
	return &d
}

func fromCivil(d *civil.Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}
