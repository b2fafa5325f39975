package catalog

import "time"

type Category string

var (
	PrimaryVendorSuite      Category = "primary_vendor_suite"
	OfficeProductivitySuite Category = "office_productivity_suite"
	Antivirus               Category = "antivirus"
	Other                   Category = "other"
)

func (c Category) String() string {
	switch c {
	case PrimaryVendorSuite, OfficeProductivitySuite, Antivirus, Other:
		return string(c)
	default:
		return ""
	}
}

// Label is the human readable category name used in notices.
func (c Category) Label() string {
	switch c {
	case PrimaryVendorSuite:
		return "Primary vendor suite"
	case OfficeProductivitySuite:
		return "Office productivity suite"
	case Antivirus:
		return "Antivirus"
	case Other:
		return "Other"
	default:
		return string(c)
	}
}

// System is an entry of the catalog of licensable systems.
type System struct {
	ID          string    `gorm:"column:id;primaryKey"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
	Name        string    `gorm:"column:name;size:100;uniqueIndex;not null"`
	Description string    `gorm:"column:description;type:text"`
	Category    Category  `gorm:"column:category;size:50;not null;default:'other'"`
}

func (System) TableName() string {
	return "systems"
}

type Response struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    Category  `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (m *System) ToResponse() *Response {
	return &Response{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Category:    m.Category,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

type CreateRequest struct {
	Name        string   `json:"name" binding:"required,max=100"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

type UpdateRequest struct {
	Name        *string   `json:"name" binding:"omitempty,max=100"`
	Description *string   `json:"description"`
	Category    *Category `json:"category"`
}
