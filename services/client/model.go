package client

import (
	"fmt"
	"strings"
	"time"
)

// KeyWidth is the width of keys in the legacy system, which right-aligns
// them with leading spaces.
const KeyWidth = 10

type Client struct {
	Key          string    `gorm:"column:client_key;primaryKey;size:50"`
	Name         string    `gorm:"column:name;size:200;not null;index"`
	TaxID        *string   `gorm:"column:tax_id;size:13"`
	Email        *string   `gorm:"column:email;size:254"`
	Phone        *string   `gorm:"column:phone;size:50"`
	RegisteredAt time.Time `gorm:"column:registered_at;autoCreateTime"`
}

func (Client) TableName() string {
	return "clients"
}

// ContactEmail returns the trimmed email, empty when none is on file.
func (c *Client) ContactEmail() string {
	if c == nil || c.Email == nil {
		return ""
	}
	return strings.TrimSpace(*c.Email)
}

func (c *Client) String() string {
	return fmt.Sprintf("%s - %s", strings.TrimSpace(c.Key), c.Name)
}

// PadKey right-aligns a trimmed key to KeyWidth the way stored legacy keys are.
func PadKey(key string) string {
	return fmt.Sprintf("%*s", KeyWidth, strings.TrimSpace(key))
}

type Filter struct {
	TaxID string `form:"tax_id"`
	Key   string `form:"key"`
	Name  string `form:"name"`
}

// Summary is a list row: the client plus whether any of its subscription
// licenses has already lapsed.
type Summary struct {
	*Client
	HasExpiredSubscription bool
}

type Response struct {
	Key                    string    `json:"key"`
	Name                   string    `json:"name"`
	TaxID                  *string   `json:"tax_id,omitempty"`
	Email                  *string   `json:"email,omitempty"`
	Phone                  *string   `json:"phone,omitempty"`
	RegisteredAt           time.Time `json:"registered_at"`
	HasExpiredSubscription *bool     `json:"has_expired_subscription,omitempty"`
}

func (c *Client) ToResponse() *Response {
	return &Response{
		Key:          c.Key,
		Name:         c.Name,
		TaxID:        c.TaxID,
		Email:        c.Email,
		Phone:        c.Phone,
		RegisteredAt: c.RegisteredAt,
	}
}

func (s *Summary) ToResponse() *Response {
	out := s.Client.ToResponse()
	expired := s.HasExpiredSubscription
	out.HasExpiredSubscription = &expired
	return out
}

type CreateRequest struct {
	Key   string  `json:"key" binding:"required,max=50"`
	Name  string  `json:"name" binding:"required,max=200"`
	TaxID *string `json:"tax_id" binding:"omitempty,max=13"`
	Email *string `json:"email" binding:"omitempty,email"`
	Phone *string `json:"phone" binding:"omitempty,max=50"`
}

type UpdateRequest struct {
	Name  *string `json:"name" binding:"omitempty,max=200"`
	TaxID *string `json:"tax_id" binding:"omitempty,max=13"`
	Email *string `json:"email" binding:"omitempty,email"`
	Phone *string `json:"phone" binding:"omitempty,max=50"`
}

// Record is one client as delivered by an import source. Nil fields are
// absent in the source and leave stored values untouched.
type Record struct {
	Key   string
	Name  *string
	TaxID *string
	Email *string
	Phone *string
}
