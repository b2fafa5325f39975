package notification

import (
	"errors"
	"strings"

	"licensing-controlplane/services/license"
)

var (
	ErrNoClientEmail = errors.New("client has no contact email")
	ErrNoAdminEmail  = errors.New("no admin email configured")
)

type Recipient struct {
	Audience Audience
	Address  string
}

// IsInternal reports whether the license's system belongs to the internal
// category.
func (r Routing) IsInternal(l *license.License) bool {
	return l.System != nil && r.InternalCategory != "" && l.System.Category == r.InternalCategory
}

// Resolve picks the recipient of a notice about l.
func (r Routing) Resolve(l *license.License) (Recipient, error) {
	if r.IsInternal(l) {
		addr := strings.TrimSpace(r.AdminEmail)
		if addr == "" {
			return Recipient{}, ErrNoAdminEmail
		}
		return Recipient{Audience: AudienceInternal, Address: addr}, nil
	}

	addr := l.Client.ContactEmail()
	if addr == "" {
		return Recipient{}, ErrNoClientEmail
	}
	return Recipient{Audience: AudienceClient, Address: addr}, nil
}
