package notification

import (
	"licensing-controlplane/pkg/config"
	"licensing-controlplane/services/catalog"
)

// Routing decides who hears about a license: licenses of systems in the
// internal category go to the admin address, everything else to the client.
type Routing struct {
	InternalCategory catalog.Category
	AdminEmail       string
}

func RoutingFromConfig(cfg *config.Config) Routing {
	return Routing{
		InternalCategory: catalog.Category(cfg.Notification.InternalCategory),
		AdminEmail:       cfg.Notification.AdminEmail,
	}
}

type Kind string

var (
	KindExpired Kind = "expired"
	KindPending Kind = "pending"
)

type Audience string

var (
	AudienceInternal Audience = "internal"
	AudienceClient   Audience = "client"
)

// SweepResult counts what a sweep did with each selected license.
type SweepResult struct {
	Kind    Kind `json:"kind"`
	Found   int  `json:"found"`
	Sent    int  `json:"sent"`
	Skipped int  `json:"skipped"`
	Failed  int  `json:"failed"`
}
