package notification

import (
	"licensing-controlplane/pkg/mailer"
	"licensing-controlplane/services/license"

	"go.uber.org/fx"
)

var Module = fx.Module("notification.module",
	fx.Provide(
		NewService,
		func(s *license.Service) LicenseSource { return s },
		func(s mailer.Sender) Dispatcher { return s },
	),
)
