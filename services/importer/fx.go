package importer

import "go.uber.org/fx"

var Module = fx.Module("importer.module",
	fx.Provide(
		NewService,
		fx.Annotate(NewLegacySource, fx.As(new(Source))),
	),
)
