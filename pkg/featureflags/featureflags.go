package featureflags

import (
	"context"

	"licensing-controlplane/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

type FeatureFlag interface {
	// Enabled reports whether the named feature is on. Features unknown to
	// the flag service, and every feature when no service is configured,
	// count as enabled.
	Enabled(ctx context.Context, name string) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{flagsmith.WithAnalytics()}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Enabled(ctx context.Context, name string) bool {
	if s.client == nil {
		return true
	}

	flags, err := s.client.GetEnvironmentFlags()
	if err != nil {
		zap.L().Warn("failed to load feature flags, assuming enabled", zap.String("feature", name), zap.Error(err))
		return true
	}

	on, err := flags.IsFeatureEnabled(name)
	if err != nil {
		return true
	}
	return on
}
