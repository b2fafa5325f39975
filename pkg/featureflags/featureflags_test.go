package featureflags

import (
	"context"
	"testing"

	"licensing-controlplane/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestEnabledWithoutService(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: &config.Config{}})
	require.True(t, ff.Enabled(context.Background(), "license:sweep:expired"))
}
