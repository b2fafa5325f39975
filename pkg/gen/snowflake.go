package gen

import (
	"licensing-controlplane/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewNode),
)

// NewNode builds the snowflake node used for every generated record id.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		zap.L().Error("failed to init snowflake node", zap.Int64("node_id", cfg.NodeID), zap.Error(err))
		return nil, err
	}
	return node, nil
}
