package gateway

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func provideNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

var Module = fx.Module("gateway",
	fx.Provide(provideNode),
	fx.Provide(
		fx.Annotate(NewHTTPGateway, fx.As(new(Gateway))),
	),
)
