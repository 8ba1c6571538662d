package server

import (
	"github.com/google/wire"

	"github.com/iWorld-y/pain_radar/app/pain_radar/internal/service"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/engine"
)

// ProviderSet 研究服务的依赖注入 Provider 集合
var ProviderSet = wire.NewSet(
	// Server providers
	NewHTTPServer,

	// Pipeline providers
	NewStore,
	NewEngine,
	wire.Bind(new(service.Runner), new(*engine.Engine)),

	// Service providers
	service.NewResearchService,
)
