package admission

import "go.uber.org/fx"

var Module = fx.Module("admission",
	fx.Provide(New),
)
