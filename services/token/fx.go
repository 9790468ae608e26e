package token

import "go.uber.org/fx"

var Module = fx.Module("token.module",
	fx.Provide(NewService),
)

// TaskModule wires the purge handler and its scheduler into the worker
// binary.
var TaskModule = fx.Module("token.task",
	fx.Provide(NewTask, NewScheduler),
	fx.Invoke(StartScheduler),
)
