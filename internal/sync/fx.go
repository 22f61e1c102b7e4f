package sync

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("sync",
	fx.Provide(NewLocker),
	fx.Provide(NewBackfillController),
	fx.Provide(NewScheduler),
	fx.Invoke(runScheduler),
)

func runScheduler(lc fx.Lifecycle, scheduler *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			scheduler.baseCtx = ctx
			go scheduler.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
