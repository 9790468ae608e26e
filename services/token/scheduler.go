package token

import (
	"context"
	"time"

	"librix-licensing/pkg/task"
	"librix-licensing/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const purgeInterval = time.Hour

// Scheduler enqueues the periodic token purge job.
type Scheduler struct {
	enqueuer task.Enqueuer
}

func NewScheduler(enqueuer task.Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.run(ctx)
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started token purge scheduler",
		zap.Duration("interval", purgeInterval),
	)

	for {
		select {
		case <-time.After(purgeInterval):
			s.enqueuePurge(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) enqueuePurge(ctx context.Context) {
	t := asynq.NewTask(taskname.TokenPurgeExpired, nil)

	info, err := s.enqueuer.Enqueue(ctx, t, asynq.Queue("low"))
	if err != nil {
		zap.L().Error("[Scheduler] failed to enqueue token purge", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] token purge enqueued", zap.String("task_id", info.ID))
}
