package token

import (
	"context"
	"time"

	"librix-licensing/pkg/taskname"
	"librix-licensing/services/corporation"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Task owns the background maintenance jobs for issued client tokens.
type Task struct {
	repo corporation.Repository
}

type TaskParams struct {
	fx.In
	Repo corporation.Repository
}

func NewTask(p TaskParams) *Task {
	return &Task{repo: p.Repo}
}

// HandlePurgeExpired clears token columns on attachments whose token end
// date has passed. Validation already excludes them, so this is hygiene:
// it keeps dead tokens from lingering in storage.
func (t *Task) HandlePurgeExpired(ctx context.Context, _ *asynq.Task) error {
	start := time.Now()

	purged, err := t.repo.ClearExpiredTokens(ctx, start)
	if err != nil {
		zap.L().Error("[TokenTask] failed to purge expired tokens", zap.Error(err))
		return err
	}

	zap.L().Info("[TokenTask] purged expired tokens",
		zap.Int64("purged", purged),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// RegisterHandlers binds the token task handlers onto the worker mux.
func RegisterHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(taskname.TokenPurgeExpired, t.HandlePurgeExpired)
}
