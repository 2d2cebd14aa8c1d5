// Command worker runs the asynq consumer that processes orchestration
// tasks enqueued by the streaming query endpoint, sharing the same
// dig-wired collaborators as cmd/server.
package main

import (
	"context"
	"os"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/kristoman/standardgpt/internal/asynqtask"
	"github.com/kristoman/standardgpt/internal/bootstrap"
	"github.com/kristoman/standardgpt/internal/config"
	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/orchestrator"
	"github.com/kristoman/standardgpt/internal/runtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("worker: failed to load configuration")
	}
	logger.SetLevel(logrus.InfoLevel)
	ctx := logger.CloneContext(context.Background())

	if cfg.RateLimit.StorageURL == "" {
		logger.Error(ctx, "worker: RATELIMIT_STORAGE_URL unset, no Redis queue to consume from")
		os.Exit(1)
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RateLimit.StorageURL)
	if err != nil {
		logger.Errorf(ctx, "worker: failed to parse queue redis URI: %v", err)
		os.Exit(1)
	}

	container := runtime.GetContainer()
	if err := bootstrap.Provide(container, cfg); err != nil {
		logger.Errorf(ctx, "worker: failed to wire dependencies: %v", err)
		os.Exit(1)
	}

	var taskHandler *asynqtask.Handler
	if err := container.Invoke(func(o *orchestrator.Orchestrator) {
		taskHandler = asynqtask.NewHandler(o)
	}); err != nil {
		logger.Errorf(ctx, "worker: failed to build task handler: %v", err)
		os.Exit(1)
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 10})
	mux := asynq.NewServeMux()
	mux.Handle(asynqtask.TypeOrchestrate, asynq.HandlerFunc(taskHandler.Handle))

	logger.Info(ctx, "worker: starting asynq consumer")
	if err := srv.Run(mux); err != nil {
		logger.Errorf(ctx, "worker: asynq server stopped: %v", err)
		os.Exit(1)
	}
}
