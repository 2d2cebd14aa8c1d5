// Command server runs the standardgpt HTTP API: gin handlers wired to the
// orchestrator via a go.uber.org/dig container, matching the teacher's
// dependency-injection composition root.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kristoman/standardgpt/internal/bootstrap"
	"github.com/kristoman/standardgpt/internal/config"
	"github.com/kristoman/standardgpt/internal/handler"
	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/runtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("server: failed to load configuration")
	}
	logger.SetLevel(logrus.InfoLevel)

	ctx := logger.CloneContext(context.Background())
	container := runtime.GetContainer()

	if err := bootstrap.Provide(container, cfg); err != nil {
		logger.Errorf(ctx, "server: failed to wire dependencies: %v", err)
		os.Exit(1)
	}

	var engine *gin.Engine
	if err := container.Invoke(func(d handler.Deps) {
		engine = handler.NewRouter(d)
	}); err != nil {
		logger.Errorf(ctx, "server: failed to build router: %v", err)
		os.Exit(1)
	}

	addr := ":8080"
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		addr = v
	}
	srv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		logger.Infof(ctx, "server: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf(ctx, "server: listen failed: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "server: graceful shutdown failed: %v", err)
	}
}
