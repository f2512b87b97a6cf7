package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"

	"github.com/relaygate/relaygate/common"
	"github.com/relaygate/relaygate/common/config"
	"github.com/relaygate/relaygate/common/graceful"
	"github.com/relaygate/relaygate/common/logger"
	"github.com/relaygate/relaygate/controller"
	"github.com/relaygate/relaygate/middleware"
	"github.com/relaygate/relaygate/model"
	"github.com/relaygate/relaygate/router"
)

func main() {
	common.Init()
	logger.SetupLogger()
	logger.Logger.Info("relaygate started")

	if os.Getenv("GIN_MODE") != gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := model.InitDB(); err != nil {
		logger.Logger.Fatal("database init error", zap.Error(err))
	}
	defer func() {
		if err := model.CloseDB(); err != nil {
			logger.Logger.Fatal("failed to close database", zap.Error(err))
		}
	}()

	app := controller.NewAppContext()

	logLevel := glog.LevelInfo
	if config.DebugEnabled {
		logLevel = glog.LevelDebug
	}

	server := gin.New()
	server.RedirectTrailingSlash = false
	server.Use(
		middleware.Recover(),
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(logLevel.String()),
			gmw.WithLogger(logger.Logger.Named("gin")),
		),
		middleware.RequestId(),
	)

	router.SetRouter(server, app)

	httpServer := &http.Server{
		Addr:    ":" + config.ServerPort,
		Handler: server,
	}

	go func() {
		logger.Logger.Info("server started", zap.String("address", "http://localhost:"+config.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("shutting down server")
	graceful.SetDraining()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := graceful.Drain(ctx); err != nil {
		logger.Logger.Error("graceful drain did not complete", zap.Error(err))
	}
}
