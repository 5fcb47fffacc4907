package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/config"
	feederhttp "github.com/lesfleursdelanuitdev/mycelia-kernel/internal/feeders/http"
	feederws "github.com/lesfleursdelanuitdev/mycelia-kernel/internal/feeders/ws"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/logging"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/subsystems/httpclient"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/subsystems/script"
)

func main() {
	httpAddr := flag.String("http-addr", ":8090", "HTTP ingress feeder listen address")
	wsAddr := flag.String("ws-addr", ":8091", "websocket channel bridge listen address")
	dev := flag.Bool("dev", false, "enable development logging")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}
	defer logger.Sync() //nolint:errcheck

	k, err := kernel.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to bootstrap kernel", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	k.Start(ctx)

	if _, err := k.RegisterSubsystem("httpclient", kernel.SubsystemOptions{
		Routes: httpclient.Routes(httpclient.NewClient()),
	}); err != nil {
		logger.Fatal("failed to register httpclient subsystem", zap.Error(err))
	}
	if _, err := k.RegisterSubsystem("script", kernel.SubsystemOptions{
		Routes: script.Routes(script.NewRuntime()),
	}); err != nil {
		logger.Fatal("failed to register script subsystem", zap.Error(err))
	}

	httpFeeder := feederhttp.NewFeeder(k, feederhttp.DefaultCORSConfig(), cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	gin.SetMode(gin.ReleaseMode)
	wsEngine := gin.New()
	wsEngine.Use(gin.Recovery())
	wsBridge := feederws.NewBridge(k)
	wsEngine.GET("/ws/:owner/:channel", func(c *gin.Context) {
		wsBridge.HandleConnection(c, c.Param("owner"), c.Param("channel"))
	})
	wsServer := &http.Server{Addr: *wsAddr, Handler: wsEngine}

	errChan := make(chan error, 2)
	go func() {
		logger.Info("http ingress feeder listening", zap.String("addr", *httpAddr))
		if err := httpFeeder.Run(*httpAddr); err != nil {
			errChan <- fmt.Errorf("http feeder: %w", err)
		}
	}()
	go func() {
		logger.Info("websocket channel bridge listening", zap.String("addr", *wsAddr))
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("ws feeder: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutting down gracefully")
	case err := <-errChan:
		logger.Error("feeder error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpFeeder.Close(); err != nil {
		logger.Warn("error closing http feeder", zap.Error(err))
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error closing ws feeder", zap.Error(err))
	}
	k.Stop()
}
