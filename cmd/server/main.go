package main

import (
	"ChatCompanion/internal/config"
	"ChatCompanion/internal/service/events/realtime"
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Realtime-хаб: принимает WebSocket-подключения и отвечает эхом до Ctrl+C / SIGTERM.
func main() {
	cfg := config.NewConfig()

	// создаём регистратор zap: в режиме дебага development-вариант
	var logger *zap.Logger
	var err error
	if cfg.DebugMode {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	//сброс буфера логгера
	defer func() {
		if err := logger.Sync(); err != nil {
			sugar.Errorw("Failed to sync logger", "error", err)
		}
	}()

	sugar.Infow(
		"Starting hub",
		"DebugMode", cfg.DebugMode,
		"BindAddr", cfg.Hub.BindAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(cfg.Hub, sugar)
	if err := hub.Start(ctx); err != nil {
		sugar.Errorw("Failed to start hub", "error", err)
		return
	}
	sugar.Infow("Hub is running", "addr", hub.Addr())

	<-ctx.Done()
	if err := hub.Stop(context.Background()); err != nil {
		sugar.Warnw("Hub stop error", "error", err)
	}
	sugar.Infow("server stopped")
}
