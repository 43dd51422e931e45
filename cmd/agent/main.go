// Package main はキオスクエージェントのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"session-key-agent/config"
	"session-key-agent/internal/handler"
	"session-key-agent/internal/infra"
	"session-key-agent/internal/repository"
	"session-key-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// ログレベル設定
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, logLevel)

	// DB初期化
	db, err := infra.NewDB(cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// DI
	repo := repository.NewHandshakeRepository(db)
	platform := infra.NewPlatformClient(cfg)
	service := usecase.NewSessionService(
		platform,
		repo,
		cfg.DeviceID,
		cfg.KeyBits,
		cfg.Components,
		nil, // 平文の受け渡し先はホスト固有。エージェント単体では受け取らない
	)
	h := handler.NewStatusHandler(service, repo)
	router := handler.NewRouter(h, cfg)

	// プラットフォームへ接続
	if err := platform.Connect(ctx, service); err != nil {
		slog.Error("failed to connect to platform", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := platform.Close(); err != nil {
			slog.Error("failed to close platform connection", "error", err)
		}
	}()

	// ステータスAPIサーバー起動
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-sigCh:
			slog.Info("shutting down agent...")
		case <-platform.Done():
			slog.Error("platform connection closed, shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting agent",
		"port", cfg.Port,
		"device_id", cfg.DeviceID,
		"key_bits", cfg.KeyBits,
		"components", cfg.Components,
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("agent stopped")
}
