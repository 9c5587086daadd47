package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"camstudio/internal/app"
	"camstudio/internal/config"
	"camstudio/internal/logger"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	l, err := logger.New(logger.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = l.Sync()
	}()

	// サーバーを起動
	if err := app.Run(context.Background(), cfg, l); err != nil {
		l.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}
