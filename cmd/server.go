// Package main はCamstudioサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"camstudio/internal/app"
	"camstudio/internal/config"
	"camstudio/internal/logger"
)

func main() {
	// コマンドラインオプション
	var (
		host   = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port   = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		device = flag.String("device", "", "カメラデバイス (デフォルト: 自動検出)")
		help   = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Camstudio")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定が不正です: %v", err)
	}

	l, err := logger.New(logger.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}
	defer func() {
		_ = l.Sync()
	}()

	l.Info("Camstudio サーバーを起動します", zap.String("addr", cfg.ServerAddress()))
	if err := app.Run(context.Background(), cfg, l); err != nil {
		l.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}
