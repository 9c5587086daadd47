// Package app は各コンポーネントを組み立ててアプリケーションを起動する
package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"camstudio/internal/artifact"
	"camstudio/internal/camera"
	"camstudio/internal/config"
	"camstudio/internal/server"
	"camstudio/internal/session"
)

const (
	// deviceDir はカメラの抜き差しを監視するディレクトリ
	deviceDir = "/dev"

	// 終了時に録画の確定を待つ最大時間
	shutdownTimeout = 15 * time.Second
)

// Run はサーバーを起動し、ctxの終了かシグナルの受信まで動き続ける
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	settings := camera.Settings{
		FPS:    cfg.Camera.FPS,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	}

	adapter := camera.NewV4L2Adapter(camera.NewLinuxDiscovery(), logger, camera.V4L2Options{
		Settings:  settings,
		Timeslice: cfg.Recording.Timeslice,
	})

	preview := camera.NewPreview(adapter, camera.Constraints{
		Device:   cfg.Camera.Device,
		Settings: settings,
	}, logger)

	// 起動時にカメラを開いておく。失敗しても後から再試行できる
	if _, err := preview.Acquire(ctx); err != nil {
		logger.Warn("カメラを開けませんでした", zap.Error(err))
	}

	store := artifact.NewStore()
	store.OnRelease = func(info artifact.Info) {
		logger.Debug("成果物を解放しました",
			zap.String("kind", string(info.Kind)),
			zap.String("artifact_id", info.ID),
			zap.Int("size", info.Size),
		)
	}

	controller := session.NewController(adapter, store, session.Options{
		MIMEType: cfg.Recording.MIMEType,
		Logger:   logger,
	})

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	startDeviceWatcher(watchCtx, preview, logger)

	srv := server.New(cfg, server.NewHandler(controller, preview, logger), logger)
	runErr := srv.Start(ctx)

	// 起動と逆順に片付ける
	cancelWatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := controller.Close(shutdownCtx); err != nil {
		logger.Warn("録画の確定を待てませんでした", zap.Error(err))
	}
	if err := preview.Release(shutdownCtx); err != nil {
		logger.Warn("カメラの停止に失敗", zap.Error(err))
	}

	return runErr
}

// startDeviceWatcher はカメラの抜き差しをプレビューに反映させる
// 監視できない環境ではログだけ出して続行する
func startDeviceWatcher(ctx context.Context, preview *camera.Preview, logger *zap.Logger) {
	watcher, err := camera.NewDeviceWatcher(deviceDir, logger)
	if err != nil {
		logger.Warn("カメラの抜き差しを監視できません", zap.Error(err))
		return
	}

	go func() {
		defer func() {
			_ = watcher.Close()
		}()
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("デバイス監視が終了しました", zap.Error(err))
		}
	}()

	go preview.Watch(ctx, watcher.Events())
}
