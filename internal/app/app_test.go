package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"camstudio/internal/config"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:        "127.0.0.1",
			Port:        0,
			ReadTimeout: 5 * time.Second,
		},
		Camera: config.CameraConfig{
			Device: "/dev/video-none", // 存在しないカメラでも起動できる
			FPS:    15,
			Width:  640,
			Height: 480,
		},
		Recording: config.RecordingConfig{
			MIMEType:  "video/webm",
			Timeslice: time.Second,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg, zap.NewNop())
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Runが終了しない")
	}
}
