package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir は t.Chdir (Go 1.24+) 相当: ディレクトリを移動し、テスト終了時に元へ戻す
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Camera: CameraConfig{
			Device: "/dev/video0",
			FPS:    15,
			Width:  1280,
			Height: 720,
		},
		Recording: RecordingConfig{
			MIMEType:  "video/webm",
			Timeslice: time.Second,
		},
	}
}

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// サーバー設定の検証
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Positive(t, cfg.Server.ReadTimeout)
	// WriteTimeout は 0（無効）でも正常
	assert.GreaterOrEqual(t, cfg.Server.WriteTimeout, time.Duration(0))

	// カメラ設定の検証
	assert.Empty(t, cfg.Camera.Device, "デフォルトは自動検出")
	assert.Equal(t, 15, cfg.Camera.FPS)
	assert.Equal(t, 1280, cfg.Camera.Width)
	assert.Equal(t, 720, cfg.Camera.Height)

	// 録画設定の検証
	assert.Equal(t, "video/webm", cfg.Recording.MIMEType)
	assert.Equal(t, time.Second, cfg.Recording.Timeslice)

	assert.Equal(t, "info", cfg.Log.Level)
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(c *Config)
		expectErr bool
	}{
		{
			name:      "正常な設定",
			mutate:    func(_ *Config) {},
			expectErr: false,
		},
		{
			name:      "無効なポート番号",
			mutate:    func(c *Config) { c.Server.Port = 99999 },
			expectErr: true,
		},
		{
			name:      "FPSが0",
			mutate:    func(c *Config) { c.Camera.FPS = 0 },
			expectErr: true,
		},
		{
			name:      "幅が大きすぎる",
			mutate:    func(c *Config) { c.Camera.Width = 8192 },
			expectErr: true,
		},
		{
			name:      "高さが負",
			mutate:    func(c *Config) { c.Camera.Height = -1 },
			expectErr: true,
		},
		{
			name:      "タイムスライスが短すぎる",
			mutate:    func(c *Config) { c.Recording.Timeslice = 10 * time.Millisecond },
			expectErr: true,
		},
		{
			name:      "デバイス未指定は自動検出として許可",
			mutate:    func(c *Config) { c.Camera.Device = "" },
			expectErr: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
	}

	assert.Equal(t, "192.168.1.100:9090", cfg.ServerAddress())
}

// TestEnvironmentVariables は環境変数の処理をテストする
// 注意: t.Setenv を使うため parallel は使わない
func TestEnvironmentVariables(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("SERVER_HOST", "test.example.com")
	t.Setenv("PORT", "9999")
	t.Setenv("CAMERA_DEVICE", "/dev/video2")
	t.Setenv("RECORDING_TIMESLICE", "500ms")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test.example.com", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/dev/video2", cfg.Camera.Device)
	assert.Equal(t, 500*time.Millisecond, cfg.Recording.Timeslice)
	assert.Equal(t, "debug", cfg.Log.Level)
}

// TestEnvironmentVariables_Invalid は不正な値で検証エラーになることをテストする
func TestEnvironmentVariables_Invalid(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CAMERA_FPS", "120")

	_, err := Load()
	assert.Error(t, err)
}
