package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig
	Camera    CameraConfig
	Recording RecordingConfig
	Log       LogConfig
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string // リッスンするホスト
	Port int    // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration // 読み込みタイムアウト
	WriteTimeout time.Duration // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Device string // デバイスパス (空の場合は自動検出)
	FPS    int    // フレームレート (fps)
	Width  int    // 画像幅
	Height int    // 画像高さ
}

// RecordingConfig は録画の設定
type RecordingConfig struct {
	MIMEType  string        // 録画フォーマットのヒント (例: video/webm)
	Timeslice time.Duration // チャンクを出力する間隔
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level       string
	Development bool
}

// 設定ファイル名（拡張子なし）
const configName = "camstudio"

// Load は設定を読み込む
// .env、camstudio.yaml、環境変数の順で上書きされる
func Load() (*Config, error) {
	// .env は任意
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("server_host"),
			Port:         v.GetInt("port"),
			ReadTimeout:  v.GetDuration("read_timeout"),
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Device: v.GetString("camera_device"),
			FPS:    v.GetInt("camera_fps"),
			Width:  v.GetInt("camera_width"),
			Height: v.GetInt("camera_height"),
		},
		Recording: RecordingConfig{
			MIMEType:  v.GetString("recording_mime_type"),
			Timeslice: v.GetDuration("recording_timeslice"),
		},
		Log: LogConfig{
			Level:       v.GetString("log_level"),
			Development: v.GetBool("log_development"),
		},
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("read_timeout", 10*time.Second)

	v.SetDefault("camera_device", "")
	v.SetDefault("camera_fps", 15)
	v.SetDefault("camera_width", 1280)
	v.SetDefault("camera_height", 720)

	v.SetDefault("recording_mime_type", "video/webm")
	v.SetDefault("recording_timeslice", time.Second)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		return fmt.Errorf("無効なFPS値: %d", c.Camera.FPS)
	}
	if c.Camera.Width <= 0 || c.Camera.Width > 4096 {
		return fmt.Errorf("無効な幅: %d", c.Camera.Width)
	}
	if c.Camera.Height <= 0 || c.Camera.Height > 4096 {
		return fmt.Errorf("無効な高さ: %d", c.Camera.Height)
	}

	if c.Recording.Timeslice < 100*time.Millisecond {
		return fmt.Errorf("タイムスライスが短すぎます: %s", c.Recording.Timeslice)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
