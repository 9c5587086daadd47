// Package logger はアプリケーション全体で使う zap ロガーを生成する
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options はロガーの生成オプション
type Options struct {
	Level       string // debug / info / warn / error
	Development bool   // 開発用の人間向け出力にする
}

// New は新しいロガーを作成する
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if opts.Development {
		config = zap.NewDevelopmentConfig()
	}

	level := "info"
	if opts.Level != "" {
		level = opts.Level
	}

	if l, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(l)
	} else {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return config.Build()
}

// OrNop は nil の場合に何も出力しないロガーを返す
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
