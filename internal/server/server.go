package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"camstudio/internal/config"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	httpServer *http.Server
	logger     *zap.Logger
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, handler *Handler, logger *zap.Logger) *Server {
	// シャットダウン開始時に配信中のプレビューを終わらせるため、全リクエストの親コンテキストを持つ
	baseCtx, cancel := context.WithCancel(context.Background())

	httpServer := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      NewRouter(handler, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout, // プレビューは長時間続くため0（無制限）にする
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	httpServer.RegisterOnShutdown(cancel)

	return &Server{
		config:     cfg,
		logger:     logger,
		httpServer: httpServer,
	}
}

// NewRouter はHTTPルートを設定したginエンジンを返す
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// 画面
	router.GET("/", h.Index)

	// ヘルスチェックエンドポイント
	router.GET("/health", h.HealthCheck)

	// APIエンドポイント
	api := router.Group("/api")
	api.GET("/status", h.GetStatus)
	api.POST("/session/start", h.StartSession)
	api.POST("/session/stop", h.StopSession)
	api.POST("/photo", h.CapturePhoto)
	api.GET("/artifacts/photo", h.DownloadPhoto)
	api.GET("/artifacts/video", h.DownloadVideo)
	api.GET("/preview", h.GetPreview)
	api.GET("/ws", h.StatusWebSocket)

	// API定義は埋め込みなので、読めないのはビルドの不備
	doc, err := LoadOpenAPI(context.Background())
	if err != nil {
		logger.Error("API定義を読み込めません", zap.Error(err))
	} else {
		api.GET("/openapi.json", openAPIHandler(doc))
	}

	return router
}

// Start はサーバーを起動し、ctxの終了かシグナルの受信で停止する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", zap.String("addr", s.config.ServerAddress()))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", zap.String("signal", sig.String()))
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}
