package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"camstudio/internal/artifact"
	"camstudio/internal/camera"
	"camstudio/internal/logger"
	"camstudio/internal/session"
)

// ErrorResponse はエラー時のレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse はアプリ全体の状態
type StatusResponse struct {
	Status    string         `json:"status"`
	Session   session.Status `json:"session"`
	Preview   camera.Status  `json:"preview"`
	Device    string         `json:"device,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler はHTTPハンドラー群
type Handler struct {
	controller *session.Controller
	preview    *camera.Preview
	logger     *zap.Logger
}

// NewHandler は新しいHandlerを作成する
func NewHandler(controller *session.Controller, preview *camera.Preview, l *zap.Logger) *Handler {
	return &Handler{
		controller: controller,
		preview:    preview,
		logger:     logger.OrNop(l),
	}
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// GetStatus は録画状態とプレビュー状態を返す
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.statusResponse())
}

func (h *Handler) statusResponse() StatusResponse {
	response := StatusResponse{
		Status:    "running",
		Session:   h.controller.Status(),
		Preview:   h.preview.Status(),
		Timestamp: time.Now(),
	}
	if stream := h.preview.Current(); stream != nil {
		response.Device = stream.Device()
	}
	return response
}

// StartSession は録画を開始する
func (h *Handler) StartSession(c *gin.Context) {
	stream, err := h.preview.Acquire(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.controller.StartSession(c.Request.Context(), stream); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.statusResponse())
}

// StopSession は録画を停止する。録画中でなくても成功を返す
func (h *Handler) StopSession(c *gin.Context) {
	if err := h.controller.StopSession(); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.statusResponse())
}

// CapturePhoto は写真を撮影する
func (h *Handler) CapturePhoto(c *gin.Context) {
	stream, err := h.preview.Acquire(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.controller.CapturePhoto(c.Request.Context(), stream); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.statusResponse())
}

// DownloadPhoto は撮影した写真をダウンロードさせる
func (h *Handler) DownloadPhoto(c *gin.Context) {
	photo, ok := h.controller.Photo()
	h.sendArtifact(c, photo, ok)
}

// DownloadVideo は録画した動画をダウンロードさせる
func (h *Handler) DownloadVideo(c *gin.Context) {
	video, ok := h.controller.Video()
	h.sendArtifact(c, video, ok)
}

func (h *Handler) sendArtifact(c *gin.Context, a *artifact.Artifact, ok bool) {
	if !ok || len(a.Data) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "nothing_to_download",
			Message:   "ダウンロードできるファイルがありません",
			Timestamp: time.Now(),
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, a.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, a.MIMEType, a.Data)
}

// GetPreview はMJPEGでライブプレビューを配信する
func (h *Handler) GetPreview(c *gin.Context) {
	stream, err := h.preview.Acquire(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.streamMJPEG(c, stream)
}

// Index は埋め込みのページを返す
func (h *Handler) Index(c *gin.Context) {
	data, err := indexHTML()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

// respondError はエラーの種類に応じたステータスコードで応答する
func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error("リクエストの処理に失敗", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, camera.ErrNoStreamAvailable):
		return http.StatusServiceUnavailable, "no_stream_available"
	case errors.Is(err, camera.ErrRecorderUnsupported):
		return http.StatusUnsupportedMediaType, "recorder_unsupported"
	case errors.Is(err, session.ErrAlreadyRecording):
		return http.StatusConflict, "already_recording"
	case errors.Is(err, session.ErrFinalizing):
		return http.StatusConflict, "finalizing"
	case errors.Is(err, camera.ErrNoFrame):
		return http.StatusServiceUnavailable, "no_frame"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// streamMJPEG はMJPEGストリームを配信する
func (h *Handler) streamMJPEG(c *gin.Context, stream camera.Stream) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// レスポンスライターを取得
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	frameChan, unsubscribe := stream.Subscribe()
	defer unsubscribe()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return

		case frame, ok := <-frameChan:
			if !ok {
				// ストリームが終了した
				return
			}

			if _, err := writer.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
				return
			}
			if _, err := writer.Write(frame); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			// バッファをフラッシュ
			flusher.Flush()
		}
	}
}
