package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"time"

	"go.uber.org/zap"

	"camstudio/internal/logger"
)

// V4L2Options はV4L2Adapterの既定値
type V4L2Options struct {
	Settings  Settings      // 制約で指定されなかった項目に使う
	Timeslice time.Duration // 録画チャンクの間隔
}

// V4L2Adapter はV4L2デバイスとffmpegによる Adapter 実装
type V4L2Adapter struct {
	discovery Discovery
	logger    *zap.Logger
	opts      V4L2Options
}

// NewV4L2Adapter は新しいV4L2Adapterを作成する
func NewV4L2Adapter(discovery Discovery, l *zap.Logger, opts V4L2Options) *V4L2Adapter {
	if opts.Timeslice <= 0 {
		opts.Timeslice = DefaultTimeslice
	}
	return &V4L2Adapter{
		discovery: discovery,
		logger:    logger.OrNop(l).Named("camera"),
		opts:      opts,
	}
}

// GetStream はカメラを開いてライブストリームを返す
// カメラがない、または開けない場合は ErrNoStreamAvailable を返す
func (a *V4L2Adapter) GetStream(ctx context.Context, constraints Constraints) (Stream, error) {
	device := constraints.Device
	if device == "" {
		found, err := DefaultDevice(ctx, a.discovery)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoStreamAvailable, err)
		}
		device = found
	}

	if !a.discovery.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("%w: デバイスが利用できません: %s", ErrNoStreamAvailable, device)
	}

	info, err := a.discovery.GetDeviceInfo(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStreamAvailable, err)
	}

	return startV4L2Stream(ctx, *info, mergeSettings(constraints.Settings, a.opts.Settings), a.logger)
}

// Snapshot はストリームの最新フレームをPNGに変換して返す
func (a *V4L2Adapter) Snapshot(ctx context.Context, stream Stream) ([]byte, error) {
	frame, err := waitForFrame(ctx, stream)
	if err != nil {
		return nil, err
	}
	return EncodePNG(frame)
}

// NewRecorder はストリームを録画するffmpegレコーダーを生成する
func (a *V4L2Adapter) NewRecorder(stream Stream, mimeHint string, events RecorderEvents) (Recorder, error) {
	format, err := LookupFormat(mimeHint)
	if err != nil {
		return nil, err
	}
	return newFFmpegRecorder(stream, format, a.opts.Timeslice, events, a.logger)
}

// mergeSettings は未指定(0)の項目を既定値で埋める
func mergeSettings(requested, defaults Settings) Settings {
	if requested.FPS <= 0 {
		requested.FPS = defaults.FPS
	}
	if requested.Width <= 0 {
		requested.Width = defaults.Width
	}
	if requested.Height <= 0 {
		requested.Height = defaults.Height
	}
	return requested
}

// waitForFrame は最新フレームを返す。まだ届いていなければ最初のフレームを待つ
func waitForFrame(ctx context.Context, stream Stream) ([]byte, error) {
	if frame, err := stream.LatestFrame(); err == nil {
		return frame, nil
	}

	frames, unsubscribe := stream.Subscribe()
	defer unsubscribe()

	// 購読開始までの間に届いたフレームを拾う
	if frame, err := stream.LatestFrame(); err == nil {
		return frame, nil
	}

	select {
	case frame, ok := <-frames:
		if !ok {
			return nil, fmt.Errorf("%w: ストリームが終了しました", ErrNoFrame)
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EncodePNG はJPEGフレームをPNGに変換する
func EncodePNG(jpegData []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("JPEGのデコードに失敗: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("PNGのエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
