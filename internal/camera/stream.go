package camera

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subscriberBuffer は購読者ごとのフレームバッファ数
const subscriberBuffer = 10

// frameHub はフレームを複数の購読者へ配信する
// 購読者のバッファがいっぱいの場合は古いフレームを破棄する
type frameHub struct {
	mu     sync.RWMutex
	subs   map[int]chan []byte
	nextID int

	latestMu sync.RWMutex
	latest   []byte

	done     chan struct{}
	doneOnce sync.Once
}

func newFrameHub() *frameHub {
	return &frameHub{
		subs: make(map[int]chan []byte),
		done: make(chan struct{}),
	}
}

// Subscribe はフレームの購読を開始する
func (h *frameHub) Subscribe() (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan []byte, subscriberBuffer)
	if isDone(h.done) {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// LatestFrame は最新フレームのコピーを返す
func (h *frameHub) LatestFrame() ([]byte, error) {
	h.latestMu.RLock()
	defer h.latestMu.RUnlock()

	if h.latest == nil {
		return nil, ErrNoFrame
	}

	frame := make([]byte, len(h.latest))
	copy(frame, h.latest)
	return frame, nil
}

// Done はストリーム終了時にクローズされる
func (h *frameHub) Done() <-chan struct{} {
	return h.done
}

func (h *frameHub) publish(frame []byte) {
	if isDone(h.done) {
		return
	}

	// 最新フレームを保存（静止画用）
	h.latestMu.Lock()
	h.latest = make([]byte, len(frame))
	copy(h.latest, frame)
	h.latestMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- frame:
		default:
			// チャンネルがフルの場合は古いフレームを破棄
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
}

// finish は全購読者のチャンネルをクローズしてストリームを終了状態にする
func (h *frameHub) finish() {
	h.doneOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		for id, ch := range h.subs {
			close(ch)
			delete(h.subs, id)
		}
		close(h.done)
	})
}

// v4l2Stream はV4L2デバイスからのライブストリーム
type v4l2Stream struct {
	*frameHub

	id       string
	name     string
	device   string
	settings Settings

	capturer *V4L2Capturer
	cancel   context.CancelFunc
	logger   *zap.Logger
}

// startV4L2Stream はデバイスを開いてフレーム配信を開始する
func startV4L2Stream(ctx context.Context, info DeviceInfo, settings Settings, logger *zap.Logger) (*v4l2Stream, error) {
	capturer := NewV4L2Capturer(info.Device, settings)

	// デバイステストを実行
	if err := capturer.TestCapture(ctx); err != nil {
		return nil, fmt.Errorf("%w: カメラのテストキャプチャに失敗: %v", ErrNoStreamAvailable, err)
	}

	// ストリームはリクエストより長く生きるため独自のコンテキストを持つ
	streamCtx, cancel := context.WithCancel(context.Background())

	s := &v4l2Stream{
		frameHub: newFrameHub(),
		id:       uuid.NewString(),
		name:     info.Name,
		device:   info.Device,
		settings: settings,
		capturer: capturer,
		cancel:   cancel,
		logger:   logger.With(zap.String("device", info.Device)),
	}

	frameChan := make(chan []byte, subscriberBuffer)
	errorChan := make(chan error, 5)
	capturer.StartStream(streamCtx, frameChan, errorChan)

	go s.forwardFrames(frameChan, errorChan)

	s.logger.Info("カメラストリームを開始しました",
		zap.String("stream_id", s.id),
		zap.Int("width", settings.Width),
		zap.Int("height", settings.Height),
		zap.Int("fps", settings.FPS),
	)

	return s, nil
}

// forwardFrames はキャプチャからフレームを購読者へ転送する
func (s *v4l2Stream) forwardFrames(frameChan <-chan []byte, errorChan <-chan error) {
	defer s.finish()

	for {
		select {
		case frame, ok := <-frameChan:
			if !ok {
				s.logger.Info("カメラストリームが終了しました", zap.String("stream_id", s.id))
				return
			}
			s.publish(frame)

		case err := <-errorChan:
			s.logger.Warn("キャプチャエラー", zap.Error(err))
		}
	}
}

func (s *v4l2Stream) ID() string         { return s.id }
func (s *v4l2Stream) Name() string       { return s.name }
func (s *v4l2Stream) Device() string     { return s.device }
func (s *v4l2Stream) Settings() Settings { return s.settings }

// Close はffmpegを停止し、配信の終了を待つ
func (s *v4l2Stream) Close(ctx context.Context) error {
	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
