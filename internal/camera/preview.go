package camera

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"camstudio/internal/logger"
)

// Preview はアプリ全体で共有するライブストリームを保持する
// 録画や静止画はここで取得したストリームを借りて使う
type Preview struct {
	adapter     Adapter
	constraints Constraints
	logger      *zap.Logger

	// acquireMu はカメラを開く処理を1つに絞る。デバイスは同時に1回しか開けない
	acquireMu sync.Mutex

	mu      sync.Mutex
	stream  Stream
	lastErr error
}

// NewPreview は新しいPreviewを作成する
func NewPreview(adapter Adapter, constraints Constraints, l *zap.Logger) *Preview {
	return &Preview{
		adapter:     adapter,
		constraints: constraints,
		logger:      logger.OrNop(l).Named("preview"),
	}
}

// Acquire は有効なストリームを返す。なければカメラを開く
// カメラを開いている間も Current と Status は待たされない
func (p *Preview) Acquire(ctx context.Context) (Stream, error) {
	if stream := p.Current(); stream != nil {
		return stream, nil
	}

	p.acquireMu.Lock()
	defer p.acquireMu.Unlock()

	// 待っている間に他の呼び出しが開いたかもしれない
	if stream := p.Current(); stream != nil {
		return stream, nil
	}

	stream, err := p.adapter.GetStream(ctx, p.constraints)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.lastErr = err
		p.stream = nil
		return nil, err
	}

	p.logger.Info("プレビューを開始しました",
		zap.String("stream_id", stream.ID()),
		zap.String("device", stream.Device()),
	)
	p.stream = stream
	p.lastErr = nil
	return stream, nil
}

// Current は現在有効なストリームを返す。なければnil
func (p *Preview) Current() Stream {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil || isDone(p.stream.Done()) {
		return nil
	}
	return p.stream
}

// Status はプレビューの状態を返す
func (p *Preview) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.stream != nil && !isDone(p.stream.Done()):
		return StatusActive
	case p.lastErr != nil:
		return StatusError
	default:
		return StatusInactive
	}
}

// Release はストリームを閉じる
func (p *Preview) Release(ctx context.Context) error {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()

	if stream == nil {
		return nil
	}

	p.logger.Info("プレビューを停止しました", zap.String("stream_id", stream.ID()))
	return stream.Close(ctx)
}

// Watch はデバイスの抜き差しに合わせてストリームを開閉する
// eventsがクローズされるかctxが終了すると戻る
func (p *Preview) Watch(ctx context.Context, events <-chan DeviceEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.handleDeviceEvent(ctx, ev)
		}
	}
}

func (p *Preview) handleDeviceEvent(ctx context.Context, ev DeviceEvent) {
	current := p.Current()

	if !ev.Added {
		if current != nil && current.Device() == ev.Device {
			p.logger.Warn("使用中のカメラが取り外されました", zap.String("device", ev.Device))
			if err := p.Release(ctx); err != nil {
				p.logger.Warn("ストリームの停止に失敗", zap.Error(err))
			}
		}
		return
	}

	if current != nil {
		return
	}
	if p.constraints.Device != "" && p.constraints.Device != ev.Device {
		return
	}

	p.logger.Info("カメラが接続されました", zap.String("device", ev.Device))
	if _, err := p.Acquire(ctx); err != nil {
		p.logger.Warn("プレビューの開始に失敗", zap.Error(err))
	}
}
