package camera

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockStream はテスト用のストリーム
type MockStream struct {
	*frameHub

	id       string
	device   string
	settings Settings
}

// NewMockStream は新しいMockStreamを作成する
func NewMockStream(device string) *MockStream {
	return &MockStream{
		frameHub: newFrameHub(),
		id:       uuid.NewString(),
		device:   device,
		settings: Settings{FPS: 15, Width: 640, Height: 480},
	}
}

func (s *MockStream) ID() string         { return s.id }
func (s *MockStream) Name() string       { return "テストカメラ" }
func (s *MockStream) Device() string     { return s.device }
func (s *MockStream) Settings() Settings { return s.settings }

// Publish はフレームを購読者へ配信する
func (s *MockStream) Publish(frame []byte) {
	s.publish(frame)
}

// End はデバイスの切断などによるストリームの終了を模擬する
func (s *MockStream) End() {
	s.finish()
}

// Close はストリームを終了する
func (s *MockStream) Close(_ context.Context) error {
	s.finish()
	return nil
}

// MockAdapter はテスト用の Adapter 実装
type MockAdapter struct {
	mu sync.Mutex

	Stream    *MockStream
	StreamErr error

	SnapshotData []byte
	SnapshotErr  error

	RecorderErr error
	StartErr    error // 生成したレコーダーの Start が返すエラー

	// AutoSettle が true の場合、Stop で Trailing を発行してすぐに終了を通知する
	AutoSettle bool
	Trailing   []byte

	recorders []*MockRecorder
}

// NewMockAdapter は新しいMockAdapterを作成する
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		Stream:       NewMockStream("/dev/video0"),
		SnapshotData: []byte("mock-png"),
		AutoSettle:   true,
	}
}

// GetStream はモックストリームを返す
func (m *MockAdapter) GetStream(_ context.Context, _ Constraints) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	if m.Stream == nil {
		return nil, ErrNoStreamAvailable
	}
	return m.Stream, nil
}

// Snapshot は SnapshotData のコピーを返す
func (m *MockAdapter) Snapshot(_ context.Context, stream Stream) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SnapshotErr != nil {
		return nil, m.SnapshotErr
	}
	if isDone(stream.Done()) {
		return nil, fmt.Errorf("%w: ストリームが終了しました", ErrNoFrame)
	}

	data := make([]byte, len(m.SnapshotData))
	copy(data, m.SnapshotData)
	return data, nil
}

// NewRecorder はMockRecorderを生成する
func (m *MockAdapter) NewRecorder(_ Stream, mimeHint string, events RecorderEvents) (Recorder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RecorderErr != nil {
		return nil, m.RecorderErr
	}
	format, err := LookupFormat(mimeHint)
	if err != nil {
		return nil, err
	}

	rec := &MockRecorder{
		format:     format,
		events:     events,
		autoSettle: m.AutoSettle,
		trailing:   m.Trailing,
		StartErr:   m.StartErr,
	}
	m.recorders = append(m.recorders, rec)
	return rec, nil
}

// Recorders はこれまでに生成したレコーダーを返す
func (m *MockAdapter) Recorders() []*MockRecorder {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*MockRecorder, len(m.recorders))
	copy(result, m.recorders)
	return result
}

// LastRecorder は最後に生成したレコーダーを返す
func (m *MockAdapter) LastRecorder() *MockRecorder {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.recorders) == 0 {
		return nil
	}
	return m.recorders[len(m.recorders)-1]
}

// MockRecorder はテスト用の Recorder 実装
// チャンクと終了通知はテストから Emit と Settle で発生させる
type MockRecorder struct {
	format     Format
	events     RecorderEvents
	autoSettle bool
	trailing   []byte

	StartErr error

	mu        sync.Mutex
	started   bool
	stopCount int
	settle    sync.Once
}

// Start は開始を記録する
func (r *MockRecorder) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.StartErr != nil {
		return r.StartErr
	}
	r.started = true
	return nil
}

// Stop は停止要求を記録する
func (r *MockRecorder) Stop() error {
	r.mu.Lock()
	r.stopCount++
	autoSettle := r.autoSettle
	r.mu.Unlock()

	if autoSettle {
		if r.trailing != nil {
			r.Emit(r.trailing)
		}
		r.Settle(nil)
	}
	return nil
}

// Emit はチャンクを発行する
func (r *MockRecorder) Emit(chunk []byte) {
	if r.events.OnChunk != nil {
		r.events.OnChunk(chunk)
	}
}

// Settle は録画の終了を通知する（2回目以降は無視）
func (r *MockRecorder) Settle(err error) {
	r.settle.Do(func() {
		if r.events.OnStop != nil {
			r.events.OnStop(err)
		}
	})
}

// Started は Start が成功したかを返す
func (r *MockRecorder) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// StopCount は Stop が呼ばれた回数を返す
func (r *MockRecorder) StopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCount
}

func (r *MockRecorder) MIMEType() string  { return r.format.MIMEType }
func (r *MockRecorder) Extension() string { return r.format.Extension }
