package camera

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPreview_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	adapter := NewMockAdapter()
	preview := NewPreview(adapter, Constraints{}, zap.NewNop())

	assert.Equal(t, StatusInactive, preview.Status())
	assert.Nil(t, preview.Current())

	stream, err := preview.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, preview.Status())

	// 2回目は同じストリームを返す
	again, err := preview.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, stream, again)

	require.NoError(t, preview.Release(ctx))
	assert.Nil(t, preview.Current())
	assert.True(t, isDone(stream.Done()))
}

func TestPreview_AcquireError(t *testing.T) {
	adapter := NewMockAdapter()
	adapter.StreamErr = ErrNoStreamAvailable
	preview := NewPreview(adapter, Constraints{}, zap.NewNop())

	_, err := preview.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNoStreamAvailable)
	assert.Equal(t, StatusError, preview.Status())
}

func TestPreview_ReacquireAfterStreamEnd(t *testing.T) {
	ctx := context.Background()
	adapter := NewMockAdapter()
	preview := NewPreview(adapter, Constraints{}, zap.NewNop())

	first, err := preview.Acquire(ctx)
	require.NoError(t, err)

	adapter.Stream.End()
	assert.Nil(t, preview.Current(), "終了したストリームは返さない")

	adapter.Stream = NewMockStream("/dev/video0")
	second, err := preview.Acquire(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestPreview_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := NewMockAdapter()
	preview := NewPreview(adapter, Constraints{}, zap.NewNop())

	events := make(chan DeviceEvent)
	done := make(chan struct{})
	go func() {
		preview.Watch(ctx, events)
		close(done)
	}()

	events <- DeviceEvent{Device: "/dev/video0", Added: true}
	require.Eventually(t, func() bool { return preview.Current() != nil }, time.Second, 5*time.Millisecond)

	// 関係のないデバイスの切断は無視する
	events <- DeviceEvent{Device: "/dev/video9", Added: false}
	assert.NotNil(t, preview.Current())

	events <- DeviceEvent{Device: "/dev/video0", Added: false}
	require.Eventually(t, func() bool { return preview.Current() == nil }, time.Second, 5*time.Millisecond)

	close(events)
	<-done
}

// slowAdapter は GetStream を release が閉じられるまで止める
type slowAdapter struct {
	*MockAdapter

	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (a *slowAdapter) GetStream(ctx context.Context, c Constraints) (Stream, error) {
	a.mu.Lock()
	a.calls++
	first := a.calls == 1
	a.mu.Unlock()

	if first {
		close(a.entered)
	}
	<-a.release
	return a.MockAdapter.GetStream(ctx, c)
}

func TestPreview_StatusDuringSlowAcquire(t *testing.T) {
	adapter := &slowAdapter{
		MockAdapter: NewMockAdapter(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	preview := NewPreview(adapter, Constraints{}, zap.NewNop())

	results := make(chan Stream, 2)
	for i := 0; i < 2; i++ {
		go func() {
			stream, err := preview.Acquire(context.Background())
			assert.NoError(t, err)
			results <- stream
		}()
	}
	<-adapter.entered

	// カメラを開いている間も状態は取得できる
	statusDone := make(chan Status, 1)
	go func() { statusDone <- preview.Status() }()
	select {
	case status := <-statusDone:
		assert.Equal(t, StatusInactive, status)
	case <-time.After(time.Second):
		t.Fatal("カメラを開いている間に Status が待たされた")
	}
	assert.Nil(t, preview.Current())

	close(adapter.release)
	first, second := <-results, <-results
	assert.Same(t, first, second)

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	assert.Equal(t, 1, adapter.calls, "同時に呼ばれてもカメラは1回だけ開く")
}
