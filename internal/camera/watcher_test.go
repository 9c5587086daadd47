package camera

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestToDeviceEvent(t *testing.T) {
	testCases := []struct {
		name   string
		event  fsnotify.Event
		want   DeviceEvent
		wantOK bool
	}{
		{
			name:   "接続",
			event:  fsnotify.Event{Name: "/dev/video2", Op: fsnotify.Create},
			want:   DeviceEvent{Device: "/dev/video2", Added: true},
			wantOK: true,
		},
		{
			name:   "切断",
			event:  fsnotify.Event{Name: "/dev/video2", Op: fsnotify.Remove},
			want:   DeviceEvent{Device: "/dev/video2", Added: false},
			wantOK: true,
		},
		{
			name:  "属性変更は無視",
			event: fsnotify.Event{Name: "/dev/video2", Op: fsnotify.Chmod},
		},
		{
			name:  "カメラ以外のノードは無視",
			event: fsnotify.Event{Name: "/dev/ttyUSB0", Op: fsnotify.Create},
		},
		{
			name:  "サブデバイスは無視",
			event: fsnotify.Event{Name: "/dev/video-codec", Op: fsnotify.Create},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := toDeviceEvent(tc.event)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDeviceWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	watcher, err := NewDeviceWatcher(dir, zap.NewNop())
	require.NoError(t, err)
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- watcher.Run(ctx) }()

	device := filepath.Join(dir, "video5")
	require.NoError(t, os.WriteFile(device, nil, 0o600))

	select {
	case ev := <-watcher.Events():
		assert.Equal(t, DeviceEvent{Device: device, Added: true}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("接続イベントが届かない")
	}

	require.NoError(t, os.Remove(device))

	select {
	case ev := <-watcher.Events():
		assert.Equal(t, DeviceEvent{Device: device, Added: false}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("切断イベントが届かない")
	}

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)

	_, ok := <-watcher.Events()
	assert.False(t, ok, "Run終了でイベントチャンネルはクローズされる")
}

func TestNewDeviceWatcher_MissingDir(t *testing.T) {
	_, err := NewDeviceWatcher(filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	assert.Error(t, err)
}
