package camera

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"camstudio/internal/logger"
)

var videoNodePattern = regexp.MustCompile(`^video\d+$`)

// DeviceEvent はカメラデバイスの接続・切断を表す
type DeviceEvent struct {
	Device string // デバイスパス
	Added  bool   // trueなら接続、falseなら切断
}

// DeviceWatcher はデバイスディレクトリを監視してカメラの抜き差しを通知する
type DeviceWatcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	events    chan DeviceEvent
	logger    *zap.Logger
}

// NewDeviceWatcher はdir（通常は /dev）を監視するDeviceWatcherを作成する
func NewDeviceWatcher(dir string, l *zap.Logger) (*DeviceWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ファイル監視の作成に失敗: %w", err)
	}

	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("ディレクトリの監視に失敗: %s: %w", dir, err)
	}

	return &DeviceWatcher{
		fsWatcher: fsWatcher,
		dir:       dir,
		events:    make(chan DeviceEvent, 8),
		logger:    logger.OrNop(l).Named("watcher"),
	}, nil
}

// Events はデバイスイベントのチャンネルを返す。Run の終了時にクローズされる
func (w *DeviceWatcher) Events() <-chan DeviceEvent {
	return w.events
}

// Run はctxが終了するか監視が閉じられるまでイベントを変換し続ける
func (w *DeviceWatcher) Run(ctx context.Context) error {
	defer close(w.events)

	w.logger.Info("デバイスの監視を開始しました", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			ev, ok := toDeviceEvent(event)
			if !ok {
				continue
			}
			w.logger.Debug("デバイスイベント",
				zap.String("device", ev.Device),
				zap.Bool("added", ev.Added),
			)
			select {
			case w.events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("デバイス監視エラー", zap.Error(err))
		}
	}
}

// Close は監視を終了する
func (w *DeviceWatcher) Close() error {
	return w.fsWatcher.Close()
}

// toDeviceEvent はvideoNノードの作成・削除だけをDeviceEventに変換する
func toDeviceEvent(event fsnotify.Event) (DeviceEvent, bool) {
	if !videoNodePattern.MatchString(filepath.Base(event.Name)) {
		return DeviceEvent{}, false
	}

	switch {
	case event.Has(fsnotify.Create):
		return DeviceEvent{Device: event.Name, Added: true}, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return DeviceEvent{Device: event.Name, Added: false}, true
	default:
		return DeviceEvent{}, false
	}
}
