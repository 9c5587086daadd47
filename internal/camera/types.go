package camera

import (
	"context"
	"errors"
)

var (
	// ErrNoStreamAvailable はカメラが存在しない、または権限がない場合のエラー
	ErrNoStreamAvailable = errors.New("利用可能なカメラストリームがありません")

	// ErrRecorderUnsupported は要求された録画フォーマットに対応していない場合のエラー
	ErrRecorderUnsupported = errors.New("録画フォーマットがサポートされていません")

	// ErrNoFrame はまだフレームを受信していない場合のエラー
	ErrNoFrame = errors.New("フレームがまだ取得されていません")
)

// Status はストリームの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // 停止中
	StatusActive   Status = "active"   // 動作中
	StatusError    Status = "error"    // エラーが発生
)

// Settings は映像の設定を表す
type Settings struct {
	FPS    int // フレームレート
	Width  int // 画像幅
	Height int // 画像高さ
}

// Constraints はストリーム取得時の要求
type Constraints struct {
	Device string // デバイスパス（空の場合は既定カメラ）
	Settings
	Audio bool // 受け付けるが使用しない
}

// Adapter はカメラデバイスへの窓口
type Adapter interface {
	// GetStream はライブストリームを取得する
	GetStream(ctx context.Context, constraints Constraints) (Stream, error)

	// Snapshot はストリームから静止画を1枚取得する（PNG）
	Snapshot(ctx context.Context, stream Stream) ([]byte, error)

	// NewRecorder はストリームを録画するレコーダーを生成する
	NewRecorder(stream Stream, mimeHint string, events RecorderEvents) (Recorder, error)
}

// Stream はカメラのライブ映像
type Stream interface {
	ID() string
	Name() string
	Device() string
	Settings() Settings

	// Subscribe はMJPEGフレームの購読を開始する
	// 返された関数で購読を解除するとチャンネルはクローズされる
	Subscribe() (<-chan []byte, func())

	// LatestFrame は最新のJPEGフレームのコピーを返す
	LatestFrame() ([]byte, error)

	// Done はストリームが終了するとクローズされる
	Done() <-chan struct{}

	Close(ctx context.Context) error
}

// RecorderEvents はレコーダーからの通知先
type RecorderEvents struct {
	// OnChunk はタイムスライスごと、および停止時に1回呼ばれる
	// 空のチャンクが渡されることもある
	OnChunk func(chunk []byte)

	// OnStop は最後の OnChunk の後にちょうど1回呼ばれる
	OnStop func(err error)
}

// Recorder は1回分の録画を担うハンドル
type Recorder interface {
	Start(ctx context.Context) error

	// Stop は録画の終了を要求する。完了は OnStop で通知される
	Stop() error

	MIMEType() string
	Extension() string
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device string // デバイスパス
	Name   string // デバイス名
	Driver string // ドライバー名
}

// isDone はチャンネルがクローズ済みかを返す
func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
