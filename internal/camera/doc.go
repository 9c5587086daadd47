// Package camera はカメラデバイスへのアクセスを担う
//
// # 責務
// - V4L2デバイスの検出と既定カメラの選択
// - ライブ映像ストリームの取得と複数購読者への配信
// - 最新フレームからの静止画（PNG）取得
// - 録画レコーダーの生成（ffmpeg経由でのエンコードとチャンク出力）
// - デバイスの抜き差し監視
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - プレビュー用のMJPEGフレームを受け取りたい
// - 写真を1枚撮りたい
// - 録画データをチャンク単位で受け取りたい
//
// # 仕様
// - Adapter: ストリーム取得・スナップショット・レコーダー生成の窓口
// - Stream: MJPEGフレームのファンアウト（満杯の購読者は古いフレームを破棄）
// - Recorder: タイムスライスごとにチャンクを通知し、停止後に末尾チャンクと完了を通知
// - Preview: 現在のストリームを保持し、録画セッションへ貸し出す
// - DeviceWatcher: fsnotify による /dev の監視
// - テスト用に MockAdapter / MockStream / MockRecorder を提供
//
// # 前提要件
//   - v4l-utils: カメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: 画像キャプチャと録画エンコードに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
