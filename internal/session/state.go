// Package session は録画セッションの状態管理を行う
//
// # 状態遷移
//
//	Idle --StartSession--> Recording --StopSession--> Idle(確定待ち) --settle--> Idle
//
// 停止後、レコーダーが最後のチャンクを出し切って終了を通知するまでを
// 「確定待ち」と呼ぶ。この間に届いたチャンクも同じセッションの動画に含める。
package session

import (
	"errors"

	"camstudio/internal/artifact"
)

var (
	// ErrAlreadyRecording は録画中に開始しようとした場合のエラー
	ErrAlreadyRecording = errors.New("既に録画中です")

	// ErrFinalizing は前回の録画がまだ確定していない場合のエラー
	ErrFinalizing = errors.New("前回の録画を確定中です")
)

// State は録画状態
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	default:
		return "idle"
	}
}

// Outcome は直近のセッションの結果
type Outcome string

const (
	OutcomeNone   Outcome = ""       // まだ結果がない
	OutcomeSaved  Outcome = "saved"  // 動画を作成した
	OutcomeEmpty  Outcome = "empty"  // チャンクがなくダウンロードするものがない
	OutcomeFailed Outcome = "failed" // レコーダーがエラーで終了し、動画も作れなかった
)

// Status は画面表示用の状態
type Status struct {
	State          string         `json:"state"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
	Elapsed        string         `json:"elapsed"` // MM:SS
	Finalizing     bool           `json:"finalizing"`
	Photo          *artifact.Info `json:"photo,omitempty"`
	Video          *artifact.Info `json:"video,omitempty"`
	LastOutcome    Outcome        `json:"last_outcome,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
}
