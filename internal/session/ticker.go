package session

import (
	"fmt"
	"sync"
	"time"
)

// Clock は周期タイマーの生成元。テストでは手動で進める実装に差し替える
type Clock interface {
	// NewTicker は周期的に時刻を送るチャンネルと停止関数を返す
	NewTicker(d time.Duration) (<-chan time.Time, func())
}

type realClock struct{}

func (realClock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// RealClock は実時間のClockを返す
func RealClock() Clock {
	return realClock{}
}

// Ticker は録画中の経過時間を数える周期タイマー
type Ticker struct {
	clock    Clock
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// NewTicker は新しいTickerを作成する
func NewTicker(clock Clock, interval time.Duration) *Ticker {
	if clock == nil {
		clock = RealClock()
	}
	return &Ticker{
		clock:    clock,
		interval: interval,
	}
}

// Start は周期的にonTickを呼び出す。既に動いている場合は止めてから始める
func (t *Ticker) Start(onTick func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		close(t.stop)
	}
	stop := make(chan struct{})
	t.stop = stop

	ticks, cancel := t.clock.NewTicker(t.interval)
	go func() {
		defer cancel()
		for {
			select {
			case <-stop:
				return
			case <-ticks:
				// 停止と同時に届いたtickは捨てる
				select {
				case <-stop:
					return
				default:
				}
				onTick()
			}
		}
	}()
}

// Stop はタイマーを止める。実行中のonTickの完了は待たない
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

// FormatElapsed は経過秒数を MM:SS 形式にする
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
