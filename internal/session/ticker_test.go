package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock はTickで任意のタイミングにtickを送るテスト用Clock
type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

type manualTicker struct {
	ch   chan time.Time
	done chan struct{}
	once sync.Once
}

func newManualClock() *manualClock {
	return &manualClock{}
}

func (m *manualClock) NewTicker(time.Duration) (<-chan time.Time, func()) {
	t := &manualTicker{
		ch:   make(chan time.Time),
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.tickers = append(m.tickers, t)
	m.mu.Unlock()

	return t.ch, func() { t.once.Do(func() { close(t.done) }) }
}

// Tick は動いている全てのtickerに1回分のtickを届ける
func (m *manualClock) Tick() {
	m.mu.Lock()
	tickers := make([]*manualTicker, len(m.tickers))
	copy(tickers, m.tickers)
	m.mu.Unlock()

	for _, t := range tickers {
		select {
		case t.ch <- time.Now():
		case <-t.done:
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	testCases := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{5, "00:05"},
		{59, "00:59"},
		{60, "01:00"},
		{754, "12:34"},
		{6000, "100:00"},
		{-3, "00:00"},
	}

	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatElapsed(tc.seconds))
		})
	}
}

func TestTicker_StartStop(t *testing.T) {
	clock := newManualClock()
	ticker := NewTicker(clock, time.Second)

	var count atomic.Int32
	ticker.Start(func() { count.Add(1) })

	clock.Tick()
	clock.Tick()
	require.Eventually(t, func() bool { return count.Load() == 2 }, time.Second, time.Millisecond)

	ticker.Stop()
	clock.Tick()
	clock.Tick()

	assert.Equal(t, int32(2), count.Load(), "停止後はカウントされない")

	ticker.Stop() // 2回目の停止は何もしない
}

func TestTicker_Restart(t *testing.T) {
	clock := newManualClock()
	ticker := NewTicker(clock, time.Second)

	var first, second atomic.Int32
	ticker.Start(func() { first.Add(1) })
	ticker.Start(func() { second.Add(1) })

	clock.Tick()
	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), first.Load(), "再開始で前のタイマーは止まる")

	ticker.Stop()
}

func TestTicker_RealClock(t *testing.T) {
	ticker := NewTicker(nil, 5*time.Millisecond)

	var count atomic.Int32
	ticker.Start(func() { count.Add(1) })
	defer ticker.Stop()

	require.Eventually(t, func() bool { return count.Load() >= 2 }, time.Second, time.Millisecond)
}
