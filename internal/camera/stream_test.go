package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameHub_FanOut(t *testing.T) {
	hub := newFrameHub()

	a, unsubA := hub.Subscribe()
	b, unsubB := hub.Subscribe()
	defer unsubA()
	defer unsubB()

	hub.publish([]byte("frame-1"))

	assert.Equal(t, []byte("frame-1"), <-a)
	assert.Equal(t, []byte("frame-1"), <-b)
}

func TestFrameHub_DropsOldestWhenFull(t *testing.T) {
	hub := newFrameHub()
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+3; i++ {
		hub.publish([]byte{byte(i)})
	}

	require.Len(t, ch, subscriberBuffer)
	assert.Equal(t, []byte{3}, <-ch, "古いフレームから破棄される")
}

func TestFrameHub_LatestFrame(t *testing.T) {
	hub := newFrameHub()

	_, err := hub.LatestFrame()
	assert.ErrorIs(t, err, ErrNoFrame)

	frame := []byte("latest")
	hub.publish(frame)

	got, err := hub.LatestFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("latest"), got)

	// コピーが返される
	got[0] = 'X'
	again, err := hub.LatestFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("latest"), again)
}

func TestFrameHub_Unsubscribe(t *testing.T) {
	hub := newFrameHub()
	ch, unsubscribe := hub.Subscribe()

	unsubscribe()
	unsubscribe() // 2回目は何もしない

	_, ok := <-ch
	assert.False(t, ok, "購読解除でチャンネルがクローズされる")

	// 解除済みの購読者への配信でpanicしない
	hub.publish([]byte("x"))
}

func TestFrameHub_Finish(t *testing.T) {
	hub := newFrameHub()
	ch, unsubscribe := hub.Subscribe()

	hub.finish()
	hub.finish()

	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, isDone(hub.Done()))

	// 終了後の購読解除と配信は安全
	unsubscribe()
	hub.publish([]byte("x"))

	late, _ := hub.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "終了後の購読はクローズ済みチャンネルを返す")
}
