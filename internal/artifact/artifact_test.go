package artifact

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutAndGet(t *testing.T) {
	s := NewStore()

	_, ok := s.Get(KindPhoto)
	assert.False(t, ok, "初期状態では空")

	a := s.Put(KindPhoto, []byte{1, 2, 3}, "photo.png", "image/png")
	assert.Equal(t, 3, a.Size)
	assert.Equal(t, KindPhoto, a.Kind)

	got, ok := s.Get(KindPhoto)
	require.True(t, ok)
	assert.Equal(t, a.ID, got.ID.String())
	assert.Equal(t, "photo.png", got.Filename)
	assert.Equal(t, []byte{1, 2, 3}, got.Data)

	info, ok := s.Info(KindPhoto)
	require.True(t, ok)
	assert.Equal(t, 3, info.Size)
	assert.Equal(t, KindPhoto, info.Kind)

	_, ok = s.Get(KindVideo)
	assert.False(t, ok, "写真の保存は動画に影響しない")
}

func TestStore_PutReplacesAndReleases(t *testing.T) {
	s := NewStore()

	var released []Info
	s.OnRelease = func(info Info) { released = append(released, info) }

	first := s.Put(KindPhoto, []byte("first"), "photo.png", "image/png")
	held, ok := s.Get(KindPhoto)
	require.True(t, ok)

	second := s.Put(KindPhoto, []byte("second"), "photo.png", "image/png")

	got, ok := s.Get(KindPhoto)
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID.String())

	require.Len(t, released, 1)
	assert.Equal(t, first.ID, released[0].ID)
	assert.Equal(t, 5, released[0].Size)
	assert.Equal(t, []byte("first"), held.Data, "取得済みのコピーは解放の影響を受けない")
}

func TestStore_Release(t *testing.T) {
	s := NewStore()

	assert.False(t, s.Release(KindVideo), "存在しない成果物の解放")

	s.Put(KindVideo, []byte("clip"), "video.webm", "video/webm")
	assert.True(t, s.Release(KindVideo))

	_, ok := s.Get(KindVideo)
	assert.False(t, ok)
}

func TestStore_ReleaseAll(t *testing.T) {
	s := NewStore()

	count := 0
	s.OnRelease = func(Info) { count++ }

	s.Put(KindPhoto, []byte("p"), "photo.png", "image/png")
	s.Put(KindVideo, []byte("v"), "video.webm", "video/webm")
	s.ReleaseAll()

	assert.Equal(t, 2, count)
	_, ok := s.Get(KindPhoto)
	assert.False(t, ok)
	_, ok = s.Get(KindVideo)
	assert.False(t, ok)
}

func TestStore_ConcurrentPutAndRelease(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			info := s.Put(KindVideo, []byte("clip"), "video.webm", "video/webm")
			assert.Equal(t, 4, info.Size)
		}()
		go func() {
			defer wg.Done()
			s.Release(KindVideo)
		}()
		go func() {
			defer wg.Done()
			if a, ok := s.Get(KindVideo); ok {
				assert.Len(t, a.Data, 4)
			}
		}()
	}
	wg.Wait()
}
