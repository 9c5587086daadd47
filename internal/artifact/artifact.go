// Package artifact は撮影した写真と録画した動画を保持する
//
// # 仕様
//   - 種類（写真・動画）ごとに最大1つだけ保持する
//   - 同じ種類を新しく保存すると古いものは解放される
//   - 永続化はしない（プロセスが終われば消える）
package artifact

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind は成果物の種類
type Kind string

const (
	KindPhoto Kind = "photo" // 静止画
	KindVideo Kind = "video" // 録画クリップ
)

// Artifact はダウンロード可能な成果物
type Artifact struct {
	ID        uuid.UUID
	Kind      Kind
	Filename  string // ダウンロード時の推奨ファイル名
	MIMEType  string
	Data      []byte
	CreatedAt time.Time
}

// Info はバイト列を含まない成果物のメタデータ
type Info struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Filename  string    `json:"filename"`
	MIMEType  string    `json:"mime_type"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Info はメタデータを返す
func (a *Artifact) Info() Info {
	return Info{
		ID:        a.ID.String(),
		Kind:      a.Kind,
		Filename:  a.Filename,
		MIMEType:  a.MIMEType,
		Size:      len(a.Data),
		CreatedAt: a.CreatedAt,
	}
}

// Store は種類ごとに1つの成果物を所有する
type Store struct {
	mu    sync.RWMutex
	items map[Kind]*Artifact

	// OnRelease は成果物が解放されたときに呼ばれる（ロック外）
	OnRelease func(Info)
}

// NewStore は空のStoreを作成する
func NewStore() *Store {
	return &Store{
		items: make(map[Kind]*Artifact),
	}
}

// Put は成果物を保存し、同じ種類の古い成果物を解放する
// 保存した成果物はすぐに別のゴルーチンから解放されうるため、メタデータだけを返す
func (s *Store) Put(kind Kind, data []byte, filename, mimeType string) Info {
	a := &Artifact{
		ID:        uuid.New(),
		Kind:      kind,
		Filename:  filename,
		MIMEType:  mimeType,
		Data:      data,
		CreatedAt: time.Now(),
	}

	info := a.Info()

	s.mu.Lock()
	old := s.items[kind]
	s.items[kind] = a
	s.mu.Unlock()

	if old != nil {
		s.release(old)
	}

	return info
}

// Get は指定した種類の成果物のコピーを返す
// バイト列は共有するが、保存後に書き換えられることはない
func (s *Store) Get(kind Kind) (*Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.items[kind]
	if !ok {
		return nil, false
	}

	result := *a
	return &result, true
}

// Info は指定した種類の成果物のメタデータを返す
func (s *Store) Info(kind Kind) (Info, bool) {
	a, ok := s.Get(kind)
	if !ok {
		return Info{}, false
	}
	return a.Info(), true
}

// Release は指定した種類の成果物を解放する
func (s *Store) Release(kind Kind) bool {
	s.mu.Lock()
	old, ok := s.items[kind]
	delete(s.items, kind)
	s.mu.Unlock()

	if ok {
		s.release(old)
	}
	return ok
}

// ReleaseAll は全ての成果物を解放する
func (s *Store) ReleaseAll() {
	s.mu.Lock()
	olds := make([]*Artifact, 0, len(s.items))
	for _, a := range s.items {
		olds = append(olds, a)
	}
	s.items = make(map[Kind]*Artifact)
	s.mu.Unlock()

	for _, a := range olds {
		s.release(a)
	}
}

// release はバイト列を手放して通知する
// aはStoreから外した後なので、Getが返したコピーとは共有しない
func (s *Store) release(a *Artifact) {
	info := a.Info()
	a.Data = nil

	if s.OnRelease != nil {
		s.OnRelease(info)
	}
}
