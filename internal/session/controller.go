package session

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"camstudio/internal/artifact"
	"camstudio/internal/camera"
	"camstudio/internal/logger"
)

const (
	photoFilename = "photo.png"
	photoMIMEType = "image/png"
	tickInterval  = time.Second
)

// Options はControllerの設定
type Options struct {
	MIMEType string      // 録画フォーマットのヒント（空なら既定）
	Clock    Clock       // nilなら実時間
	Logger   *zap.Logger // nilなら出力しない
}

// recording は1回分の録画セッション
// 停止後も確定（settle）するまでは Controller が保持する
type recording struct {
	id         string
	stream     camera.Stream
	recorder   camera.Recorder
	chunks     [][]byte
	ticker     *Ticker
	finalizing bool
	stopWatch  chan struct{}
}

// Controller は録画セッションのライフサイクルと成果物を管理する
type Controller struct {
	adapter  camera.Adapter
	store    *artifact.Store
	mimeType string
	clock    Clock
	logger   *zap.Logger

	mu          sync.Mutex
	state       State
	elapsed     int
	session     *recording // 録画中または確定待ちのセッション
	settled     chan struct{}
	lastOutcome Outcome
	lastErr     string

	listenerMu   sync.Mutex
	listeners    map[int]func(Status)
	nextListener int
}

// NewController は新しいControllerを作成する
func NewController(adapter camera.Adapter, store *artifact.Store, opts Options) *Controller {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}

	settled := make(chan struct{})
	close(settled)

	return &Controller{
		adapter:   adapter,
		store:     store,
		mimeType:  opts.MIMEType,
		clock:     clock,
		logger:    logger.OrNop(opts.Logger).Named("session"),
		settled:   settled,
		listeners: make(map[int]func(Status)),
	}
}

// StartSession は新しい録画セッションを開始する
func (c *Controller) StartSession(ctx context.Context, stream camera.Stream) error {
	if stream == nil || isClosed(stream.Done()) {
		return camera.ErrNoStreamAvailable
	}

	// レコーダーの生成と開始の間もロックを保持する
	// Start 直後に届く OnChunk / OnStop をセッションの登録後に処理させるため
	c.mu.Lock()

	if c.state == StateRecording {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	if c.session != nil {
		c.mu.Unlock()
		return ErrFinalizing
	}

	rec := &recording{
		id:        uuid.NewString(),
		stream:    stream,
		stopWatch: make(chan struct{}),
	}

	// イベントはセッションに束縛する。古いレコーダーからの通知は無視される
	recorder, err := c.adapter.NewRecorder(stream, c.mimeType, camera.RecorderEvents{
		OnChunk: func(chunk []byte) { c.onChunkReceived(rec, chunk) },
		OnStop:  func(err error) { c.onSessionSettled(rec, err) },
	})
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("レコーダーの作成に失敗: %w", err)
	}

	if err := recorder.Start(ctx); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("録画の開始に失敗: %w", err)
	}

	// 前回の動画は新しいセッションの開始で手放す
	c.store.Release(artifact.KindVideo)

	rec.recorder = recorder
	rec.ticker = NewTicker(c.clock, tickInterval)

	c.session = rec
	c.state = StateRecording
	c.elapsed = 0
	c.lastOutcome = OutcomeNone
	c.lastErr = ""
	c.settled = make(chan struct{})

	rec.ticker.Start(func() { c.onTick(rec) })
	go c.watchStream(rec, stream.Done())

	c.mu.Unlock()

	c.logger.Info("録画を開始しました",
		zap.String("session_id", rec.id),
		zap.String("stream_id", stream.ID()),
		zap.String("mime_type", recorder.MIMEType()),
	)
	c.notify()
	return nil
}

// StopSession は録画を停止する。録画中でなければ何もしない
// 動画は後でレコーダーが終了を通知した時点で作成される
func (c *Controller) StopSession() error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil
	}
	rec := c.session
	c.endRecordingLocked(rec)
	c.mu.Unlock()

	c.logger.Info("録画を停止しました",
		zap.String("session_id", rec.id),
		zap.Int("elapsed_seconds", c.Elapsed()),
	)
	c.notify()

	if err := rec.recorder.Stop(); err != nil {
		// 終了通知が来ないため、ここで確定させる
		c.onSessionSettled(rec, err)
		return fmt.Errorf("レコーダーの停止に失敗: %w", err)
	}
	return nil
}

// endRecordingLocked は Recording から確定待ちへ移る。c.mu を保持して呼ぶこと
func (c *Controller) endRecordingLocked(rec *recording) {
	c.state = StateIdle
	rec.finalizing = true
	rec.ticker.Stop()
	close(rec.stopWatch)
}

// watchStream はセッション中にストリームが途切れたら録画を止める
// 確定時に rec.stream は消されるため、終了チャンネルは開始時に受け取る
func (c *Controller) watchStream(rec *recording, streamDone <-chan struct{}) {
	select {
	case <-rec.stopWatch:
		return
	case <-streamDone:
	}

	c.mu.Lock()
	if c.session != rec || c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.endRecordingLocked(rec)
	c.mu.Unlock()

	c.logger.Warn("ストリームが終了したため録画を停止します", zap.String("session_id", rec.id))
	c.notify()

	if err := rec.recorder.Stop(); err != nil {
		c.onSessionSettled(rec, err)
	}
}

func (c *Controller) onTick(rec *recording) {
	c.mu.Lock()
	if c.session != rec || c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.elapsed++
	c.mu.Unlock()

	c.notify()
}

// onChunkReceived はレコーダーからのチャンクを蓄積する
// 空のチャンクは捨てる
func (c *Controller) onChunkReceived(rec *recording, chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != rec {
		c.logger.Debug("終了したセッションのチャンクを破棄します", zap.String("session_id", rec.id))
		return
	}
	if len(chunk) == 0 {
		return
	}

	data := make([]byte, len(chunk))
	copy(data, chunk)
	rec.chunks = append(rec.chunks, data)
}

// onSessionSettled はレコーダーの終了後に1回だけ呼ばれ、チャンクを動画にまとめる
func (c *Controller) onSessionSettled(rec *recording, recErr error) {
	c.mu.Lock()
	if c.session != rec {
		c.mu.Unlock()
		return
	}

	// レコーダーが自ら終了した場合
	if !rec.finalizing {
		c.endRecordingLocked(rec)
	}

	var video *artifact.Info
	switch {
	case len(rec.chunks) > 0:
		data := bytes.Join(rec.chunks, nil)
		filename := "video." + rec.recorder.Extension()
		info := c.store.Put(artifact.KindVideo, data, filename, rec.recorder.MIMEType())
		video = &info
		c.lastOutcome = OutcomeSaved
	case recErr != nil:
		c.lastOutcome = OutcomeFailed
	default:
		c.lastOutcome = OutcomeEmpty
	}

	c.lastErr = ""
	if recErr != nil {
		c.lastErr = recErr.Error()
	}

	rec.chunks = nil
	rec.stream = nil
	c.session = nil
	close(c.settled)
	outcome := c.lastOutcome
	c.mu.Unlock()

	fields := []zap.Field{
		zap.String("session_id", rec.id),
		zap.String("outcome", string(outcome)),
	}
	if video != nil {
		fields = append(fields, zap.Int("size", video.Size), zap.String("filename", video.Filename))
	}
	if recErr != nil {
		c.logger.Warn("録画が確定しました（レコーダーエラーあり）", append(fields, zap.Error(recErr))...)
	} else {
		c.logger.Info("録画が確定しました", fields...)
	}

	c.notify()
}

// CapturePhoto はストリームから静止画を撮影して保存する
// 録画状態には影響しない
func (c *Controller) CapturePhoto(ctx context.Context, stream camera.Stream) error {
	if stream == nil || isClosed(stream.Done()) {
		return camera.ErrNoStreamAvailable
	}

	data, err := c.adapter.Snapshot(ctx, stream)
	if err != nil {
		return fmt.Errorf("静止画の取得に失敗: %w", err)
	}

	photo := c.store.Put(artifact.KindPhoto, data, photoFilename, photoMIMEType)
	c.logger.Info("写真を撮影しました", zap.String("artifact_id", photo.ID), zap.Int("size", photo.Size))

	c.notify()
	return nil
}

// State は現在の録画状態を返す
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Elapsed は経過秒数を返す。停止後は次の開始まで最後の値を保つ
func (c *Controller) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Photo は現在の写真を返す
func (c *Controller) Photo() (*artifact.Artifact, bool) {
	return c.store.Get(artifact.KindPhoto)
}

// Video は現在の動画を返す
func (c *Controller) Video() (*artifact.Artifact, bool) {
	return c.store.Get(artifact.KindVideo)
}

// Status は画面表示用の状態を返す
func (c *Controller) Status() Status {
	c.mu.Lock()
	status := Status{
		State:          c.state.String(),
		ElapsedSeconds: c.elapsed,
		Elapsed:        FormatElapsed(c.elapsed),
		Finalizing:     c.session != nil && c.session.finalizing,
		LastOutcome:    c.lastOutcome,
		LastError:      c.lastErr,
	}
	c.mu.Unlock()

	if info, ok := c.store.Info(artifact.KindPhoto); ok {
		status.Photo = &info
	}
	if info, ok := c.store.Info(artifact.KindVideo); ok {
		status.Video = &info
	}
	return status
}

// Subscribe は状態変化の通知先を登録する。返された関数で解除する
func (c *Controller) Subscribe(fn func(Status)) func() {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn

	return func() {
		c.listenerMu.Lock()
		defer c.listenerMu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Controller) notify() {
	c.listenerMu.Lock()
	fns := make([]func(Status), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenerMu.Unlock()

	if len(fns) == 0 {
		return
	}

	status := c.Status()
	for _, fn := range fns {
		fn(status)
	}
}

// WaitSettled は確定待ちのセッションがなくなるまで待つ
func (c *Controller) WaitSettled(ctx context.Context) error {
	c.mu.Lock()
	settled := c.settled
	c.mu.Unlock()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close は録画中なら停止して確定を待ち、全ての成果物を解放する
func (c *Controller) Close(ctx context.Context) error {
	if err := c.StopSession(); err != nil {
		c.logger.Warn("終了時の録画停止に失敗", zap.Error(err))
	}

	err := c.WaitSettled(ctx)
	c.store.ReleaseAll()
	return err
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
