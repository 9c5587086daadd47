package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeslice はチャンクを発行する間隔
	DefaultTimeslice = time.Second

	// stopTimeout を過ぎてもffmpegが終わらなければ強制終了する
	stopTimeout = 10 * time.Second
)

// ffmpegRecorder はストリームのMJPEGフレームをffmpegでエンコードする
// エンコード結果は標準出力からタイムスライスごとにチャンクとして発行される
type ffmpegRecorder struct {
	stream     Stream
	format     Format
	timeslice  time.Duration
	events     RecorderEvents
	logger     *zap.Logger
	ffmpegPath string

	mu          sync.Mutex
	started     bool
	cmd         *exec.Cmd
	unsubscribe func()
	killTimer   *time.Timer
	stopOnce    sync.Once
}

// newFFmpegRecorder はffmpegが利用できない場合 ErrRecorderUnsupported を返す
func newFFmpegRecorder(stream Stream, format Format, timeslice time.Duration, events RecorderEvents, logger *zap.Logger) (*ffmpegRecorder, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpegが見つかりません: %v", ErrRecorderUnsupported, err)
	}
	if timeslice <= 0 {
		timeslice = DefaultTimeslice
	}

	return &ffmpegRecorder{
		stream:     stream,
		format:     format,
		timeslice:  timeslice,
		events:     events,
		logger:     logger.With(zap.String("stream_id", stream.ID()), zap.String("mime_type", format.MIMEType)),
		ffmpegPath: path,
	}, nil
}

// buildArgs はMJPEGを標準入力から読み、エンコード結果を標準出力へ書くffmpeg引数を組み立てる
func (r *ffmpegRecorder) buildArgs() []string {
	settings := r.stream.Settings()

	args := []string{
		"-loglevel", "error",
		"-f", "mjpeg",
		"-framerate", fmt.Sprintf("%d", settings.FPS),
		"-i", "pipe:0",
		"-an",
	}
	args = append(args, r.format.Args...)
	return append(args, "-f", r.format.Muxer, "pipe:1")
}

// Start はエンコードを開始する
func (r *ffmpegRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("レコーダーは既に開始されています")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// 録画はリクエストのコンテキストより長く続くため、Stop で明示的に終了させる
	cmd := exec.Command(r.ffmpegPath, r.buildArgs()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdinパイプの作成に失敗: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: ffmpegの起動に失敗: %v", ErrRecorderUnsupported, err)
	}

	frames, unsubscribe := r.stream.Subscribe()
	r.cmd = cmd
	r.unsubscribe = unsubscribe
	r.started = true

	go r.feed(frames, stdin)
	go r.run(stdout, &stderr)

	r.logger.Info("録画を開始しました", zap.Duration("timeslice", r.timeslice))
	return nil
}

// feed はフレームをffmpegの標準入力へ書き込む
// 購読が解除されると標準入力をクローズし、ffmpegに終了を促す
func (r *ffmpegRecorder) feed(frames <-chan []byte, stdin io.WriteCloser) {
	defer func() {
		_ = stdin.Close()
	}()

	broken := false
	for frame := range frames {
		if broken {
			continue // 購読が解除されるまで読み捨てる
		}
		if _, err := stdin.Write(frame); err != nil {
			r.logger.Warn("ffmpegへの書き込みに失敗", zap.Error(err))
			broken = true
		}
	}
}

// run はチャンクを発行し、ffmpegの終了後に OnStop を1回だけ呼ぶ
func (r *ffmpegRecorder) run(stdout io.Reader, stderr *bytes.Buffer) {
	pumpErr := pumpChunks(stdout, r.timeslice, r.emit)

	// ffmpegが自ら終了した場合も購読を解除する
	r.unsubscribe()

	waitErr := r.cmd.Wait()

	r.mu.Lock()
	if r.killTimer != nil {
		r.killTimer.Stop()
	}
	r.mu.Unlock()

	err := pumpErr
	if waitErr != nil {
		err = fmt.Errorf("ffmpegがエラーで終了: %w (stderr: %s)", waitErr, stderr.String())
	}

	if err != nil {
		r.logger.Warn("録画が異常終了しました", zap.Error(err))
	} else {
		r.logger.Info("録画を終了しました")
	}

	if r.events.OnStop != nil {
		r.events.OnStop(err)
	}
}

func (r *ffmpegRecorder) emit(chunk []byte) {
	if r.events.OnChunk != nil {
		r.events.OnChunk(chunk)
	}
}

// Stop は録画の終了を要求する
func (r *ffmpegRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return nil
	}

	r.stopOnce.Do(func() {
		r.logger.Info("録画を停止しています")
		r.unsubscribe()

		process := r.cmd.Process
		r.killTimer = time.AfterFunc(stopTimeout, func() {
			r.logger.Warn("ffmpegが時間内に終了しないため強制終了します")
			_ = process.Kill()
		})
	})
	return nil
}

func (r *ffmpegRecorder) MIMEType() string  { return r.format.MIMEType }
func (r *ffmpegRecorder) Extension() string { return r.format.Extension }

// pumpChunks はrから読んだバイト列をタイムスライスごとにまとめてemitに渡す
// EOFに達すると残りを最後のチャンクとして発行する（空の場合もある）
func pumpChunks(r io.Reader, timeslice time.Duration, emit func([]byte)) error {
	type readResult struct {
		data []byte
		err  error
	}

	reads := make(chan readResult)
	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				reads <- readResult{data: data}
			}
			if err != nil {
				reads <- readResult{err: err}
				return
			}
		}
	}()

	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	pending := []byte{}
	for {
		select {
		case <-ticker.C:
			emit(pending)
			pending = []byte{}

		case res := <-reads:
			if res.err != nil {
				emit(pending)
				if errors.Is(res.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("エンコード結果の読み取りに失敗: %w", res.err)
			}
			pending = append(pending, res.data...)
		}
	}
}
