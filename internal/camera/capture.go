package camera

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// V4L2Capturer はffmpegを使ってV4L2デバイスから画像を取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, settings Settings) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      settings.Width,
		height:     settings.Height,
		fps:        settings.FPS,
	}
}

// CaptureFrameAsJPEG は1フレームをキャプチャしてJPEGバイト配列として返す
func (c *V4L2Capturer) CaptureFrameAsJPEG(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-i", c.devicePath,
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "2", // 高品質JPEG
		"-",
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("JPEGフレームキャプチャに失敗: %w (stderr: %s)", err, stderr.String())
	}

	return stdout.Bytes(), nil
}

// TestCapture はデバイステスト用の簡単なキャプチャ
func (c *V4L2Capturer) TestCapture(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.CaptureFrameAsJPEG(testCtx)
	return err
}

// StartStream は連続キャプチャを開始する
// ffmpegが終了するとframeChanはクローズされる
func (c *V4L2Capturer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		errorChan <- fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
		close(frameChan)
		return
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		errorChan <- fmt.Errorf("ffmpegの起動に失敗: %w", err)
		close(frameChan)
		return
	}

	go func() {
		defer close(frameChan)
		defer func() {
			_ = cmd.Wait() // コンテキストキャンセル時のエラーは無視
		}()

		if err := splitJPEGFrames(ctx, stdout, frameChan); err != nil {
			select {
			case errorChan <- err:
			default:
			}
		}
	}()
}

// splitJPEGFrames はMJPEGの連続バイト列をSOI/EOIマーカーでフレームに分割する
func splitJPEGFrames(ctx context.Context, r io.Reader, frameChan chan<- []byte) error {
	buffer := make([]byte, 1024*1024) // 1MBバッファ
	frameBuffer := bytes.Buffer{}

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			frameBuffer.Write(buffer[:n])

			for {
				data := frameBuffer.Bytes()

				startIdx := bytes.Index(data, jpegSOI)
				if startIdx == -1 {
					// SOIが来るまでのゴミは捨てる（末尾の0xFFだけ残す）
					if len(data) > 0 && data[len(data)-1] == 0xFF {
						frameBuffer.Reset()
						frameBuffer.WriteByte(0xFF)
					} else {
						frameBuffer.Reset()
					}
					break
				}

				endIdx := bytes.Index(data[startIdx+2:], jpegEOI)
				if endIdx == -1 {
					// 完全なフレームがまだない
					if startIdx > 0 {
						rest := append([]byte(nil), data[startIdx:]...)
						frameBuffer.Reset()
						frameBuffer.Write(rest)
					}
					break
				}

				endIdx += startIdx + 2 + len(jpegEOI)
				frame := make([]byte, endIdx-startIdx)
				copy(frame, data[startIdx:endIdx])

				select {
				case frameChan <- frame:
				case <-ctx.Done():
					return nil
				}

				// 処理済みデータを削除
				rest := append([]byte(nil), data[endIdx:]...)
				frameBuffer.Reset()
				frameBuffer.Write(rest)
			}
		}

		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("フレーム読み取りエラー: %w", err)
		}
	}
}
