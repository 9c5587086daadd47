package camera

import (
	"fmt"
	"strings"
)

// DefaultMIMEType は指定がない場合の録画フォーマット
const DefaultMIMEType = "video/webm"

// Format は録画コンテナとエンコーダーの組み合わせ
type Format struct {
	MIMEType  string   // 成果物のMIMEタイプ
	Extension string   // ファイル拡張子
	Muxer     string   // ffmpegの出力フォーマット
	Args      []string // エンコーダー引数
}

var (
	vp8Args = []string{"-c:v", "libvpx", "-b:v", "1M", "-deadline", "realtime", "-cpu-used", "8"}
	vp9Args = []string{"-c:v", "libvpx-vp9", "-b:v", "1M", "-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1"}
)

var supportedFormats = map[string]Format{
	"video/webm": {
		MIMEType: "video/webm", Extension: "webm", Muxer: "webm", Args: vp8Args,
	},
	"video/webm;codecs=vp8": {
		MIMEType: "video/webm", Extension: "webm", Muxer: "webm", Args: vp8Args,
	},
	"video/webm;codecs=vp9": {
		MIMEType: "video/webm", Extension: "webm", Muxer: "webm", Args: vp9Args,
	},
	"video/x-matroska": {
		MIMEType: "video/x-matroska", Extension: "mkv", Muxer: "matroska",
		Args: []string{"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p"},
	},
}

// LookupFormat はMIMEタイプのヒントから録画フォーマットを決定する
func LookupFormat(hint string) (Format, error) {
	key := normalizeMIME(hint)
	if key == "" {
		key = DefaultMIMEType
	}

	format, ok := supportedFormats[key]
	if !ok {
		return Format{}, fmt.Errorf("%w: %s", ErrRecorderUnsupported, hint)
	}
	return format, nil
}

// normalizeMIME は大文字小文字・空白・引用符の違いを吸収する
func normalizeMIME(hint string) string {
	hint = strings.ToLower(hint)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '"':
			return -1
		}
		return r
	}, hint)
}
