package audio

import (
	"errors"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrEmptyClip 音频内容为空
var ErrEmptyClip = errors.New("audio clip is empty")

// DefaultFormat is assumed when neither filename nor MIME type tells us the container.
const DefaultFormat = "wav"

// 裸PCM按 16-bit 单声道处理，缺省采样率 16kHz
const defaultPCMRate = 16000

// Clip 浏览器录制的一段音频
type Clip struct {
	Data       []byte
	Format     string // wav, mp3, webm, ...
	SampleRate int    // Hz, 0 when unknown
}

// NewClip builds a clip and fills in format details from the payload when
// the container is WAV.
func NewClip(data []byte, format string, sampleRate int) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, ErrEmptyClip
	}

	clip := Clip{
		Data:       data,
		Format:     normalizeFormat(format),
		SampleRate: sampleRate,
	}

	switch clip.Format {
	case "pcm":
		// 下游识别服务只认容器格式，裸PCM包一层WAV头
		if clip.SampleRate <= 0 {
			clip.SampleRate = defaultPCMRate
		}
		clip.Data = EncodeWAV(data, clip.SampleRate, 1, 16)
		clip.Format = "wav"
	case "wav", "":
		if info, err := InspectWAV(data); err == nil {
			if info.DataSize == 0 {
				return Clip{}, ErrEmptyClip
			}
			clip.Format = "wav"
			if clip.SampleRate <= 0 {
				clip.SampleRate = info.SampleRate
			}
		}
	}
	if clip.Format == "" {
		clip.Format = DefaultFormat
	}
	return clip, nil
}

// Digest is the dedup key of a capture: a content hash of the raw bytes.
func Digest(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Digest returns the dedup key of the clip.
func (c Clip) Digest() string {
	return Digest(c.Data)
}

// Empty reports whether the clip has no payload.
func (c Clip) Empty() bool {
	return len(c.Data) == 0
}

// InferFormat 从文件名或MIME类型推断音频格式
func InferFormat(filename, contentType string) string {
	if format := formatFromExt(filepath.Ext(filename)); format != "" {
		return format
	}

	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			switch mediaType {
			case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
				return "wav"
			case "audio/mpeg", "audio/mp3":
				return "mp3"
			case "audio/webm":
				return "webm"
			case "audio/ogg":
				return "ogg"
			case "audio/mp4", "audio/x-m4a":
				return "m4a"
			case "audio/aac":
				return "aac"
			case "audio/l16", "audio/pcm":
				return "pcm"
			}
		}
	}

	return DefaultFormat
}

// ContentType maps a format to the MIME type used when serving audio back.
func ContentType(format string) string {
	switch normalizeFormat(format) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	case "webm":
		return "audio/webm"
	case "pcm":
		return "audio/L16"
	case "":
		return "application/octet-stream"
	default:
		return "audio/" + normalizeFormat(format)
	}
}

func formatFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp3":
		return "mp3"
	case ".wav", ".wave":
		return "wav"
	case ".webm":
		return "webm"
	case ".ogg", ".oga":
		return "ogg"
	case ".m4a":
		return "m4a"
	case ".aac":
		return "aac"
	case ".pcm", ".raw":
		return "pcm"
	default:
		return ""
	}
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	return strings.TrimPrefix(format, ".")
}
