package speech

import "io"

// TranscribeRequest 语音识别请求
type TranscribeRequest struct {
	ConnectID  string
	Audio      io.Reader
	Format     string // wav, ogg, mp3 ...
	SampleRate int
	Language   string
}

// SynthesizeRequest 语音合成请求
type SynthesizeRequest struct {
	ConnectID string
	Text      string
	Voice     string
	Language  string
	Format    string
}
