package speech

// Transcription 语音识别结果
type Transcription struct {
	Text      string `json:"text"`
	Duration  int64  `json:"duration"` // milliseconds
	RequestID string `json:"requestId,omitempty"`
}

// Synthesis 语音合成结果
type Synthesis struct {
	Audio     []byte `json:"-"`
	Format    string `json:"format"`
	Duration  int64  `json:"duration"` // milliseconds
	RequestID string `json:"requestId,omitempty"`
}
