package speech

import "time"

// VolcengineConfig 火山引擎语音服务配置
type VolcengineConfig struct {
	AppID          string `json:"appId"`
	AccessToken    string `json:"accessToken"`
	APIKey         string `json:"apiKey,omitempty"` // 兼容旧配置
	ConcurrentMode bool   `json:"concurrentMode"`   // ASR并发版（false为小时版）

	ASRLanguage string `json:"asrLanguage"`

	TTSVoice    string  `json:"ttsVoice"`
	TTSSpeed    float32 `json:"ttsSpeed"`
	TTSVolume   float32 `json:"ttsVolume"`
	TTSLanguage string  `json:"ttsLanguage"`

	Timeout time.Duration `json:"timeout"`
}
