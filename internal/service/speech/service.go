package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/audio"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/config"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/fault"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/urdu-voicebot/backend/internal/model/speech"
)

// Transcriber turns a staged capture into text.
type Transcriber interface {
	Transcribe(ctx context.Context, capture *audio.Staged) (string, error)
}

// Synthesizer turns reply text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (chat.Audio, error)
}

// Service 语音服务，组合识别与合成后端
type Service struct {
	transcriber Transcriber
	synthesizer Synthesizer
	closers     []func() error
}

// NewService 按配置选择识别后端，合成固定使用火山引擎。
// Google 客户端无法创建时与未配置 Ark 一样降级：服务照常启动，
// 每轮识别返回 TranscriberUnavailable。
func NewService(ctx context.Context, speechCfg config.SpeechConfig, googleCfg config.GoogleConfig) *Service {
	volc := VolcengineConfigFrom(speechCfg)

	var (
		transcriber Transcriber
		closers     []func() error
	)
	switch speechCfg.Transcriber {
	case config.TranscriberVolcengine:
		transcriber = NewVolcengineTranscriber(volc)
	default:
		google, err := NewGoogleTranscriber(ctx, GoogleOptions{
			CredentialsFile: googleCfg.CredentialsFile,
			Language:        googleCfg.Language,
		})
		if err != nil {
			logging.Component("speech").Warn("Google 语音识别不可用，识别请求将返回服务不可用提示", zap.Error(err))
			transcriber = Unavailable{Err: err}
			break
		}
		transcriber = google
		closers = append(closers, google.Close)
	}

	s := NewServiceWith(transcriber, NewVolcengineSynthesizer(volc))
	s.closers = closers
	return s
}

// NewServiceWith wires explicit backends.
func NewServiceWith(t Transcriber, s Synthesizer) *Service {
	return &Service{transcriber: t, synthesizer: s}
}

// Unavailable 识别后端初始化失败时的占位实现
type Unavailable struct {
	Err error
}

func (u Unavailable) Transcribe(context.Context, *audio.Staged) (string, error) {
	err := u.Err
	if err == nil {
		err = errors.New("transcriber is not configured")
	}
	return "", fault.Wrap(fault.TranscriberUnavailable, "speech.transcribe", err)
}

// VolcengineConfigFrom maps service configuration onto the client config.
func VolcengineConfigFrom(cfg config.SpeechConfig) *speechmodel.VolcengineConfig {
	return &speechmodel.VolcengineConfig{
		AppID:       cfg.AppID,
		AccessToken: cfg.AccessToken,
		APIKey:      cfg.APIKey,
		ASRLanguage: cfg.ASRLanguage,
		TTSVoice:    cfg.TTSVoice,
		TTSSpeed:    cfg.TTSSpeed,
		TTSVolume:   cfg.TTSVolume,
		TTSLanguage: cfg.TTSLanguage,
		Timeout:     cfg.Timeout,
	}
}

func (s *Service) Transcribe(ctx context.Context, capture *audio.Staged) (string, error) {
	return s.transcriber.Transcribe(ctx, capture)
}

func (s *Service) Synthesize(ctx context.Context, text string) (chat.Audio, error) {
	return s.synthesizer.Synthesize(ctx, text)
}

// Close 释放底层客户端
func (s *Service) Close() error {
	var result *multierror.Error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// VolcengineTranscriber 把暂存音频流式发送给火山引擎ASR
type VolcengineTranscriber struct {
	client *VolcengineASRClient
	config *speechmodel.VolcengineConfig
}

func NewVolcengineTranscriber(cfg *speechmodel.VolcengineConfig) *VolcengineTranscriber {
	return &VolcengineTranscriber{client: NewVolcengineASRClient(cfg), config: cfg}
}

func (v *VolcengineTranscriber) Transcribe(ctx context.Context, capture *audio.Staged) (string, error) {
	const op = "volcengine.asr"
	if capture == nil {
		return "", fault.Wrap(fault.Unexpected, op, audio.ErrEmptyClip)
	}

	f, err := capture.Open()
	if err != nil {
		return "", fault.Wrap(fault.Unexpected, op, fmt.Errorf("open staged audio: %w", err))
	}
	defer f.Close()

	ctx, cancel := withTimeout(ctx, v.config)
	defer cancel()

	result, err := v.client.Transcribe(ctx, &speechmodel.TranscribeRequest{
		Audio:      f,
		Format:     capture.Clip.Format,
		SampleRate: capture.Clip.SampleRate,
	})
	if err != nil {
		return "", fault.FromProvider(op, err, fault.TranscriberUnavailable)
	}
	if result.Text == "" {
		return "", fault.New(fault.Unintelligible, op)
	}
	return result.Text, nil
}

// VolcengineSynthesizer 火山引擎TTS，空文本不发请求
type VolcengineSynthesizer struct {
	client *VolcengineTTSClient
	config *speechmodel.VolcengineConfig
}

func NewVolcengineSynthesizer(cfg *speechmodel.VolcengineConfig) *VolcengineSynthesizer {
	return &VolcengineSynthesizer{client: NewVolcengineTTSClient(cfg), config: cfg}
}

func (v *VolcengineSynthesizer) Synthesize(ctx context.Context, text string) (chat.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Audio{}, nil
	}

	ctx, cancel := withTimeout(ctx, v.config)
	defer cancel()

	result, err := v.client.Synthesize(ctx, &speechmodel.SynthesizeRequest{Text: text})
	if err != nil {
		return chat.Audio{}, fault.FromProvider("volcengine.tts", err, fault.SynthesisFailed)
	}
	return chat.Audio{Data: result.Audio, Format: result.Format}, nil
}

func withTimeout(ctx context.Context, cfg *speechmodel.VolcengineConfig) (context.Context, context.CancelFunc) {
	if cfg == nil || cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.Timeout)
}
