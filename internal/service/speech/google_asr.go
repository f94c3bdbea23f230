package speech

import (
	"context"
	"fmt"
	"io"
	"strings"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/audio"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/fault"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"
)

// recognizeFunc 抽象 Google Recognize 调用，测试中替换
type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleTranscriber 使用 Google Cloud Speech 同步识别
type GoogleTranscriber struct {
	recognize recognizeFunc
	closer    io.Closer
	language  string
	log       *zap.Logger
}

// GoogleOptions Google识别参数
type GoogleOptions struct {
	CredentialsFile string
	Language        string
}

// NewGoogleTranscriber creates a Speech client. Without a credentials file it
// relies on Application Default Credentials.
func NewGoogleTranscriber(ctx context.Context, opts GoogleOptions) (*GoogleTranscriber, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := gspeech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	t := newGoogleTranscriber(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	}, opts.Language)
	t.closer = client
	return t, nil
}

func newGoogleTranscriber(fn recognizeFunc, language string) *GoogleTranscriber {
	return &GoogleTranscriber{
		recognize: fn,
		language:  googleLanguage(language),
		log:       logging.Component("google_asr"),
	}
}

// Transcribe reads the staged capture and returns the best alternative.
// No result means the speech was not understood.
func (g *GoogleTranscriber) Transcribe(ctx context.Context, capture *audio.Staged) (string, error) {
	const op = "google.recognize"

	content, err := readStaged(capture)
	if err != nil {
		return "", fault.Wrap(fault.Unexpected, op, err)
	}

	resp, err := g.recognize(ctx, &speechpb.RecognizeRequest{
		Config: g.recognitionConfig(capture.Clip, content),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		g.log.Warn("recognize failed", zap.String("grpc_code", status.Code(err).String()), zap.Error(err))
		return "", fault.FromProvider(op, err, fault.TranscriberUnavailable)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fault.New(fault.Unintelligible, op)
	}

	text := strings.Join(parts, " ")
	g.log.Debug("transcribed", zap.Int("results", len(parts)), zap.Int("length", len(text)))
	return text, nil
}

func (g *GoogleTranscriber) recognitionConfig(clip audio.Clip, content []byte) *speechpb.RecognitionConfig {
	cfg := &speechpb.RecognitionConfig{
		Encoding:                   googleEncoding(clip.Format, content),
		LanguageCode:               g.language,
		EnableAutomaticPunctuation: true,
	}
	if clip.SampleRate > 0 {
		cfg.SampleRateHertz = int32(clip.SampleRate)
	}
	return cfg
}

func (g *GoogleTranscriber) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer.Close()
}

// googleLanguage 短语言码补全地区，ur -> ur-PK
func googleLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	switch strings.ToLower(lang) {
	case "", "ur":
		return "ur-PK"
	case "en":
		return "en-US"
	case "zh":
		return "zh-CN"
	default:
		return lang
	}
}

func googleEncoding(format string, content []byte) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(format) {
	case "wav":
		// 非PCM的WAV(如 mu-law)交给服务端按头部识别
		if info, err := audio.InspectWAV(content); err == nil && !info.PCM() {
			return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
		}
		return speechpb.RecognitionConfig_LINEAR16
	case "flac":
		return speechpb.RecognitionConfig_FLAC
	case "ogg", "opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func readStaged(capture *audio.Staged) ([]byte, error) {
	if capture == nil {
		return nil, audio.ErrEmptyClip
	}
	f, err := capture.Open()
	if err != nil {
		return nil, fmt.Errorf("open staged audio: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read staged audio: %w", err)
	}
	if len(data) == 0 {
		return nil, audio.ErrEmptyClip
	}
	return data, nil
}
