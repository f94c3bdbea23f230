package speech

import (
	"context"
	"encoding/binary"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/audio"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/fault"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func recognizeResult(texts ...string) *speechpb.RecognizeResponse {
	resp := &speechpb.RecognizeResponse{}
	for _, text := range texts {
		resp.Results = append(resp.Results, &speechpb.SpeechRecognitionResult{
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text, Confidence: 0.9}},
		})
	}
	return resp
}

func TestGoogleTranscriberBuildsRequest(t *testing.T) {
	var got *speechpb.RecognizeRequest
	transcriber := newGoogleTranscriber(func(_ context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		got = req
		return recognizeResult("سلام", "آپ کیسے ہیں"), nil
	}, "ur")

	capture := stagedWAV(t, 640)
	text, err := transcriber.Transcribe(context.Background(), capture)
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if text != "سلام آپ کیسے ہیں" {
		t.Fatalf("unexpected text %q", text)
	}

	cfg := got.GetConfig()
	if cfg.GetLanguageCode() != "ur-PK" {
		t.Fatalf("unexpected language %q", cfg.GetLanguageCode())
	}
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 || cfg.GetSampleRateHertz() != 16000 {
		t.Fatalf("unexpected encoding %v/%d", cfg.GetEncoding(), cfg.GetSampleRateHertz())
	}
	if len(got.GetAudio().GetContent()) != len(capture.Clip.Data) {
		t.Fatalf("expected staged file content to be sent")
	}
}

func TestGoogleEncodingLeavesCompressedWAVToServer(t *testing.T) {
	wav := audio.EncodeWAV(make([]byte, 320), 8000, 1, 8)
	if got := googleEncoding("wav", wav); got != speechpb.RecognitionConfig_LINEAR16 {
		t.Fatalf("expected LINEAR16 for PCM wav, got %v", got)
	}

	mulaw := append([]byte(nil), wav...)
	binary.LittleEndian.PutUint16(mulaw[20:22], 7) // WAVE_FORMAT_MULAW
	if got := googleEncoding("wav", mulaw); got != speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		t.Fatalf("expected unspecified encoding for mu-law wav, got %v", got)
	}
	if got := googleEncoding("webm", nil); got != speechpb.RecognitionConfig_WEBM_OPUS {
		t.Fatalf("unexpected webm encoding %v", got)
	}
}

func TestGoogleTranscriberFailures(t *testing.T) {
	tests := []struct {
		name string
		resp *speechpb.RecognizeResponse
		err  error
		want fault.Kind
	}{
		{name: "no results", resp: &speechpb.RecognizeResponse{}, want: fault.Unintelligible},
		{name: "blank alternative", resp: recognizeResult("  "), want: fault.Unintelligible},
		{name: "unavailable", err: status.Error(codes.Unavailable, "connection refused"), want: fault.TranscriberUnavailable},
		{name: "deadline", err: status.Error(codes.DeadlineExceeded, "timeout"), want: fault.TranscriberUnavailable},
		{name: "permission", err: status.Error(codes.PermissionDenied, "billing disabled"), want: fault.TranscriberUnavailable},
		{name: "bad audio", err: status.Error(codes.InvalidArgument, "sample rate mismatch"), want: fault.Unintelligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transcriber := newGoogleTranscriber(func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
				return tt.resp, tt.err
			}, "ur")

			_, err := transcriber.Transcribe(context.Background(), stagedWAV(t, 320))
			if got := fault.KindOf(err); got != tt.want {
				t.Fatalf("got %s want %s (err=%v)", got, tt.want, err)
			}
		})
	}
}

func TestGoogleLanguage(t *testing.T) {
	cases := map[string]string{"": "ur-PK", "ur": "ur-PK", "UR": "ur-PK", "en": "en-US", "ur-IN": "ur-IN"}
	for in, want := range cases {
		if got := googleLanguage(in); got != want {
			t.Errorf("googleLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
