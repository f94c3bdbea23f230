package speech

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/config"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/fault"
)

func TestNewServiceDegradesWhenGoogleClientFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing-credentials.json")
	svc := NewService(context.Background(),
		config.SpeechConfig{Transcriber: config.TranscriberGoogle},
		config.GoogleConfig{CredentialsFile: missing, Language: "ur"})
	defer svc.Close()

	if _, ok := svc.transcriber.(Unavailable); !ok {
		t.Fatalf("expected Unavailable transcriber, got %T", svc.transcriber)
	}

	_, err := svc.Transcribe(context.Background(), stagedWAV(t, 320))
	if fault.KindOf(err) != fault.TranscriberUnavailable {
		t.Fatalf("expected transcriber unavailable, got %v", err)
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("no default credentials")
	_, err := Unavailable{Err: cause}.Transcribe(context.Background(), nil)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped, got %v", err)
	}

	_, err = Unavailable{}.Transcribe(context.Background(), nil)
	if fault.KindOf(err) != fault.TranscriberUnavailable || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNewServiceWithVolcengineTranscriber(t *testing.T) {
	svc := NewService(context.Background(),
		config.SpeechConfig{Transcriber: config.TranscriberVolcengine},
		config.GoogleConfig{})
	if _, ok := svc.transcriber.(*VolcengineTranscriber); !ok {
		t.Fatalf("expected volcengine transcriber, got %T", svc.transcriber)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close err: %v", err)
	}
}
