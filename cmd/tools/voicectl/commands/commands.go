package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/audio"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/config"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/ai"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/speech"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/turn"
)

var (
	// Access these variables only from a main package:

	Root = &cobra.Command{
		Use:          "voicectl",
		Short:        "手动调试语音识别、合成与完整轮次",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Init(logging.Config{Level: LogLevel, Format: "console"})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	ASR = &cobra.Command{
		Use:   "asr <audio-file>",
		Short: "识别一段录音",
		Args:  cobra.ExactArgs(1),
		RunE:  runASR,
	}

	TTS = &cobra.Command{
		Use:   "tts <text>",
		Short: "合成一段文本",
		Args:  cobra.ExactArgs(1),
		RunE:  runTTS,
	}

	Turn = &cobra.Command{
		Use:   "turn <audio-file>...",
		Short: "按顺序把录音作为同一会话的多轮对话处理",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTurn,
	}

	LogLevel = "warn"
	Timeout  = 45 * time.Second
	OutPath  string
	OutDir   string
)

func init() {
	Root.AddCommand(ASR)
	Root.AddCommand(TTS)
	Root.AddCommand(Turn)

	Root.PersistentFlags().StringVar(&LogLevel, "log-level", LogLevel, "debug, info, warn, error")
	Root.PersistentFlags().DurationVar(&Timeout, "timeout", Timeout, "request timeout")
	TTS.Flags().StringVarP(&OutPath, "out", "o", "", "output file (default reply.<format>)")
	Turn.Flags().StringVar(&OutDir, "out-dir", "", "directory for synthesized replies (skip when empty)")
}

func loadSpeech(ctx context.Context) (*config.Config, *speech.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("配置加载失败: %w", err)
	}
	return cfg, speech.NewService(ctx, cfg.Speech, cfg.Google), nil
}

func readClip(path string) (audio.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return audio.Clip{}, err
	}
	return audio.NewClip(data, audio.InferFormat(path, ""), 0)
}

func runASR(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), Timeout)
	defer cancel()

	cfg, svc, err := loadSpeech(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	clip, err := readClip(args[0])
	if err != nil {
		return err
	}
	staged, err := audio.Stage(cfg.Chat.TempDir, clip)
	if err != nil {
		return err
	}
	defer staged.Release()

	start := time.Now()
	text, err := svc.Transcribe(ctx, staged)
	if err != nil {
		return err
	}
	logging.Component("voicectl").Info("transcribed",
		zap.String("transcriber", cfg.Speech.Transcriber),
		zap.Duration("elapsed", time.Since(start)),
	)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

func runTTS(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), Timeout)
	defer cancel()

	_, svc, err := loadSpeech(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	out, err := svc.Synthesize(ctx, args[0])
	if err != nil {
		return err
	}
	if out.Empty() {
		return fmt.Errorf("合成结果为空，请检查 SPEECH_* 配置")
	}

	path := OutPath
	if path == "" {
		path = "reply." + out.Format
	}
	if err := os.WriteFile(path, out.Data, 0o644); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", path, len(out.Data))
	return err
}

func runTurn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, svc, err := loadSpeech(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	var completer turn.Completer = ai.Unconfigured{}
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			return err
		}
		completer = aiSvc
	}

	manager := turn.NewManager(svc, completer, svc, turn.Config{
		FailurePolicy: cfg.Chat.FailurePolicy,
		HistoryLimit:  cfg.Chat.HistoryLimit,
		TempDir:       cfg.Chat.TempDir,
	})
	session := chat.NewSession("voicectl", cfg.Chat.SystemPrompt)
	_, err = runTurns(ctx, manager, session, args, OutDir, cmd.OutOrStdout())
	return err
}

// Processor 单轮处理
type Processor interface {
	Process(ctx context.Context, session chat.Session, in turn.Input) (chat.Session, turn.Result, error)
}

// runTurns feeds each file as the next capture of one session.
func runTurns(ctx context.Context, p Processor, session chat.Session, files []string, outDir string, w io.Writer) (chat.Session, error) {
	for i, path := range files {
		clip, err := readClip(path)
		if err != nil {
			return session, fmt.Errorf("%s: %w", path, err)
		}

		turnCtx, cancel := context.WithTimeout(ctx, Timeout)
		next, result, err := p.Process(turnCtx, session, turn.Input{Clip: clip})
		cancel()
		if err != nil {
			return session, fmt.Errorf("%s: %w", path, err)
		}
		session = next

		switch {
		case result.Skipped:
			fmt.Fprintf(w, "[%d] %s: duplicate capture skipped\n", i+1, path)
			continue
		case result.Failure != nil:
			fmt.Fprintf(w, "[%d] %s: %s (%s)\n", i+1, path, result.Failure.Notice, result.Failure.Kind)
		}
		if result.Turn.UserText != "" {
			fmt.Fprintf(w, "[%d] user: %s\n", i+1, result.Turn.UserText)
		}
		if result.Turn.ReplyText != "" {
			fmt.Fprintf(w, "[%d] assistant: %s\n", i+1, result.Turn.ReplyText)
		}

		if outDir != "" && !result.Turn.Audio.Empty() {
			name := filepath.Join(outDir, fmt.Sprintf("reply-%02d.%s", i+1, result.Turn.Audio.Format))
			if err := os.WriteFile(name, result.Turn.Audio.Data, 0o644); err != nil {
				return session, err
			}
			fmt.Fprintf(w, "[%d] audio: %s\n", i+1, name)
		}
	}
	return session, nil
}
