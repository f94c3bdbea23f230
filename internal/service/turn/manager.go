package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/audio"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/config"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/fault"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
	"go.uber.org/zap"
)

// ErrEmptyCapture 空录音不进入流程
var ErrEmptyCapture = errors.New("audio capture is empty")

type Transcriber interface {
	Transcribe(ctx context.Context, capture *audio.Staged) (string, error)
}

type Completer interface {
	Complete(ctx context.Context, history []chat.Message) (chat.Message, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (chat.Audio, error)
}

// Recorder receives every saved turn. Errors are logged, never surfaced.
type Recorder interface {
	RecordTurn(ctx context.Context, sessionID string, turn chat.Turn) error
}

// Config 轮次处理参数
type Config struct {
	FailurePolicy config.FailurePolicy
	HistoryLimit  int
	TempDir       string
}

// Stage 处理进度
type Stage string

const (
	StageTranscribed Stage = "transcribed"
	StageReplied     Stage = "replied"
	StageSynthesized Stage = "synthesized"
	StageFailed      Stage = "failed"
)

// Event is emitted to Input.Observe as the turn progresses.
type Event struct {
	Stage  Stage      `json:"stage"`
	Text   string     `json:"text,omitempty"`
	Kind   fault.Kind `json:"kind,omitempty"`
	Notice string     `json:"notice,omitempty"`
}

// Input 一次录音提交
type Input struct {
	Clip    audio.Clip
	Observe func(Event)
}

// Failure 可展示给用户的失败信息
type Failure struct {
	Kind   fault.Kind `json:"kind"`
	Notice string     `json:"notice"`
	Err    error      `json:"-"`
}

// Result 单轮处理结果
type Result struct {
	Turn    chat.Turn
	Skipped bool
	Failure *Failure
}

// Manager 串联 识别 -> 对话 -> 合成
type Manager struct {
	transcriber Transcriber
	completer   Completer
	synthesizer Synthesizer
	recorder    Recorder
	cfg         Config
	log         *zap.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRecorder attaches a turn log.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// NewManager wires the three providers together.
func NewManager(t Transcriber, c Completer, s Synthesizer, cfg Config, opts ...Option) *Manager {
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = config.FailureReport
	}
	m := &Manager{
		transcriber: t,
		completer:   c,
		synthesizer: s,
		cfg:         cfg,
		log:         logging.Component("turn"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Process runs one turn against session and returns the next session state.
// Categorized provider failures are reported in Result.Failure with a nil
// error; the error return is reserved for invalid input.
func (m *Manager) Process(ctx context.Context, session chat.Session, in Input) (chat.Session, Result, error) {
	if in.Clip.Empty() {
		return session, Result{}, ErrEmptyCapture
	}

	digest := in.Clip.Digest()
	if digest == session.DedupKey {
		m.log.Debug("duplicate capture skipped", zap.String("session_id", session.ID), zap.String("digest", digest))
		return session, Result{Skipped: true, Turn: chat.Turn{Digest: digest}}, nil
	}

	next := session
	next.DedupKey = digest

	run := &turnRun{
		Manager: m,
		observe: in.Observe,
		turn: chat.Turn{
			ID:        uuid.NewString(),
			Digest:    digest,
			CreatedAt: time.Now().UTC(),
		},
	}

	next, result := run.execute(ctx, next, in.Clip)
	return next, result, nil
}

type turnRun struct {
	*Manager
	observe func(Event)
	turn    chat.Turn
}

func (r *turnRun) execute(ctx context.Context, session chat.Session, clip audio.Clip) (chat.Session, Result) {
	text, err := r.transcribe(ctx, clip)
	if err != nil {
		return r.transcriptionFailed(ctx, session, err)
	}

	r.turn.UserText = text
	session.Transcript = session.Transcript.Append(chat.UserMessage(text))
	r.emit(Event{Stage: StageTranscribed, Text: text})

	reply, err := r.completer.Complete(ctx, session.Transcript.Window(r.cfg.HistoryLimit))
	if err != nil {
		// 保留末尾未回复的用户消息
		return session, r.fail(fault.FromProvider("turn.complete", err, fault.CompletionFailed))
	}

	session.Transcript = session.Transcript.Append(reply)
	session.LastReply = reply.Content
	session.LastAudio = chat.Audio{}
	r.turn.ReplyText = reply.Content
	r.emit(Event{Stage: StageReplied, Text: reply.Content})

	return r.synthesize(ctx, session)
}

// transcribe stages the clip for the backend and always removes it afterwards.
func (r *turnRun) transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	staged, err := audio.Stage(r.cfg.TempDir, clip)
	if err != nil {
		return "", fault.Wrap(fault.Unexpected, "turn.stage", err)
	}
	defer func() {
		if err := staged.Release(); err != nil {
			r.log.Warn("failed to remove staged audio", zap.Error(err))
		}
	}()

	text, err := r.transcriber.Transcribe(ctx, staged)
	if err != nil {
		return "", fault.FromProvider("turn.transcribe", err, fault.TranscriberUnavailable)
	}
	if text == "" {
		return "", fault.New(fault.Unintelligible, "turn.transcribe")
	}
	return text, nil
}

func (r *turnRun) transcriptionFailed(ctx context.Context, session chat.Session, err error) (chat.Session, Result) {
	if r.cfg.FailurePolicy != config.FailurePlaceholder || !fault.KindOf(err).Transcription() {
		return session, r.fail(err)
	}

	// 占位策略：记录一组固定的用户/助手消息并朗读提示
	failed := r.fail(err)
	r.turn.UserText = fault.Placeholder(failed.Failure.Kind)
	r.turn.ReplyText = failed.Failure.Notice
	session.Transcript = session.Transcript.
		Append(chat.UserMessage(r.turn.UserText)).
		Append(chat.AssistantMessage(r.turn.ReplyText))
	session.LastReply = r.turn.ReplyText
	session.LastAudio = chat.Audio{}
	r.emit(Event{Stage: StageReplied, Text: r.turn.ReplyText})

	next, result := r.synthesize(ctx, session)
	if result.Failure == nil {
		result.Failure = failed.Failure
	}
	return next, result
}

func (r *turnRun) synthesize(ctx context.Context, session chat.Session) (chat.Session, Result) {
	audioOut, err := r.synthesizer.Synthesize(ctx, session.LastReply)
	if err != nil {
		// 文本回复保留，仅缺少音频
		return session, r.fail(fault.FromProvider("turn.synthesize", err, fault.SynthesisFailed))
	}

	session.LastAudio = audioOut
	r.turn.Audio = audioOut
	if !audioOut.Empty() {
		r.emit(Event{Stage: StageSynthesized})
	}
	return session, Result{Turn: r.turn}
}

func (r *turnRun) failure(err error) *Failure {
	kind := fault.KindOf(err)
	return &Failure{Kind: kind, Notice: fault.Notice(kind), Err: err}
}

func (r *turnRun) fail(err error) Result {
	f := r.failure(err)
	r.turn.Failure = string(f.Kind)
	r.emit(Event{Stage: StageFailed, Kind: f.Kind, Notice: f.Notice})
	r.log.Warn("turn failed", zap.String("kind", string(f.Kind)), zap.Error(err))
	return Result{Turn: r.turn, Failure: f}
}

func (r *turnRun) emit(ev Event) {
	if r.observe != nil {
		r.observe(ev)
	}
}

// Record writes a processed turn to the attached turn log. Callers invoke it
// only once the session carrying the turn has been saved.
func (m *Manager) Record(ctx context.Context, sessionID string, result Result) {
	if m.recorder == nil || result.Skipped {
		return
	}
	if err := m.recorder.RecordTurn(ctx, sessionID, result.Turn); err != nil {
		m.log.Warn("failed to record turn", zap.String("session_id", sessionID), zap.Error(fmt.Errorf("record turn: %w", err)))
	}
}
