package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/config"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/handler"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/handler/chat"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/ai"
	chatService "github.com/zhouzirui/urdu-voicebot/backend/internal/service/chat"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/speech"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/turn"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		logging.Component("main").Error("urdu voicebot backend exited", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

// run 组装依赖并阻塞到服务退出，所有已打开的资源都在返回前关闭
func run(ctx context.Context) error {
	envErr := godotenv.Load()

	// 配置加载前先使用默认日志，保证启动错误可见
	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logging.Component("main")

	if envErr != nil {
		log.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}

	var closers []func() error
	defer func() {
		if closeErr := closeAll(closers); closeErr != nil {
			log.Warn("shutdown finished with errors", zap.Error(closeErr))
		}
	}()

	// 会话存储
	store, err := newSessionStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize %s session store: %w", cfg.Store.Backend, err)
	}
	chatSvc := chatService.NewService(store, cfg.Chat.SystemPrompt)
	closers = append(closers, chatSvc.Close)
	log.Info("session store ready", zap.String("backend", cfg.Store.Backend))

	// 对话模型
	var completer turn.Completer = ai.Unconfigured{}
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			return fmt.Errorf("failed to initialize AI service: %w", err)
		}
		completer = aiSvc
		log.Info("AI service initialized", zap.String("model", cfg.AI.Model))
	} else {
		log.Warn("Ark 凭证未配置，回复将返回鉴权失败提示")
	}

	// 语音识别与合成，识别后端初始化失败时降级为不可用提示
	speechSvc := speech.NewService(ctx, cfg.Speech, cfg.Google)
	closers = append(closers, speechSvc.Close)
	if !cfg.Speech.Enabled {
		log.Warn("语音合成凭证未配置，每轮回复都会附带合成失败提示")
	}

	var opts []turn.Option
	var turnLog chat.TurnLog
	if cfg.TurnLog.Enabled() {
		db, err := storage.Open(cfg.TurnLog.Path)
		if err != nil {
			return fmt.Errorf("failed to open turn log %s: %w", cfg.TurnLog.Path, err)
		}
		closers = append(closers, db.Close)
		turns := storage.NewTurnLog(db)
		opts = append(opts, turn.WithRecorder(turns))
		turnLog = turns
		log.Info("turn log enabled", zap.String("path", cfg.TurnLog.Path))
	}

	manager := turn.NewManager(speechSvc, completer, speechSvc, turn.Config{
		FailurePolicy: cfg.Chat.FailurePolicy,
		HistoryLimit:  cfg.Chat.HistoryLimit,
		TempDir:       cfg.Chat.TempDir,
	}, opts...)

	router := handler.NewRouter(handler.Deps{
		Chat:          chatSvc,
		Turns:         turn.NewRunner(chatSvc, manager),
		TurnLog:       turnLog,
		MaxAudioBytes: cfg.Chat.MaxAudioBytes,
		Transcriber:   cfg.Speech.Transcriber,
	})

	if err := startServer(ctx, cfg.Server, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newSessionStore(ctx context.Context, cfg config.StoreConfig) (chatService.Store, error) {
	switch cfg.Backend {
	case config.StoreRedis:
		return chatService.NewRedisStore(ctx, chatService.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
	default:
		return chatService.NewMemoryStore(), nil
	}
}

func closeAll(closers []func() error) error {
	var result *multierror.Error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logging.Component("main").Info("urdu voicebot backend listening", zap.String("addr", serverCfg.Addr))
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
