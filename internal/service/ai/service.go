package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/config"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/fault"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
	"go.uber.org/zap"
)

// Service 把完整对话记录交给聊天模型，返回一条助手消息
type Service struct {
	chain  compose.Runnable[[]*schema.Message, *schema.Message]
	tracer *tracer
}

// NewService creates the completion service backed by the configured Ark model.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel)
}

// NewServiceWithModel compiles the completion chain around an existing model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chain:  runnable,
		tracer: &tracer{log: logging.Component("ai")},
	}, nil
}

// Complete sends the ordered history and returns the assistant reply.
// Provider errors come back as *fault.Error.
func (s *Service) Complete(ctx context.Context, history []chat.Message) (chat.Message, error) {
	if len(history) == 0 {
		return chat.Message{}, fault.Wrap(fault.CompletionFailed, "ai.complete", chat.ErrEmptyTranscript)
	}

	response, err := s.chain.Invoke(ctx, toSchemaMessages(history), compose.WithCallbacks(s.tracer.handler()))
	if err != nil {
		return chat.Message{}, fault.FromProvider("ai.complete", err, fault.CompletionFailed)
	}
	if response == nil {
		return chat.Message{}, fault.New(fault.CompletionFailed, "ai.complete")
	}

	s.tracer.log.Debug("completion generated",
		zap.Int("history", len(history)),
		zap.Int("reply_length", len(response.Content)),
	)
	return chat.AssistantMessage(response.Content), nil
}

func toSchemaMessages(history []chat.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleSystem:
			messages = append(messages, schema.SystemMessage(msg.Content))
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return messages
}

// Unconfigured 未配置 Ark 凭证时使用，每次调用都按鉴权失败处理
type Unconfigured struct{}

func (Unconfigured) Complete(context.Context, []chat.Message) (chat.Message, error) {
	return chat.Message{}, fault.Wrap(fault.CompletionAuth, "ai.complete", errors.New("ark credentials are not configured"))
}
