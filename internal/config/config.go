package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Chat    ChatConfig
	AI      AIConfig
	Speech  SpeechConfig
	Google  GoogleConfig
	Store   StoreConfig
	TurnLog TurnLogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
		Chat:   chat,
		AI:     ai,
		Speech: speech,
		Google: loadGoogleConfig(chat.Language),
		Store:  store,
		TurnLog: TurnLogConfig{
			Path: strings.TrimSpace(os.Getenv("TURN_LOG_PATH")),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 日志级别与输出格式
type LogConfig struct {
	Level  string
	Format string
}

// FailurePolicy 决定转写失败时对话记录如何变化
type FailurePolicy string

const (
	// FailureReport 保持对话记录不变，只返回错误类别
	FailureReport FailurePolicy = "report"
	// FailurePlaceholder 追加占位的用户消息和道歉回复
	FailurePlaceholder FailurePolicy = "placeholder"
)

// ChatConfig 描述对话流程相关配置。
type ChatConfig struct {
	Language      string
	SystemPrompt  string
	HistoryLimit  int
	FailurePolicy FailurePolicy
	MaxAudioBytes int64
	TempDir       string
}

func loadChatConfig() (ChatConfig, error) {
	limit, err := parseOptionalIntEnv("CHAT_HISTORY_LIMIT")
	if err != nil {
		return ChatConfig{}, err
	}
	historyLimit := 0
	if limit != nil && *limit > 0 {
		historyLimit = *limit
	}

	policy := FailurePolicy(strings.ToLower(getEnvOrDefault("TRANSCRIPTION_FAILURE_POLICY", string(FailureReport))))
	switch policy {
	case FailureReport, FailurePlaceholder:
	default:
		return ChatConfig{}, fmt.Errorf("invalid TRANSCRIPTION_FAILURE_POLICY value: %q", policy)
	}

	maxBytes, err := parseOptionalIntEnv("AUDIO_MAX_BYTES")
	if err != nil {
		return ChatConfig{}, err
	}
	maxAudio := int64(10 << 20) // 默认10MB
	if maxBytes != nil && *maxBytes > 0 {
		maxAudio = int64(*maxBytes)
	}

	return ChatConfig{
		Language:      getEnvOrDefault("CHAT_LANGUAGE", "ur"),
		SystemPrompt:  strings.TrimSpace(os.Getenv("CHAT_SYSTEM_PROMPT")),
		HistoryLimit:  historyLimit,
		FailurePolicy: policy,
		MaxAudioBytes: maxAudio,
		TempDir:       strings.TrimSpace(os.Getenv("AUDIO_TEMP_DIR")),
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	temperature := float32(c.Temperature)

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: &temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	temp := 0.0 // 默认确定性输出
	if temperature != nil {
		temp = *temperature
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temp,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// Transcriber 后端
const (
	TranscriberGoogle     = "google"
	TranscriberVolcengine = "volcengine"
)

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	Transcriber string
	AppID       string
	AccessToken string
	APIKey      string
	AccessKey   string
	SecretKey   string
	ASRLanguage string
	TTSVoice    string
	TTSSpeed    float32
	TTSVolume   float32
	TTSLanguage string
	Timeout     time.Duration
	Enabled     bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	transcriber := strings.ToLower(getEnvOrDefault("TRANSCRIBER", TranscriberGoogle))
	switch transcriber {
	case TranscriberGoogle, TranscriberVolcengine:
	default:
		return SpeechConfig{}, fmt.Errorf("invalid TRANSCRIBER value: %q", transcriber)
	}

	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil && *timeout > 0 {
		timeoutSeconds = *timeout
	}

	// 解析TTS速度和音量
	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	accessKey := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_KEY"))
	secretKey := strings.TrimSpace(os.Getenv("SPEECH_SECRET_KEY"))

	// 如果没有专门的语音配置，尝试使用AI配置
	if accessToken == "" && accessKey == "" {
		accessToken = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		apiKey = accessToken
		accessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		secretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
	}

	language := getEnvOrDefault("CHAT_LANGUAGE", "ur")

	return SpeechConfig{
		Transcriber: transcriber,
		AppID:       appID,
		AccessToken: accessToken,
		APIKey:      apiKey,
		AccessKey:   accessKey,
		SecretKey:   secretKey,
		ASRLanguage: getEnvOrDefault("SPEECH_ASR_LANGUAGE", language),
		TTSVoice:    getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:    ttsSpeed,
		TTSVolume:   ttsVolume,
		TTSLanguage: getEnvOrDefault("SPEECH_TTS_LANGUAGE", language),
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		Enabled:     appID != "" && accessToken != "",
	}, nil
}

// GoogleConfig 描述 Google Cloud Speech 识别配置
type GoogleConfig struct {
	CredentialsFile string
	Language        string
}

func loadGoogleConfig(language string) GoogleConfig {
	credentials := strings.TrimSpace(os.Getenv("GOOGLE_STT_CREDENTIALS_FILE"))
	if credentials == "" {
		credentials = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return GoogleConfig{
		CredentialsFile: credentials,
		Language:        getEnvOrDefault("GOOGLE_STT_LANGUAGE", language),
	}
}

// Session store 后端
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// StoreConfig 描述会话存储配置
type StoreConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

func loadStoreConfig() (StoreConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("SESSION_STORE", StoreMemory))
	switch backend {
	case StoreMemory, StoreRedis:
	default:
		return StoreConfig{}, fmt.Errorf("invalid SESSION_STORE value: %q", backend)
	}

	db, err := parseOptionalIntEnv("REDIS_DB")
	if err != nil {
		return StoreConfig{}, err
	}
	redisDB := 0
	if db != nil {
		redisDB = *db
	}

	ttl := 2 * time.Hour
	if raw := strings.TrimSpace(os.Getenv("SESSION_TTL")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return StoreConfig{}, fmt.Errorf("invalid SESSION_TTL value %q: %w", raw, err)
		}
		ttl = parsed
	}

	return StoreConfig{
		Backend:       backend,
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisDB:       redisDB,
		TTL:           ttl,
	}, nil
}

// TurnLogConfig 轮次审计日志，Path 为空表示关闭
type TurnLogConfig struct {
	Path string
}

// Enabled reports whether the turn log should be opened.
func (c TurnLogConfig) Enabled() bool {
	return c.Path != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
