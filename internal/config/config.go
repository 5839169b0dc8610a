package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Slack   SlackConfig
	Agent   AgentConfig
	Session SessionConfig
}

// Load 从环境变量加载配置。任一必需项缺失时返回错误，调用方应当直接退出。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	slack, err := loadSlackConfig()
	if err != nil {
		return nil, err
	}

	agent, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Slack: slack, Agent: agent, Session: session}, nil
}

// LoadAgent 仅加载 agent 相关配置，供不接入 Slack 的诊断工具使用。
func LoadAgent() (AgentConfig, error) {
	return loadAgentConfig()
}

// ServerConfig 描述诊断 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析诊断服务监听地址。
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

// SlackConfig 描述 Slack 接入配置。
type SlackConfig struct {
	BotToken string
	AppToken string
	Debug    bool
}

func loadSlackConfig() (SlackConfig, error) {
	botToken := strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN"))
	if botToken == "" {
		return SlackConfig{}, fmt.Errorf("SLACK_BOT_TOKEN is required")
	}

	appToken := strings.TrimSpace(os.Getenv("SLACK_APP_TOKEN"))
	if appToken == "" {
		return SlackConfig{}, fmt.Errorf("SLACK_APP_TOKEN is required")
	}

	debug, err := parseBoolEnv("SLACK_DEBUG", false)
	if err != nil {
		return SlackConfig{}, err
	}

	return SlackConfig{BotToken: botToken, AppToken: appToken, Debug: debug}, nil
}

// AgentConfig 描述远端 agent 服务相关配置。
type AgentConfig struct {
	APIKey      string
	BaseURL     string
	AgentID     string
	UserID      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     int // seconds
}

func loadAgentConfig() (AgentConfig, error) {
	apiKey := strings.TrimSpace(os.Getenv("AGENT_API_KEY"))
	if apiKey == "" {
		return AgentConfig{}, fmt.Errorf("AGENT_API_KEY is required")
	}

	temperature, err := parseOptionalFloatEnv("AGENT_TEMPERATURE")
	if err != nil {
		return AgentConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AGENT_TOP_P")
	if err != nil {
		return AgentConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AGENT_MAX_TOKENS")
	if err != nil {
		return AgentConfig{}, err
	}

	timeout, err := parseOptionalIntEnv("AGENT_TIMEOUT")
	if err != nil {
		return AgentConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		if *timeout <= 0 {
			return AgentConfig{}, fmt.Errorf("AGENT_TIMEOUT must be positive, got %d", *timeout)
		}
		timeoutSeconds = *timeout
	}

	return AgentConfig{
		APIKey:      apiKey,
		BaseURL:     getEnvOrDefault("AGENT_BASE_URL", "http://localhost:8787/v1/chat"),
		AgentID:     getEnvOrDefault("AGENT_ID", "default"),
		UserID:      getEnvOrDefault("AGENT_USER_ID", "z-relay"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeoutSeconds,
	}, nil
}

// SessionConfig 描述会话过期相关配置。
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	interval, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{TTL: ttl, SweepInterval: interval}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
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

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
