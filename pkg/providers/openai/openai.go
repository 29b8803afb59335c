// Package openai 基于 OpenAI 兼容接口的翻译后端
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nerdneilsfield/go-subtrans-agent/pkg/providers"
)

// Config OpenAI后端配置
type Config struct {
	providers.BaseConfig
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseConfig:  providers.DefaultBaseConfig(),
		Model:       openai.GPT4oMini,
		Temperature: 0.3,
		MaxTokens:   4096,
	}
}

// Provider OpenAI翻译后端
type Provider struct {
	config Config
	client *openai.Client
}

// New 创建OpenAI后端
func New(cfg Config) *Provider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		// go-openai 的 API 后缀以斜杠开头，去掉尾部斜杠避免双斜杠
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Provider{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Name 后端名称
func (p *Provider) Name() string {
	return "openai"
}

// Translate 执行一次翻译调用
func (p *Provider) Translate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyAPIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &providers.TransientError{Message: "no choices in completion response"}
	}

	return &providers.Response{
		Text:      resp.Choices[0].Message.Content,
		Model:     resp.Model,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

// classifyAPIError 把底层错误映射到统一的错误分类
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return &providers.AuthError{Message: apiErr.Message, Cause: err}
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &providers.RateLimitError{Message: apiErr.Message, Cause: err}
		case apiErr.HTTPStatusCode >= 500:
			return &providers.TransientError{Message: apiErr.Message, Cause: err}
		default:
			return fmt.Errorf("openai api error: %w", err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &providers.TransientError{Message: "request timed out", Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &providers.TransientError{Message: netErr.Error(), Cause: err}
	}

	return err
}
