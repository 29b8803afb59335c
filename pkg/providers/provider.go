// Package providers 定义翻译后端的统一契约
// 只约束输入输出的文本形态，具体厂商的线缆协议由各子包封装
package providers

import (
	"context"
	"time"
)

// Request 一次后端调用的输入
type Request struct {
	// System 系统提示词
	System string `json:"system"`
	// User 用户提示词（含待翻译的编号字幕块）
	User string `json:"user"`
	// SourceLang 源语言代码
	SourceLang string `json:"source_lang"`
	// TargetLang 目标语言代码
	TargetLang string `json:"target_lang"`
}

// Response 后端返回的原始文本
type Response struct {
	// Text 后端输出，交由响应解析器恢复逐行译文
	Text string `json:"text"`
	// Model 实际使用的模型
	Model string `json:"model,omitempty"`
	// TokensIn 输入令牌数
	TokensIn int `json:"tokens_in,omitempty"`
	// TokensOut 输出令牌数
	TokensOut int `json:"tokens_out,omitempty"`
}

// Provider 翻译后端接口
type Provider interface {
	// Translate 执行一次翻译调用
	Translate(ctx context.Context, req *Request) (*Response, error)

	// Name 后端名称
	Name() string
}

// BaseConfig 后端基础配置
type BaseConfig struct {
	APIKey  string        `json:"api_key,omitempty"`
	BaseURL string        `json:"base_url,omitempty"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultBaseConfig 返回默认基础配置
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Timeout: 2 * time.Minute,
	}
}
