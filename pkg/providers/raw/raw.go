// Package raw 原样回显的后端，用于预演模式和测试
package raw

import (
	"context"
	"strings"

	"github.com/nerdneilsfield/go-subtrans-agent/pkg/providers"
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/translation"
)

// Provider 回显后端
// 从用户提示词中截取字幕标记块并原样返回，编号结构保持完整，
// 因此响应解析器可以正常把"译文"映射回各行
type Provider struct{}

// New 创建回显后端
func New() *Provider {
	return &Provider{}
}

// Name 后端名称
func (p *Provider) Name() string {
	return "raw"
}

// Translate 原样返回字幕标记块之间的内容
func (p *Provider) Translate(_ context.Context, req *providers.Request) (*providers.Response, error) {
	text := req.User

	if begin := strings.Index(text, translation.SubtitleBlockBegin); begin >= 0 {
		text = text[begin+len(translation.SubtitleBlockBegin):]
		if end := strings.Index(text, translation.SubtitleBlockEnd); end >= 0 {
			text = text[:end]
		}
	}

	return &providers.Response{
		Text:  strings.TrimSpace(text),
		Model: "raw",
	}, nil
}
