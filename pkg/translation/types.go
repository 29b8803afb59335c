package translation

import (
	"fmt"
	"strings"

	"github.com/nerdneilsfield/go-subtrans-agent/pkg/subtitle"
)

// ValidationLevel 校验级别
type ValidationLevel string

const (
	// ValidationNone 不校验，任何输出都视为有效
	ValidationNone ValidationLevel = "none"
	// ValidationBasic 基础校验：无错误且评分不低于50
	ValidationBasic ValidationLevel = "basic"
	// ValidationStrict 严格校验：无错误且评分不低于70
	ValidationStrict ValidationLevel = "strict"
)

// ParseValidationLevel 解析校验级别字符串，未知值回退到 basic
func ParseValidationLevel(s string) ValidationLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ValidationNone):
		return ValidationNone
	case string(ValidationStrict):
		return ValidationStrict
	default:
		return ValidationBasic
	}
}

// TaskConfig 翻译任务配置
// 由外部请求/配置层提供，编排器在整个任务生命周期内只读
type TaskConfig struct {
	SourceLang      string            `json:"source_lang"`
	TargetLang      string            `json:"target_lang"`
	Style           string            `json:"style"`
	ChunkSize       int               `json:"chunk_size"`
	ContextWindow   int               `json:"context_window"`
	MaxRetries      int               `json:"max_retries"`
	Glossary        map[string]string `json:"glossary,omitempty"`
	ForbiddenTerms  []string          `json:"forbidden_terms,omitempty"`
	ValidationLevel ValidationLevel   `json:"validation_level"`

	// Template 任务附带的显式模板，优先级最高
	Template *Template `json:"-"`
	// TemplateName 按名称请求的模板，先查用户模板再查内置模板
	TemplateName string `json:"template_name,omitempty"`
}

// Validate 校验任务配置
func (c *TaskConfig) Validate() error {
	if c.SourceLang == "" || c.TargetLang == "" {
		return fmt.Errorf("%w: source and target language are required", ErrInvalidConfig)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("%w: context_window must not be negative, got %d", ErrInvalidConfig, c.ContextWindow)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	return nil
}

// Chunk 提交给翻译后端的一组连续字幕行
// 创建后不可变，唯一的例外是编排器就地填充 Lines 中各行的 TranslatedText
type Chunk struct {
	// Lines 本块待翻译的行，数量不超过 chunk_size
	Lines []*subtitle.Line
	// ContextBefore 块前的只读上下文行，数量不超过 context_window
	ContextBefore []*subtitle.Line
	// ContextAfter 块后的只读上下文行，数量不超过 context_window
	ContextAfter []*subtitle.Line
	// TranslatedHistory 上一块已翻译完成的行（滑动历史窗口）
	TranslatedHistory []*subtitle.Line
}

// Indices 返回本块各行的全局索引
func (c *Chunk) Indices() []int {
	indices := make([]int, len(c.Lines))
	for i, line := range c.Lines {
		indices[i] = line.Index
	}
	return indices
}

// SourceTexts 返回本块各行的纯文本
func (c *Chunk) SourceTexts() []string {
	texts := make([]string, len(c.Lines))
	for i, line := range c.Lines {
		texts[i] = line.SourceText()
	}
	return texts
}
