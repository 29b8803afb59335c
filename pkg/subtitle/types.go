package subtitle

import (
	"fmt"
	"strings"
	"time"
)

// TokenKind 令牌类型
type TokenKind int

const (
	// TokenText 可翻译的纯文本片段
	TokenText TokenKind = iota
	// TokenTag 标记片段（HTML样式标签或ASS控制码），不参与翻译
	TokenTag
)

// Token 字幕行中的一个片段
// 按顺序拼接所有片段的 Content 必须精确还原原始文本
type Token struct {
	Kind    TokenKind `json:"kind"`
	Content string    `json:"content"`
}

// Timestamp 字幕时间戳
type Timestamp time.Duration

// String 格式化为 SRT 时间格式 HH:MM:SS,mmm
func (t Timestamp) String() string {
	d := time.Duration(t)
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp 解析 SRT 时间格式（兼容逗号和点号毫秒分隔符）
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	normalized := strings.Replace(s, ",", ".", 1)

	var h, m int
	var sec float64
	if _, err := fmt.Sscanf(normalized, "%d:%d:%f", &h, &m, &sec); err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("invalid timestamp %q: component out of range", s)
	}

	d := time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second))
	return Timestamp(d), nil
}

// ValidationResult 翻译质量校验结果
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Score    float64  `json:"score"`
}

// Line 一条字幕
// Index 全局唯一且稳定；Tokens 在创建时由原始文本切分得到；
// TranslatedText 由翻译编排器填充，Validation 由校验器填充
type Line struct {
	Index          int               `json:"index"`
	Start          Timestamp         `json:"start"`
	End            Timestamp         `json:"end"`
	Tokens         []Token           `json:"tokens"`
	TranslatedText string            `json:"translated_text,omitempty"`
	Validation     *ValidationResult `json:"validation,omitempty"`
}

// NewLine 创建字幕行并切分原始文本
func NewLine(index int, start, end Timestamp, rawText string) *Line {
	return &Line{
		Index:  index,
		Start:  start,
		End:    end,
		Tokens: Tokenize(rawText),
	}
}

// RawText 还原原始文本（含标记）
func (l *Line) RawText() string {
	return JoinTokens(l.Tokens)
}

// SourceText 提取待翻译的纯文本
func (l *Line) SourceText() string {
	return PlainText(l.Tokens)
}

// OutputText 输出翻译结果，标记按原始顺序回插
// 未翻译时退化为原始文本
func (l *Line) OutputText() string {
	if l.TranslatedText == "" {
		return l.RawText()
	}
	return JoinTokens(ApplyTranslation(l.Tokens, l.TranslatedText))
}
