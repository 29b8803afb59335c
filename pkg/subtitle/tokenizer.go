package subtitle

import (
	"regexp"
	"strings"
)

// tagPattern 匹配字幕中的内联标记：
//   - HTML样式标签：<i>、</font>、<font color="red"> 等
//   - ASS/SSA控制码：{\an8}、{\pos(10,20)}、{\i1\b1} 等
//
// 无法归入任何已知模式的跨度按原样保留为文本，切分永不失败
var tagPattern = regexp.MustCompile(`</?[A-Za-z][^<>]*>|\{\\[^{}]*\}`)

// Tokenize 将原始字幕文本切分为文本/标记令牌序列
// 不变式：JoinTokens(Tokenize(s)) == s
func Tokenize(raw string) []Token {
	if raw == "" {
		return nil
	}

	matches := tagPattern.FindAllStringIndex(raw, -1)
	if len(matches) == 0 {
		return []Token{{Kind: TokenText, Content: raw}}
	}

	tokens := make([]Token, 0, len(matches)*2+1)
	pos := 0
	for _, m := range matches {
		if m[0] > pos {
			tokens = append(tokens, Token{Kind: TokenText, Content: raw[pos:m[0]]})
		}
		tokens = append(tokens, Token{Kind: TokenTag, Content: raw[m[0]:m[1]]})
		pos = m[1]
	}
	if pos < len(raw) {
		tokens = append(tokens, Token{Kind: TokenText, Content: raw[pos:]})
	}

	return tokens
}

// JoinTokens 按顺序拼接令牌内容
func JoinTokens(tokens []Token) string {
	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteString(tok.Content)
	}
	return sb.String()
}

// PlainText 仅拼接文本令牌，得到发送给翻译后端的纯文本
func PlainText(tokens []Token) string {
	var sb strings.Builder
	for _, tok := range tokens {
		if tok.Kind == TokenText {
			sb.WriteString(tok.Content)
		}
	}
	return sb.String()
}

// ApplyTranslation 用译文替换全部文本令牌，标记令牌保持原有相对顺序：
// 首个文本令牌之前的标记（如行首的 {\an8} 定位码）仍在译文之前，
// 其余标记按原顺序跟在译文之后，开闭标签的嵌套次序不变
func ApplyTranslation(tokens []Token, translated string) []Token {
	hasText := false
	for _, tok := range tokens {
		if tok.Kind == TokenText {
			hasText = true
			break
		}
	}
	if !hasText {
		// 原文没有可翻译内容，保持原样
		return tokens
	}

	var leading, trailing []Token
	seenText := false
	for _, tok := range tokens {
		if tok.Kind == TokenText {
			seenText = true
			continue
		}
		if seenText {
			trailing = append(trailing, tok)
		} else {
			leading = append(leading, tok)
		}
	}

	result := make([]Token, 0, len(leading)+len(trailing)+1)
	result = append(result, leading...)
	result = append(result, Token{Kind: TokenText, Content: translated})
	result = append(result, trailing...)
	return result
}
