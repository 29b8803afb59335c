package translation

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/nerdneilsfield/go-subtrans-agent/pkg/subtitle"
)

// 缺省占位值，保证模板的每个槽位总有内容
const (
	noHistoryPlaceholder  = "(no history)"
	noContextPlaceholder  = "(no context)"
	noGlossaryPlaceholder = "(none)"
)

// FormatPrompt 解析模板并代入参数，得到系统提示词和用户提示词
func FormatPrompt(chunk *Chunk, task *TaskConfig, store *Store) (string, string, error) {
	tpl, err := store.Resolve(task)
	if err != nil {
		return "", "", WrapError(err, ErrCodeTemplate, "resolve template")
	}

	style := task.Style
	if style == "" {
		style = "neutral"
	}

	replacer := strings.NewReplacer(
		"{{subtitle_text}}", renderSubtitleText(chunk.Lines),
		"{{context}}", renderContext(chunk),
		"{{translated_context}}", renderHistory(chunk.TranslatedHistory),
		"{{glossary}}", renderGlossary(task.Glossary),
		"{{source_language}}", languageName(task.SourceLang),
		"{{target_language}}", languageName(task.TargetLang),
		"{{style}}", style,
	)

	return replacer.Replace(tpl.System), replacer.Replace(tpl.User), nil
}

// renderSubtitleText 把块内各行渲染为带索引的编号列表
func renderSubtitleText(lines []*subtitle.Line) string {
	entries := make([]string, len(lines))
	for i, line := range lines {
		entries[i] = fmt.Sprintf("%d. %s", line.Index, line.SourceText())
	}
	return strings.Join(entries, "\n\n")
}

// renderContext 渲染块前后的只读上下文
func renderContext(chunk *Chunk) string {
	if len(chunk.ContextBefore) == 0 && len(chunk.ContextAfter) == 0 {
		return noContextPlaceholder
	}

	var sb strings.Builder
	for _, line := range chunk.ContextBefore {
		sb.WriteString(fmt.Sprintf("[before] %s\n", line.SourceText()))
	}
	for _, line := range chunk.ContextAfter {
		sb.WriteString(fmt.Sprintf("[after] %s\n", line.SourceText()))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderHistory 把滑动历史渲染为原文/译文交替的行对
func renderHistory(history []*subtitle.Line) string {
	if len(history) == 0 {
		return noHistoryPlaceholder
	}

	var sb strings.Builder
	for _, line := range history {
		sb.WriteString(fmt.Sprintf("source: %s\n", line.SourceText()))
		sb.WriteString(fmt.Sprintf("translated: %s\n", line.TranslatedText))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderGlossary 渲染术语表，按源术语排序保证输出稳定
func renderGlossary(glossary map[string]string) string {
	if len(glossary) == 0 {
		return noGlossaryPlaceholder
	}

	terms := make([]string, 0, len(glossary))
	for term := range glossary {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	entries := make([]string, len(terms))
	for i, term := range terms {
		entries[i] = fmt.Sprintf("%s => %s", term, glossary[term])
	}
	return strings.Join(entries, "\n")
}

// languageName 把语言代码解析为英文显示名，解析失败时原样返回
func languageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
