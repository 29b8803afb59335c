package translation

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Template 提示词模板，System 和 User 两段
// 占位符形如 {{subtitle_text}}，仅允许封闭的参数集合
type Template struct {
	Name   string `toml:"name"`
	System string `toml:"system"`
	User   string `toml:"user"`
}

// TemplateID 内置模板标识（封闭集合）
type TemplateID string

const (
	TemplateStandard TemplateID = "standard"
	TemplateLiteral  TemplateID = "literal"
	TemplateNatural  TemplateID = "natural"
	TemplateFormal   TemplateID = "formal"
	TemplateCasual   TemplateID = "casual"
	TemplateAnime    TemplateID = "anime"
)

// 字幕内容边界标记，后端必须只翻译标记之间的内容
const (
	SubtitleBlockBegin = "===== SUBTITLES BEGIN ====="
	SubtitleBlockEnd   = "===== SUBTITLES END ====="
)

// baseUserTemplate 所有内置模板共享的用户提示词骨架
const baseUserTemplate = `Translate the following subtitles from {{source_language}} to {{target_language}}.

CRITICAL OUTPUT REQUIREMENT:
- Reply with EXACTLY one numbered line per subtitle: "<index>. <translation>"
- Keep the original index numbers, do NOT renumber
- Separate entries with a blank line
- Do NOT include explanations or any other text
- Preserve any {placeholder} tokens exactly as they appear

Glossary (use these translations for the listed terms):
{{glossary}}

Surrounding context (do NOT translate, reference only):
{{context}}

Previously translated lines (keep terminology and register consistent):
{{translated_context}}

The subtitles to translate are enclosed between the markers below. Translate ONLY the numbered lines between these markers:

` + SubtitleBlockBegin + `
{{subtitle_text}}
` + SubtitleBlockEnd + `

Output ONLY the numbered translations, nothing else.`

// builtinTemplates 内置模板表
var builtinTemplates = map[TemplateID]*Template{
	TemplateStandard: {
		Name:   string(TemplateStandard),
		System: `You are a professional subtitle translator. Translate accurately while preserving the original meaning, tone and timing constraints of subtitles. Keep translations concise enough to read on screen.`,
		User:   baseUserTemplate,
	},
	TemplateLiteral: {
		Name:   string(TemplateLiteral),
		System: `You are a professional subtitle translator. Produce a faithful, literal translation. Stay as close to the source wording and structure as the target language allows.`,
		User:   baseUserTemplate,
	},
	TemplateNatural: {
		Name:   string(TemplateNatural),
		System: `You are a professional subtitle translator. Produce natural, fluent translations that read as if originally written in the target language, while keeping the meaning intact.`,
		User:   baseUserTemplate,
	},
	TemplateFormal: {
		Name:   string(TemplateFormal),
		System: `You are a professional subtitle translator. Use formal register and polite forms appropriate for documentaries, news and business content.`,
		User:   baseUserTemplate,
	},
	TemplateCasual: {
		Name:   string(TemplateCasual),
		System: `You are a professional subtitle translator. Use casual, conversational register appropriate for everyday dialogue. Contractions and colloquialisms are welcome where natural.`,
		User:   baseUserTemplate,
	},
	TemplateAnime: {
		Name:   string(TemplateAnime),
		System: `You are a professional subtitle translator specializing in anime. Preserve character voice, honorifics and established fan terminology. Keep the {{style}} tone of the dialogue.`,
		User:   baseUserTemplate,
	},
}

// styleTemplates 风格到内置模板的固定映射
var styleTemplates = map[string]TemplateID{
	"literal": TemplateLiteral,
	"natural": TemplateNatural,
	"formal":  TemplateFormal,
	"casual":  TemplateCasual,
	"anime":   TemplateAnime,
}

// allowedParams 模板允许引用的参数集合
var allowedParams = map[string]bool{
	"subtitle_text":      true,
	"context":            true,
	"translated_context": true,
	"glossary":           true,
	"source_language":    true,
	"target_language":    true,
	"style":              true,
}

var paramPattern = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// Store 模板存储：内置模板加上加载时校验过的用户模板表
type Store struct {
	user map[string]*Template
}

// NewStore 创建模板存储
func NewStore() *Store {
	return &Store{user: make(map[string]*Template)}
}

// userTemplateFile 用户模板 TOML 文件结构
type userTemplateFile struct {
	Templates []Template `toml:"templates"`
}

// LoadUserTemplates 从 TOML 文件加载用户模板
// 占位符在加载时校验，未知参数直接拒绝，避免运行期才暴露拼写错误
func (s *Store) LoadUserTemplates(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read template file: %w", err)
	}

	var file userTemplateFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse template file %s: %w", path, err)
	}

	for i := range file.Templates {
		tpl := file.Templates[i]
		if tpl.Name == "" {
			return fmt.Errorf("template #%d in %s has no name", i+1, path)
		}
		if err := validateTemplate(&tpl); err != nil {
			return fmt.Errorf("template %q: %w", tpl.Name, err)
		}
		s.user[tpl.Name] = &tpl
	}

	return nil
}

// AddUserTemplate 注册单个用户模板（供测试和嵌入场景使用）
func (s *Store) AddUserTemplate(tpl *Template) error {
	if tpl == nil || tpl.Name == "" {
		return fmt.Errorf("template must have a name")
	}
	if err := validateTemplate(tpl); err != nil {
		return fmt.Errorf("template %q: %w", tpl.Name, err)
	}
	s.user[tpl.Name] = tpl
	return nil
}

// validateTemplate 校验模板占位符均在允许的参数集合内
func validateTemplate(tpl *Template) error {
	for _, text := range []string{tpl.System, tpl.User} {
		for _, m := range paramPattern.FindAllStringSubmatch(text, -1) {
			if !allowedParams[m[1]] {
				return fmt.Errorf("unknown template parameter {{%s}}", m[1])
			}
		}
	}
	return nil
}

// Resolve 按优先级解析任务使用的模板：
//  1. 任务附带的显式模板对象
//  2. 按名称请求的模板（先查用户模板，再查内置模板）
//  3. 风格对应的内置模板
//  4. 全局默认模板
//
// 只有显式按名称请求且两处都找不到时才返回 ErrTemplateNotFound
func (s *Store) Resolve(task *TaskConfig) (*Template, error) {
	if task.Template != nil {
		if err := validateTemplate(task.Template); err != nil {
			return nil, err
		}
		return task.Template, nil
	}

	if task.TemplateName != "" {
		if tpl, ok := s.user[task.TemplateName]; ok {
			return tpl, nil
		}
		if tpl, ok := builtinTemplates[TemplateID(task.TemplateName)]; ok {
			return tpl, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, task.TemplateName)
	}

	if id, ok := styleTemplates[task.Style]; ok {
		return builtinTemplates[id], nil
	}

	return builtinTemplates[TemplateStandard], nil
}
