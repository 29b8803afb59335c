package translation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/nerdneilsfield/go-subtrans-agent/pkg/subtitle"
)

// 各项检查的扣分权重，满分100
const (
	weightLengthRatio      = 15
	weightGlossaryWarn     = 10
	weightGlossaryError    = 30
	weightForbiddenWarn    = 5
	weightForbiddenError   = 25
	weightPlaceholderLoss  = 30
	weightPunctuation      = 5
	weightSimilarity       = 20
	lengthRatioLowerBound  = 0.3
	lengthRatioUpperBound  = 3.0
	basicScoreThreshold    = 50
	strictScoreThreshold   = 70
	similarityMinRuneCount = 12
)

// placeholderPattern 匹配 {name} 形式的占位符令牌
var placeholderPattern = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)

// Validate 对单行译文做质量校验
// 各项检查独立评估并从100分起累计扣分；除空译文外任何问题都不阻断输出，
// 结果仅作为注解挂在字幕行上
func Validate(source, translated string, level ValidationLevel, glossary map[string]string, forbidden []string) *subtitle.ValidationResult {
	result := &subtitle.ValidationResult{IsValid: true, Score: 100}

	if level == ValidationNone {
		return result
	}
	if strings.TrimSpace(source) == "" {
		// 没有可翻译内容，无从校验
		return result
	}

	if strings.TrimSpace(translated) == "" {
		result.IsValid = false
		result.Score = 0
		result.Errors = append(result.Errors, "translation is empty")
		return result
	}

	strict := level == ValidationStrict

	checkLengthRatio(source, translated, result)
	checkGlossary(source, translated, glossary, strict, result)
	checkForbiddenTerms(translated, forbidden, strict, result)
	checkPlaceholders(source, translated, result)
	checkPunctuation(source, translated, result)
	checkSimilarity(source, translated, strict, result)

	if result.Score < 0 {
		result.Score = 0
	}

	threshold := float64(basicScoreThreshold)
	if strict {
		threshold = strictScoreThreshold
	}
	result.IsValid = len(result.Errors) == 0 && result.Score >= threshold

	return result
}

// checkLengthRatio 译文与原文长度比超出合理区间时告警
func checkLengthRatio(source, translated string, result *subtitle.ValidationResult) {
	srcLen := utf8.RuneCountInString(source)
	dstLen := utf8.RuneCountInString(translated)
	if srcLen == 0 {
		return
	}

	ratio := float64(dstLen) / float64(srcLen)
	if ratio < lengthRatioLowerBound || ratio > lengthRatioUpperBound {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("length ratio %.2f outside [%.1f, %.1f]", ratio, lengthRatioLowerBound, lengthRatioUpperBound))
		result.Score -= weightLengthRatio
	}
}

// checkGlossary 原文出现术语表中的源术语时，译文必须包含对应的目标术语
func checkGlossary(source, translated string, glossary map[string]string, strict bool, result *subtitle.ValidationResult) {
	lowerSource := strings.ToLower(source)
	lowerTranslated := strings.ToLower(translated)

	for term, target := range glossary {
		if term == "" || target == "" {
			continue
		}
		if !strings.Contains(lowerSource, strings.ToLower(term)) {
			continue
		}
		if strings.Contains(lowerTranslated, strings.ToLower(target)) {
			continue
		}

		msg := fmt.Sprintf("glossary term %q should be translated as %q", term, target)
		if strict {
			result.Errors = append(result.Errors, msg)
			result.Score -= weightGlossaryError
		} else {
			result.Warnings = append(result.Warnings, msg)
			result.Score -= weightGlossaryWarn
		}
	}
}

// checkForbiddenTerms 译文不得包含禁用词
func checkForbiddenTerms(translated string, forbidden []string, strict bool, result *subtitle.ValidationResult) {
	lowerTranslated := strings.ToLower(translated)

	for _, term := range forbidden {
		if term == "" || !strings.Contains(lowerTranslated, strings.ToLower(term)) {
			continue
		}

		msg := fmt.Sprintf("translation contains forbidden term %q", term)
		if strict {
			result.Errors = append(result.Errors, msg)
			result.Score -= weightForbiddenError
		} else {
			result.Warnings = append(result.Warnings, msg)
			result.Score -= weightForbiddenWarn
		}
	}
}

// checkPlaceholders 原文中的 {name} 占位符必须原样出现在译文中
// 占位符丢失在任何级别都是错误
func checkPlaceholders(source, translated string, result *subtitle.ValidationResult) {
	for _, placeholder := range placeholderPattern.FindAllString(source, -1) {
		if strings.Contains(translated, placeholder) {
			continue
		}
		result.Errors = append(result.Errors,
			fmt.Sprintf("placeholder %s missing from translation", placeholder))
		result.Score -= weightPlaceholderLoss
	}
}

// checkPunctuation 原文是疑问句而译文没有任何问号时告警
func checkPunctuation(source, translated string, result *subtitle.ValidationResult) {
	sourceHas := strings.ContainsAny(source, "?？")
	translatedHas := strings.ContainsAny(translated, "?？")
	if sourceHas && !translatedHas {
		result.Warnings = append(result.Warnings, "source is a question but translation has no question mark")
		result.Score -= weightPunctuation
	}
}

// checkSimilarity 译文与原文几乎相同通常意味着后端原样回显了输入
// 过短的行跳过检查，避免 "OK" 这类本来就同形的行误报
func checkSimilarity(source, translated string, strict bool, result *subtitle.ValidationResult) {
	srcLen := utf8.RuneCountInString(source)
	if srcLen < similarityMinRuneCount {
		return
	}

	distance := fuzzy.LevenshteinDistance(source, translated)
	if distance > srcLen/10 {
		return
	}

	msg := "translation is nearly identical to source text"
	if strict {
		result.Errors = append(result.Errors, msg)
	} else {
		result.Warnings = append(result.Warnings, msg)
	}
	result.Score -= weightSimilarity
}
