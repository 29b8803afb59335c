package translation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// 后端输出的编号行模式。
// 某些提示词写法会诱导后端输出双重编号 "<seq>. <index>. text"，
// 此时第二个数字才是权威的行索引，解析器持续容忍这种形式。
var (
	doubleNumberPattern = regexp.MustCompile(`^\s*(\d+)\s*[.)]\s*(\d+)\s*[.)]\s+(.*)$`)
	singleNumberPattern = regexp.MustCompile(`^\s*(\d+)\s*[.)]\s*(.*)$`)
	blankLinePattern    = regexp.MustCompile(`\n\s*\n`)
)

// ParseResponse 从自由格式的后端输出中恢复每行译文
//
// 解析策略逐级降级：
//  1. 按空行切块，每块匹配行首编号（含双重编号形式），收集索引到译文的映射
//  2. 一个块都没匹配到时，按单个换行切分并按位置顺序对齐
//  3. 仍无结构时，整段输出作为第一个期望索引的译文
//
// 任何期望索引缺少译文时回填原文，绝不留空、绝不报错；
// 返回的译文切片长度恒等于 len(expected)，诊断信息随 notes 返回。
func ParseResponse(raw string, expected []int, sources []string) ([]string, []string) {
	results := make([]string, len(expected))
	var notes []string

	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	parsed := parseNumberedBlocks(raw)

	if len(parsed) == 0 {
		parsed = parseNumberedLines(raw, expected)
		if len(parsed) > 0 {
			notes = append(notes, "numbered blocks not found, matched translations by position")
		}
	}

	if len(parsed) == 0 {
		if text := strings.TrimSpace(raw); text != "" && len(expected) > 0 {
			parsed = map[int]string{expected[0]: text}
			notes = append(notes, "unstructured response, assigned entire text to first line")
		}
	}

	for i, index := range expected {
		if text, ok := parsed[index]; ok && strings.TrimSpace(text) != "" {
			results[i] = strings.TrimSpace(text)
			continue
		}
		// 回填原文，保证下游永远拿到与期望等长的结果
		if i < len(sources) {
			results[i] = sources[i]
		}
		notes = append(notes, fmt.Sprintf("line %d: no translation recovered, source text retained", index))
	}

	return results, notes
}

// parseNumberedBlocks 主策略：按空行切块并匹配行首编号
// 块内再次出现编号行时视为新条目，未编号的行作为上一条目的续行
// （字幕文本本身可以跨多个物理行）
func parseNumberedBlocks(raw string) map[int]string {
	parsed := make(map[int]string)

	for _, block := range blankLinePattern.Split(raw, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		current := -1
		for _, line := range strings.Split(block, "\n") {
			if index, text, ok := matchNumberedLine(line); ok {
				parsed[index] = strings.TrimSpace(text)
				current = index
				continue
			}
			if current >= 0 {
				parsed[current] = strings.TrimSpace(parsed[current] + "\n" + strings.TrimSpace(line))
			}
		}
	}

	return parsed
}

// parseNumberedLines 次级策略：按单个换行切分，剥掉编号前缀后按位置对齐
func parseNumberedLines(raw string, expected []int) map[int]string {
	var texts []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, text, ok := matchNumberedLine(line); ok {
			texts = append(texts, text)
		} else {
			texts = append(texts, line)
		}
	}

	if len(texts) == 0 {
		return nil
	}

	parsed := make(map[int]string, len(texts))
	for i, text := range texts {
		if i >= len(expected) {
			break
		}
		parsed[expected[i]] = text
	}
	return parsed
}

// matchNumberedLine 匹配编号行，双重编号时以第二个数字为准
func matchNumberedLine(line string) (int, string, bool) {
	if m := doubleNumberPattern.FindStringSubmatch(line); m != nil {
		index, err := strconv.Atoi(m[2])
		if err == nil {
			return index, m[3], true
		}
	}
	if m := singleNumberPattern.FindStringSubmatch(line); m != nil {
		index, err := strconv.Atoi(m[1])
		if err == nil {
			return index, m[2], true
		}
	}
	return 0, "", false
}
