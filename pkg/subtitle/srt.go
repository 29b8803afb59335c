package subtitle

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// timeLinePattern 匹配 SRT 时间轴行，毫秒分隔符兼容逗号和点号
var timeLinePattern = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}[,.]\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2}[,.]\d{3})`)

// ParseSRT 解析 SRT 格式字幕
// 残缺的块（缺序号、缺时间轴）跳过不报错，只有完全无法解析出任何行时返回错误
func ParseSRT(r io.Reader) ([]*Line, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read subtitle input: %w", err)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")
	blocks := strings.Split(text, "\n\n")

	var lines []*Line
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		parts := strings.Split(block, "\n")
		if len(parts) < 2 {
			continue
		}

		index, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}

		tm := timeLinePattern.FindStringSubmatch(parts[1])
		if len(tm) != 3 {
			continue
		}
		start, err := ParseTimestamp(tm[1])
		if err != nil {
			continue
		}
		end, err := ParseTimestamp(tm[2])
		if err != nil {
			continue
		}

		raw := ""
		if len(parts) > 2 {
			raw = strings.Join(parts[2:], "\n")
		}
		lines = append(lines, NewLine(index, start, end, raw))
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("no subtitle entries found")
	}
	return lines, nil
}

// FormatSRT 序列化为 SRT 格式
// translated 为 true 时输出译文（标记已回插），否则输出原文
func FormatSRT(lines []*Line, translated bool) string {
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strconv.Itoa(line.Index))
		sb.WriteString("\n")
		sb.WriteString(line.Start.String())
		sb.WriteString(" --> ")
		sb.WriteString(line.End.String())
		sb.WriteString("\n")
		if translated {
			sb.WriteString(line.OutputText())
		} else {
			sb.WriteString(line.RawText())
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
