package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"

	"github.com/nerdneilsfield/go-subtrans-agent/internal/translator"
)

// previewWidth 问题列表中原文预览的最大显示宽度
const previewWidth = 36

// printSummary 打印任务结果汇总表和校验问题列表
func printSummary(result *translator.Result, elapsed time.Duration) {
	translated := 0
	scoreSum := 0.0
	scored := 0
	issues := 0
	for _, line := range result.Lines {
		if line.TranslatedText != "" {
			translated++
		}
		if line.Validation != nil {
			scoreSum += line.Validation.Score
			scored++
			if len(line.Validation.Errors) > 0 || len(line.Validation.Warnings) > 0 {
				issues++
			}
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Status", "Lines", "Translated", "Chunks", "Issues", "Avg Score", "Elapsed"})
	avgScore := "-"
	if scored > 0 {
		avgScore = fmt.Sprintf("%.1f", scoreSum/float64(scored))
	}
	t.AppendRow(table.Row{
		string(result.Status),
		len(result.Lines),
		translated,
		fmt.Sprintf("%d/%d", result.CompletedChunks, result.TotalChunks),
		issues,
		avgScore,
		elapsed.Round(time.Millisecond),
	})
	t.Render()

	if issues == 0 {
		return
	}

	it := table.NewWriter()
	it.SetOutputMirror(os.Stdout)
	it.AppendHeader(table.Row{"Line", "Score", "Source", "Problem"})
	for _, line := range result.Lines {
		if line.Validation == nil {
			continue
		}
		preview := runewidth.Truncate(line.SourceText(), previewWidth, "…")
		for _, msg := range line.Validation.Errors {
			it.AppendRow(table.Row{line.Index, fmt.Sprintf("%.0f", line.Validation.Score), preview, "error: " + msg})
		}
		for _, msg := range line.Validation.Warnings {
			it.AppendRow(table.Row{line.Index, fmt.Sprintf("%.0f", line.Validation.Score), preview, "warning: " + msg})
		}
	}
	it.Render()
}
