package translation

import (
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/subtitle"
)

// SplitLines 将有序字幕行划分为连续的块
// 每块最多 chunkSize 行，前后各附带最多 contextWindow 行只读上下文；
// 划分是确定性的，相同输入总是得到相同的块边界。
// TranslatedHistory 不在此处填充，由编排器在上一块翻译完成后通过
// AttachHistory 挂接，保证历史窗口只携带恰好一块的译文。
func SplitLines(lines []*subtitle.Line, chunkSize, contextWindow int) []*Chunk {
	if len(lines) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}
	if contextWindow < 0 {
		contextWindow = 0
	}

	chunks := make([]*Chunk, 0, (len(lines)+chunkSize-1)/chunkSize)
	for start := 0; start < len(lines); start += chunkSize {
		end := start + chunkSize
		if end > len(lines) {
			end = len(lines)
		}

		ctxStart := start - contextWindow
		if ctxStart < 0 {
			ctxStart = 0
		}
		ctxEnd := end + contextWindow
		if ctxEnd > len(lines) {
			ctxEnd = len(lines)
		}

		chunks = append(chunks, &Chunk{
			Lines:         lines[start:end],
			ContextBefore: lines[ctxStart:start],
			ContextAfter:  lines[end:ctxEnd],
		})
	}

	return chunks
}

// AttachHistory 将上一块已翻译的行挂接为本块的滑动历史窗口
func (c *Chunk) AttachHistory(prev *Chunk) {
	if prev == nil {
		c.TranslatedHistory = nil
		return
	}
	c.TranslatedHistory = prev.Lines
}
