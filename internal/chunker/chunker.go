// Package chunker 把文献文本切分为适合向量化的片段。
package chunker

import (
	"regexp"
	"strings"
)

const (
	// 单个片段的目标 token 上限
	targetTokens = 600
	// 相邻片段之间的尾部重叠比例
	overlapRatio = 0.3
)

var paragraphSep = regexp.MustCompile(`\n\s*\n`)

// Chunk 是一个待向量化的文本片段。Index 在一篇文献内从 0 递增。
type Chunk struct {
	Index      int
	Content    string
	TokenCount int
}

// EstimateTokens 用 "4 字符约等于 1 token" 的经验值估算 token 数，向上取整。
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// ChunkArticle 把标题与摘要合并为 "标题\n\n摘要" 后切分。
// 两者都为空时返回 nil，合并文本不超过目标长度时返回单个片段。
func ChunkArticle(title, abstract string) []Chunk {
	var parts []string
	if t := strings.TrimSpace(title); t != "" {
		parts = append(parts, t)
	}
	if a := strings.TrimSpace(abstract); a != "" {
		parts = append(parts, a)
	}
	return ChunkText(strings.Join(parts, "\n\n"))
}

// ChunkText 按段落累积切分文本，超长段落退化为按句子切分。
// 每个新片段以上一个片段的尾部重叠开头，保证语义连续；
// 单个句子本身超过目标长度时作为一个超长片段原子保留。
func ChunkText(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if EstimateTokens(text) <= targetTokens {
		return []Chunk{{Index: 0, Content: text, TokenCount: EstimateTokens(text)}}
	}

	type unit struct {
		text   string
		joiner string
	}
	var units []unit
	for _, p := range paragraphSep.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if EstimateTokens(p) <= targetTokens {
			units = append(units, unit{p, "\n\n"})
			continue
		}
		for _, s := range splitSentences(p) {
			units = append(units, unit{s, " "})
		}
	}

	var chunks []Chunk
	cur := ""
	curHasUnit := false

	emit := func() {
		content := strings.TrimSpace(cur)
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Content:    content,
			TokenCount: EstimateTokens(content),
		})
	}

	for _, u := range units {
		candidate := u.text
		if cur != "" {
			candidate = cur + u.joiner + u.text
		}

		if EstimateTokens(candidate) <= targetTokens {
			cur = candidate
			curHasUnit = true
			continue
		}

		if curHasUnit {
			emit()
			// 新片段以上一片段的尾部重叠开头
			if seed := overlapTail(cur); seed != "" && EstimateTokens(seed+" "+u.text) <= targetTokens {
				cur = seed + " " + u.text
			} else {
				cur = u.text
			}
			curHasUnit = true
			continue
		}

		// cur 只含重叠种子且放不下新单元：丢弃种子，单元独立成段
		cur = u.text
		curHasUnit = true
	}
	emit()

	return chunks
}

// overlapTail 返回 s 尾部约 30% 的内容，起点对齐到单词边界。
func overlapTail(s string) string {
	n := (len(s)*3 + 9) / 10
	if n >= len(s) {
		return ""
	}
	tail := s[len(s)-n:]
	if i := strings.IndexByte(tail, ' '); i >= 0 {
		tail = tail[i+1:]
	}
	return strings.TrimSpace(tail)
}

// splitSentences 在 [.!?]+空白 处切句。RE2 不支持后向断言，这里手动扫描。
func splitSentences(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p)-1; i++ {
		if (p[i] == '.' || p[i] == '!' || p[i] == '?') && isSpace(p[i+1]) {
			if s := strings.TrimSpace(p[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(p[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
