// internal/utils/wordcount.go
package utils

import (
	"regexp"
	"strings"
)

// Markdown装饰符清理规则，保留正文文字
var (
	codeFenceRe    = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe   = regexp.MustCompile("`([^`]*)`")
	imageRe        = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkRe         = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headingRe      = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	blockquoteRe   = regexp.MustCompile(`(?m)^>\s?`)
	listMarkerRe   = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	emphasisChars  = strings.NewReplacer("**", "", "__", "", "*", "", "_", "", "~~", "", "~", "")
	horizontalRule = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
)

// StripMarkdown 去除Markdown标记，只留下可计数的正文
func StripMarkdown(text string) string {
	text = codeFenceRe.ReplaceAllString(text, " ")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = imageRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "")
	text = blockquoteRe.ReplaceAllString(text, "")
	text = horizontalRule.ReplaceAllString(text, "")
	text = listMarkerRe.ReplaceAllString(text, "")
	text = emphasisChars.Replace(text)
	return text
}

// isCJK 判断是否为CJK表意文字
func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // 基本区
		return true
	case r >= 0x3400 && r <= 0x4DBF: // 扩展A
		return true
	case r >= 0xF900 && r <= 0xFAFF: // 兼容表意文字
		return true
	}
	return false
}

// CountWords 中英混排字数统计：每个CJK字符计1，
// 其余文本按空白分词，每个词计1，两部分求和。
// 流式预览与最终产物使用同一实现，计数不会随流式完成而回退。
func CountWords(text string) int {
	text = StripMarkdown(text)
	if strings.TrimSpace(text) == "" {
		return 0
	}

	cjkCount := 0
	var latin strings.Builder

	for _, r := range text {
		if isCJK(r) {
			cjkCount++
			// CJK字符同时作为词边界
			latin.WriteRune(' ')
			continue
		}
		latin.WriteRune(r)
	}

	return cjkCount + len(strings.Fields(latin.String()))
}

// EstimatedReadTime 按每分钟200词估算阅读时长（分钟），向上取整，至少1分钟
func EstimatedReadTime(wordCount int) int {
	if wordCount <= 0 {
		return 0
	}
	minutes := (wordCount + 199) / 200
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
