// internal/utils/wordcount_test.go
package utils

import (
	"strings"
	"testing"
)

func TestCountWordsCJK(t *testing.T) {
	if got := CountWords("你好世界"); got != 4 {
		t.Errorf("纯中文按字计数, 期望4实际: %d", got)
	}
}

func TestCountWordsLatin(t *testing.T) {
	if got := CountWords("hello world again"); got != 3 {
		t.Errorf("英文按词计数, 期望3实际: %d", got)
	}
}

func TestCountWordsMixed(t *testing.T) {
	// 5个中文字 + 3个英文词，中文字符同时充当词边界
	if got := CountWords("我使用Go语言writing code"); got != 8 {
		t.Errorf("中英混排计数不符, 期望8实际: %d", got)
	}
}

func TestCountWordsEmpty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		if got := CountWords(text); got != 0 {
			t.Errorf("空白输入应计0, 输入%q实际: %d", text, got)
		}
	}
}

func TestCountWordsStripsMarkdown(t *testing.T) {
	text := "# 标题\n\n**加粗文字**和[链接文本](https://example.com)\n\n```\ncode block ignored\n```"
	// 标题2字 + 加粗文字4字 + 和1字 + 链接文本4字 = 11
	if got := CountWords(text); got != 11 {
		t.Errorf("Markdown装饰不应计入字数, 期望11实际: %d", got)
	}
}

func TestStripMarkdown(t *testing.T) {
	cases := []struct {
		in      string
		mustNot string
	}{
		{"![图](img.png)", "img.png"},
		{"[文](http://a.b)", "http://a.b"},
		{"## 标题", "##"},
		{"> 引用", ">"},
		{"- 列表项", "- "},
	}
	for _, tc := range cases {
		got := StripMarkdown(tc.in)
		if strings.Contains(got, tc.mustNot) {
			t.Errorf("StripMarkdown(%q) 仍残留 %q: %q", tc.in, tc.mustNot, got)
		}
	}
}

func TestEstimatedReadTime(t *testing.T) {
	cases := []struct{ words, want int }{
		{0, 0},
		{1, 1},
		{199, 1},
		{200, 1},
		{201, 2},
		{1000, 5},
	}
	for _, tc := range cases {
		if got := EstimatedReadTime(tc.words); got != tc.want {
			t.Errorf("EstimatedReadTime(%d) 期望%d实际: %d", tc.words, tc.want, got)
		}
	}
}

// 流式预览逐步拼接文本时，字数统计不应回退
func TestCountWordsMonotonicOnPrefixes(t *testing.T) {
	full := "流式生成的文本 with mixed language 内容会逐步变长"
	prev := 0
	for i := range full {
		if i == 0 {
			continue
		}
		count := CountWords(full[:i])
		if count < prev {
			t.Errorf("前缀计数回退: 位置%d从%d降到%d", i, prev, count)
		}
		prev = count
	}
}
