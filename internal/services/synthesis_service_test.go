// internal/services/synthesis_service_test.go
package services

import (
	"context"
	"strings"
	"testing"

	apperrors "github.com/inkweave/InterviewWeaver/internal/errors"
	"github.com/inkweave/InterviewWeaver/internal/models"
)

func answeredSession(t *testing.T) *SessionService {
	t.Helper()
	session := NewSessionService()
	session.StartInterview()

	pairs := []struct{ q, a string }{
		{"最早是怎么接触这个行业的？", "大学实习时偶然进入。"},
		{"转折点发生在什么时候？", "2019年项目失败之后。"},
		{"当时最大的困难是什么？", "团队士气和资金同时见底。"},
	}
	for i, pair := range pairs {
		q := newQuestion(string(rune('a'+i)), pair.q)
		session.AppendQuestion(q)
		session.SubmitAnswer(q.ID, pair.a)
	}

	// 跳过的问题不应出现在访谈记录里
	skipped := newQuestion("skipped", "不想回答的问题")
	session.AppendQuestion(skipped)
	session.SkipAnswer(skipped.ID)

	return session
}

func TestBuildDraftRequiresAllSections(t *testing.T) {
	outline := &models.Outline{
		Title: "测试",
		Sections: []models.OutlineSection{
			{SectionNumber: 1}, {SectionNumber: 2}, {SectionNumber: 3},
		},
	}

	if draft := BuildDraft(outline, map[int]string{0: "一", 2: "三"}); draft != nil {
		t.Error("章节缺失时应返回nil")
	}
	if draft := BuildDraft(outline, map[int]string{0: "一", 1: "  ", 2: "三"}); draft != nil {
		t.Error("空白章节应视为缺失")
	}
	if draft := BuildDraft(nil, map[int]string{}); draft != nil {
		t.Error("无提纲时应返回nil")
	}
}

func TestBuildDraftJoinsWithBlankLine(t *testing.T) {
	outline := &models.Outline{
		Sections: []models.OutlineSection{{SectionNumber: 1}, {SectionNumber: 2}},
	}
	sections := map[int]string{0: "第一章内容", 1: "第二章内容"}

	draft := BuildDraft(outline, sections)
	if draft == nil {
		t.Fatal("章节齐全时应生成初稿")
	}
	if draft.Content != "第一章内容\n\n第二章内容" {
		t.Errorf("章节应以空行分隔拼接, 实际: %q", draft.Content)
	}
	if draft.SectionsCount != 2 || draft.TotalSections != 2 {
		t.Errorf("章节计数不符: %d/%d", draft.SectionsCount, draft.TotalSections)
	}
	if draft.WordCount != 10 {
		t.Errorf("字数统计不符, 期望10实际: %d", draft.WordCount)
	}

	// 纯函数：同样输入再次推导得到同样内容
	again := BuildDraft(outline, sections)
	if again.Content != draft.Content {
		t.Error("相同输入应得到相同初稿")
	}
}

func TestPolishRequiresDraft(t *testing.T) {
	session := answeredSession(t)
	synthesis := NewSynthesisService(session, newTestCompletionService(&fakeProvider{}))

	_, err := synthesis.Polish(context.Background(), "default", nil)
	if !apperrors.IsInvalidInputError(err) {
		t.Fatalf("没有初稿时润色应返回InvalidInput, 实际: %v", err)
	}
}

func TestOutlinePipeline(t *testing.T) {
	outlineJSON := `{
		"title": "一次创业的十年",
		"total_sections": 99,
		"sections": [
			{"section_number": 1, "title": "入行", "theme": "起点", "key_points": ["实习"]},
			{"section_number": 2, "title": "低谷", "theme": "失败", "key_points": ["项目失败"]},
			{"section_number": 3, "title": "转机", "theme": "重建", "key_points": ["新团队"]},
			{"section_number": 4, "title": "回望", "theme": "感悟", "key_points": ["经验"]}
		]
	}`
	provider := &fakeProvider{responses: []string{
		outlineJSON,
		"第一章正文。", "第二章正文。", "第三章正文。", "第四章正文。",
	}}

	session := answeredSession(t)
	synthesis := NewSynthesisService(session, newTestCompletionService(provider))
	ctx := context.Background()

	outline, err := synthesis.GenerateOutline(ctx, "literary", nil)
	if err != nil {
		t.Fatalf("生成提纲失败: %v", err)
	}
	if outline.SectionCount() != 4 {
		t.Fatalf("章节数应以sections实际长度为准, 实际: %d", outline.SectionCount())
	}
	if outline.TotalSections != 4 {
		t.Errorf("TotalSections应被修正为实际章节数, 实际: %d", outline.TotalSections)
	}
	if state, _ := session.ResultState(); state.CurrentStyle != "literary" {
		t.Errorf("生成提纲时选定的风格应被记录, 实际: %s", state.CurrentStyle)
	}

	var progress []int
	err = synthesis.GenerateAllSections(ctx, func(current, total int) {
		if total != 4 {
			t.Errorf("进度回调的总数不符: %d", total)
		}
		progress = append(progress, current)
	}, nil)
	if err != nil {
		t.Fatalf("批量生成章节失败: %v", err)
	}
	if len(progress) != 4 || progress[3] != 4 {
		t.Errorf("进度回调序列不符: %v", progress)
	}

	draft, err := synthesis.MergeDraft()
	if err != nil {
		t.Fatalf("合并初稿失败: %v", err)
	}
	if draft.SectionsCount != 4 {
		t.Errorf("初稿章节计数不符: %d", draft.SectionsCount)
	}
	if !strings.Contains(draft.Content, "第一章正文。\n\n第二章正文。") {
		t.Errorf("初稿拼接不符: %q", draft.Content)
	}
}

func TestPolishKeepsStylesIndependent(t *testing.T) {
	session := answeredSession(t)
	session.SetOutline(&models.Outline{Sections: []models.OutlineSection{{SectionNumber: 1}}})
	session.SetSection(0, "唯一一章的内容。")

	provider := &fakeProvider{responses: []string{"标准风格成稿。", "技术风格成稿。"}}
	synthesis := NewSynthesisService(session, newTestCompletionService(provider))
	ctx := context.Background()

	if _, err := synthesis.MergeDraft(); err != nil {
		t.Fatalf("合并初稿失败: %v", err)
	}

	if _, err := synthesis.Polish(ctx, "default", nil); err != nil {
		t.Fatalf("default润色失败: %v", err)
	}
	if _, err := synthesis.Polish(ctx, "tech", nil); err != nil {
		t.Fatalf("tech润色失败: %v", err)
	}

	result, err := session.ResultState()
	if err != nil {
		t.Fatalf("读取成稿状态失败: %v", err)
	}

	if result.FinalScripts["default"] == nil || result.FinalScripts["default"].Content != "标准风格成稿。" {
		t.Error("tech润色不应影响default成稿")
	}
	if result.FinalScripts["tech"] == nil {
		t.Error("tech成稿应独立保存")
	}
	if result.CurrentStyle != "tech" {
		t.Errorf("当前风格应为最后润色的风格, 实际: %s", result.CurrentStyle)
	}
}

func TestQuickScriptIndependentOfOutlineArtifacts(t *testing.T) {
	session := answeredSession(t)
	session.SetFinalScript("default", &models.StyledScript{Content: "提纲模式成稿", Style: "default"})

	provider := &fakeProvider{responses: []string{"快速成稿内容。"}}
	synthesis := NewSynthesisService(session, newTestCompletionService(provider))

	script, err := synthesis.GenerateQuickScript(context.Background(), "qa", nil)
	if err != nil {
		t.Fatalf("快速成稿失败: %v", err)
	}
	if script.Style != "qa" {
		t.Errorf("风格记录不符: %s", script.Style)
	}
	if script.EstimatedReadTime < 1 {
		t.Error("成稿应带阅读时长估算")
	}

	result, err := session.ResultState()
	if err != nil {
		t.Fatalf("读取成稿状态失败: %v", err)
	}
	if result.InterviewScripts["qa"] == nil {
		t.Error("快速成稿应写入独立的产物表")
	}
	if result.FinalScripts["default"] == nil {
		t.Error("快速成稿不应清除提纲模式产物")
	}
}

func TestQuickScriptWithoutTranscript(t *testing.T) {
	synthesis := NewSynthesisService(NewSessionService(), newTestCompletionService(&fakeProvider{}))

	_, err := synthesis.GenerateQuickScript(context.Background(), "default", nil)
	if !apperrors.IsInvalidInputError(err) {
		t.Fatalf("没有访谈记录时应返回InvalidInput, 实际: %v", err)
	}
}

func TestUnknownStyleFallsBackToDefault(t *testing.T) {
	profile := StyleFor("nonexistent")
	if profile.Name != "default" {
		t.Errorf("未知风格应回落default, 实际: %s", profile.Name)
	}
}

func TestStyleTemperatures(t *testing.T) {
	cases := map[string]float32{
		"default":   0.7,
		"qa":        0.3,
		"emotional": 0.9,
		"tech":      0.3,
		"literary":  0.8,
		"business":  0.4,
	}
	for name, want := range cases {
		if got := StyleFor(name).Temperature; got != want {
			t.Errorf("风格 %s 温度不符: 期望%.1f实际%.1f", name, want, got)
		}
	}
}

func TestGenerateSectionIndexOutOfRange(t *testing.T) {
	session := answeredSession(t)
	session.SetOutline(&models.Outline{Sections: []models.OutlineSection{{SectionNumber: 1}}})

	synthesis := NewSynthesisService(session, newTestCompletionService(&fakeProvider{}))

	if _, err := synthesis.GenerateSection(context.Background(), 5, nil); !apperrors.IsInvalidInputError(err) {
		t.Errorf("越界章节应返回InvalidInput, 实际: %v", err)
	}
}
