// internal/services/analysis_service_test.go
package services

import (
	"context"
	"strings"
	"testing"

	apperrors "github.com/inkweave/InterviewWeaver/internal/errors"
	"github.com/inkweave/InterviewWeaver/internal/models"
)

func TestAnalyzeSourcesRequiresContent(t *testing.T) {
	analysis := NewAnalysisService(NewSessionService(), newTestCompletionService(&fakeProvider{}))

	_, err := analysis.AnalyzeSources(context.Background())
	if !apperrors.IsInvalidInputError(err) {
		t.Fatalf("无素材时应返回InvalidInput, 实际: %v", err)
	}
}

func TestAnalyzeSourcesParsesResult(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{
		"summary": "创业者的十年经历",
		"key_topics": ["创业", "失败", "重建"],
		"suggested_questions": ["最初的动机是什么？"],
		"difficulty": "medium"
	}`}}

	session := NewSessionService()
	session.AddContentSource(models.SourceTypeText, "简历", "十年创业经历的详细记录……", nil)

	analysis := NewAnalysisService(session, newTestCompletionService(provider))
	result, err := analysis.AnalyzeSources(context.Background())
	if err != nil {
		t.Fatalf("分析失败: %v", err)
	}

	if result.Summary != "创业者的十年经历" {
		t.Errorf("摘要不符: %s", result.Summary)
	}
	if len(result.KeyTopics) != 3 {
		t.Errorf("主题数不符: %d", len(result.KeyTopics))
	}

	// 结果应已写入会话状态
	if stored := session.AnalysisResult(); stored == nil || stored.Summary != result.Summary {
		t.Error("分析结果应整体覆盖写入会话")
	}
	if session.StageState(StageAnalysis).Status != StageDone {
		t.Error("分析完成后阶段应为done")
	}
}

func TestAnalyzeSourcesFallbackOnGarbage(t *testing.T) {
	provider := &fakeProvider{responses: []string{"模型没有按要求输出JSON，只有这段文字。"}}

	longContent := strings.Repeat("这是很长的素材内容。", 50)
	session := NewSessionService()
	session.AddContentSource(models.SourceTypeText, "", longContent, nil)

	analysis := NewAnalysisService(session, newTestCompletionService(provider))
	result, err := analysis.AnalyzeSources(context.Background())
	if err != nil {
		t.Fatalf("解析失败不应上抛错误: %v", err)
	}

	// 兜底摘要取素材前200个字符
	if got := len([]rune(result.Summary)); got != 200 {
		t.Errorf("兜底摘要应截取前200字符, 实际: %d", got)
	}
	if !strings.HasPrefix(longContent, result.Summary) {
		t.Error("兜底摘要应来自素材原文")
	}
	if len(result.KeyTopics) == 0 || len(result.SuggestedQuestions) == 0 {
		t.Error("兜底结果应带通用主题与建议问题")
	}
}

func TestGeneratePreviewQuestionsRequiresAnalysis(t *testing.T) {
	analysis := NewAnalysisService(NewSessionService(), newTestCompletionService(&fakeProvider{}))

	_, err := analysis.GeneratePreviewQuestions(context.Background())
	if !apperrors.IsInvalidInputError(err) {
		t.Fatalf("未分析时应返回InvalidInput, 实际: %v", err)
	}
}

func TestGeneratePreviewQuestionsFromArray(t *testing.T) {
	provider := &fakeProvider{responses: []string{`[
		{"question": "最初为什么选择创业？", "category": "background", "purpose": "了解动机"},
		{"question": "失败后如何调整？", "category": "event", "purpose": "挖掘转折"},
		{"question": "", "category": "emotion", "purpose": "空问题应被过滤"}
	]`}}

	session := NewSessionService()
	session.SetAnalysisResult(&models.AnalysisResult{Summary: "摘要", KeyTopics: []string{"创业"}})

	analysis := NewAnalysisService(session, newTestCompletionService(provider))
	questions, err := analysis.GeneratePreviewQuestions(context.Background())
	if err != nil {
		t.Fatalf("生成预置问题失败: %v", err)
	}

	if len(questions) != 2 {
		t.Fatalf("空问题应被过滤, 实际数量: %d", len(questions))
	}
	if questions[0].Order != 1 || questions[1].Order != 2 {
		t.Error("问题应按顺序编号")
	}
	for _, q := range questions {
		if q.Consumed || q.Feedback != models.FeedbackUnset {
			t.Error("新生成的问题不应带消费或反馈标记")
		}
	}
}

func TestGeneratePreviewQuestionsSingleElementArray(t *testing.T) {
	// 单元素数组会被JSON抽取为内部对象，预置问题解析要能接住
	provider := &fakeProvider{responses: []string{`[
		{"question": "唯一的问题？", "category": "background", "purpose": "了解背景"}
	]`}}

	session := NewSessionService()
	session.SetAnalysisResult(&models.AnalysisResult{Summary: "摘要"})

	analysis := NewAnalysisService(session, newTestCompletionService(provider))
	questions, err := analysis.GeneratePreviewQuestions(context.Background())
	if err != nil {
		t.Fatalf("生成预置问题失败: %v", err)
	}

	if len(questions) != 1 {
		t.Fatalf("单元素数组不应得到空列表, 实际数量: %d", len(questions))
	}
	if questions[0].Question != "唯一的问题？" || questions[0].Category != "background" {
		t.Errorf("问题内容不符: %+v", questions[0])
	}
}

func TestGeneratePreviewQuestionsFromWrappedObject(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"questions": [
		{"question": "问题甲", "category": "", "purpose": ""}
	]}`}}

	session := NewSessionService()
	session.SetAnalysisResult(&models.AnalysisResult{Summary: "摘要"})

	analysis := NewAnalysisService(session, newTestCompletionService(provider))
	questions, err := analysis.GeneratePreviewQuestions(context.Background())
	if err != nil {
		t.Fatalf("生成预置问题失败: %v", err)
	}

	if len(questions) != 1 {
		t.Fatalf("包裹对象格式也应被接受, 实际数量: %d", len(questions))
	}
	if questions[0].Category != "general" {
		t.Errorf("缺失类目应回落general, 实际: %s", questions[0].Category)
	}
}
