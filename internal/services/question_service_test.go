// internal/services/question_service_test.go
package services

import (
	"context"
	"strings"
	"testing"

	"github.com/inkweave/InterviewWeaver/internal/models"
)

func TestNextQuestionConsumesPreviewFirst(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"question": "模型生成的问题", "category": "event"}`}}
	session := NewSessionService()
	session.SetPreviewQuestions([]models.PreviewQuestion{
		{Order: 1, Question: "预置的好问题", Category: "background", Purpose: "开场", Feedback: models.FeedbackGood},
	})

	question := NewQuestionService(session, newTestCompletionService(provider))
	ctx := context.Background()

	first, err := question.NextQuestion(ctx)
	if err != nil {
		t.Fatalf("生成问题失败: %v", err)
	}
	if !first.IsFromPreview {
		t.Error("有good预置问题时应优先消费")
	}
	if first.Content != "预置的好问题" {
		t.Errorf("问题内容不符: %s", first.Content)
	}
	if !strings.HasPrefix(first.ID, "q_") {
		t.Errorf("问题ID格式不符: %s", first.ID)
	}
	if provider.calls() != 0 {
		t.Error("消费预置问题时不应调用模型")
	}

	// 预置耗尽后转模型生成
	second, err := question.NextQuestion(ctx)
	if err != nil {
		t.Fatalf("生成问题失败: %v", err)
	}
	if second.IsFromPreview {
		t.Error("预置耗尽后应由模型生成")
	}
	if second.Content != "模型生成的问题" {
		t.Errorf("问题内容不符: %s", second.Content)
	}
	if second.ID == first.ID {
		t.Error("问题ID应唯一")
	}
}

func TestNextQuestionRawTextFallback(t *testing.T) {
	provider := &fakeProvider{responses: []string{"你最难忘的一次经历是什么？（模型没有输出JSON）"}}
	session := NewSessionService()

	question := NewQuestionService(session, newTestCompletionService(provider))

	q, err := question.NextQuestion(context.Background())
	if err != nil {
		t.Fatalf("解析失败不应上抛错误: %v", err)
	}
	if q.Category != "general" {
		t.Errorf("兜底问题类目应为general, 实际: %s", q.Category)
	}
	if !strings.Contains(q.Content, "你最难忘的一次经历是什么") {
		t.Errorf("兜底应使用原始文本: %s", q.Content)
	}

	// 兜底问题同样进入会话
	if len(session.Questions()) != 1 {
		t.Error("兜底问题应追加进会话")
	}
}

func TestNextQuestionBadFeedbackNotConsumed(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"question": "动态问题", "category": "event"}`}}
	session := NewSessionService()
	session.SetPreviewQuestions([]models.PreviewQuestion{
		{Order: 1, Question: "被差评的问题", Feedback: models.FeedbackBad},
		{Order: 2, Question: "无反馈的问题"},
	})

	question := NewQuestionService(session, newTestCompletionService(provider))

	q, err := question.NextQuestion(context.Background())
	if err != nil {
		t.Fatalf("生成问题失败: %v", err)
	}
	if q.IsFromPreview {
		t.Error("没有good问题时不应消费预置列表")
	}
	for _, pq := range session.PreviewQuestions() {
		if pq.Consumed {
			t.Errorf("非good问题不应被消费: %s", pq.Question)
		}
	}
}

func TestNextQuestionStreamRelaysChunks(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"question": "流式生成的问题", "category": "reflection", "is_follow_up": true}`}}
	session := NewSessionService()

	question := NewQuestionService(session, newTestCompletionService(provider))

	var chunks int
	q, err := question.NextQuestionStream(context.Background(), func(delta, accumulated string) {
		chunks++
	})
	if err != nil {
		t.Fatalf("流式生成失败: %v", err)
	}
	if chunks == 0 {
		t.Error("动态生成应透出流式增量")
	}
	if q.Content != "流式生成的问题" {
		t.Errorf("问题内容不符: %s", q.Content)
	}
	if !q.IsFollowUp {
		t.Error("追问标记应被解析")
	}
	if session.StageState(StageQuestion).Status != StageDone {
		t.Error("生成完成后阶段应为done")
	}
}

func TestQuestionPromptCarriesFeedbackSteering(t *testing.T) {
	session := NewSessionService()
	session.SetAnalysisResult(&models.AnalysisResult{Summary: "摘要", KeyTopics: []string{"创业"}})
	session.SetPreviewQuestions([]models.PreviewQuestion{
		{Order: 1, Question: "喜欢的问题", Feedback: models.FeedbackGood, Consumed: true},
		{Order: 2, Question: "讨厌的问题", Feedback: models.FeedbackBad},
	})

	q := newQuestion("q_1", "第一个问题")
	session.AppendQuestion(q)
	session.SkipAnswer(q.ID)

	question := NewQuestionService(session, newTestCompletionService(&fakeProvider{}))
	prompt := question.buildQuestionPrompt()

	if !strings.Contains(prompt, "喜欢的问题") {
		t.Error("提示词应携带用户喜欢的问题样例")
	}
	if !strings.Contains(prompt, "讨厌的问题") {
		t.Error("提示词应携带用户不喜欢的问题样例")
	}
	if !strings.Contains(prompt, "跳过") {
		t.Error("跳过的问题应提示换角度提问")
	}
}
