// internal/services/question_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkweave/InterviewWeaver/internal/models"
	"github.com/inkweave/InterviewWeaver/internal/utils"
)

// QuestionService 正式访谈问题生成
// 优先消费用户标记为good的预置问题，用尽后才调用模型动态生成
type QuestionService struct {
	Session    *SessionService
	Completion *CompletionService
}

// NewQuestionService 创建问题生成服务
func NewQuestionService(session *SessionService, completion *CompletionService) *QuestionService {
	return &QuestionService{
		Session:    session,
		Completion: completion,
	}
}

// NextQuestion 生成下一个访谈问题并追加进会话。
// 消费顺序：good且未消费的预置问题（等概率随机取）优先，没有候选时
// 走模型生成；模型输出解析失败则把原始文本包装为general类问题兜底。
func (s *QuestionService) NextQuestion(ctx context.Context) (*models.Question, error) {
	if err := s.Session.BeginStage(StageQuestion); err != nil {
		return nil, err
	}

	if picked := s.Session.PickGoodPreviewQuestion(); picked != nil {
		question := models.Question{
			ID:            "q_" + uuid.NewString(),
			Content:       picked.Question,
			Category:      picked.Category,
			Explanation:   picked.Purpose,
			Timestamp:     time.Now(),
			IsFromPreview: true,
		}
		s.Session.AppendQuestion(question)
		s.Session.FinishStage(StageQuestion)
		return &question, nil
	}

	raw, err := s.Completion.Complete(ctx, s.buildQuestionPrompt(), questionSystemPrompt, CompletionOptions{
		Temperature: 0.8,
		MaxTokens:   800,
		Stage:       StageQuestion,
	})
	if err != nil {
		s.Session.FailStage(StageQuestion, err)
		return nil, err
	}

	question := s.parseQuestion(raw)
	s.Session.AppendQuestion(question)
	s.Session.FinishStage(StageQuestion)

	return &question, nil
}

// NextQuestionStream 流式版本：动态生成时把增量经onChunk回调透出。
// 命中预置问题时不产生流式增量，直接返回完整问题。
func (s *QuestionService) NextQuestionStream(ctx context.Context, onChunk func(delta, accumulated string)) (*models.Question, error) {
	if err := s.Session.BeginStage(StageQuestion); err != nil {
		return nil, err
	}

	if picked := s.Session.PickGoodPreviewQuestion(); picked != nil {
		question := models.Question{
			ID:            "q_" + uuid.NewString(),
			Content:       picked.Question,
			Category:      picked.Category,
			Explanation:   picked.Purpose,
			Timestamp:     time.Now(),
			IsFromPreview: true,
		}
		s.Session.AppendQuestion(question)
		s.Session.FinishStage(StageQuestion)
		return &question, nil
	}

	raw, err := s.Completion.CompleteStreaming(ctx, s.buildQuestionPrompt(), questionSystemPrompt, CompletionOptions{
		Temperature: 0.8,
		MaxTokens:   800,
		Stage:       StageQuestion,
	}, func(delta, accumulated string) {
		s.Session.SetStreaming(StageQuestion, accumulated)
		if onChunk != nil {
			onChunk(delta, accumulated)
		}
	})
	if err != nil {
		s.Session.FailStage(StageQuestion, err)
		return nil, err
	}

	question := s.parseQuestion(raw)
	s.Session.AppendQuestion(question)
	s.Session.FinishStage(StageQuestion)

	return &question, nil
}

// parseQuestion 解析模型输出。JSON解析失败时把原始文本作为问题内容，
// 类目记为general，访谈流程不因解析失败中断。
func (s *QuestionService) parseQuestion(raw string) models.Question {
	var parsed struct {
		Question    string `json:"question"`
		Category    string `json:"category"`
		Explanation string `json:"explanation"`
		Tone        string `json:"tone"`
		IsFollowUp  bool   `json:"is_follow_up"`
	}

	question := models.Question{
		ID:        "q_" + uuid.NewString(),
		Timestamp: time.Now(),
	}

	if _, err := ExtractObjectInto(raw, &parsed); err == nil && strings.TrimSpace(parsed.Question) != "" {
		question.Content = strings.TrimSpace(parsed.Question)
		question.Category = parsed.Category
		question.Explanation = parsed.Explanation
		question.Tone = parsed.Tone
		question.IsFollowUp = parsed.IsFollowUp
		if question.Category == "" {
			question.Category = "general"
		}
		return question
	}

	utils.GetLogger().Warn("问题输出解析失败，原始文本兜底", map[string]interface{}{
		"raw_length": len(raw),
	})
	question.Content = strings.TrimSpace(raw)
	question.Category = "general"
	return question
}

const questionSystemPrompt = `你是一位经验丰富的访谈记者，擅长根据已有对话自然地提出下一个问题。
问题要贴合受访者上一个回答，有追问深度，避免重复已问过的内容。只输出JSON，不要附加解释。`

// buildQuestionPrompt 组装动态生成的上下文：素材摘要、反馈偏好、已有问答
func (s *QuestionService) buildQuestionPrompt() string {
	var sb strings.Builder

	if analysis := s.Session.AnalysisResult(); analysis != nil {
		sb.WriteString(fmt.Sprintf("素材摘要：%s\n", analysis.Summary))
		if len(analysis.KeyTopics) > 0 {
			sb.WriteString(fmt.Sprintf("关键主题：%s\n", strings.Join(analysis.KeyTopics, "、")))
		}
	}

	// 用户对预置问题的好/差反馈作为风格引导
	var liked, disliked []string
	for _, pq := range s.Session.PreviewQuestions() {
		switch pq.Feedback {
		case models.FeedbackGood:
			liked = append(liked, pq.Question)
		case models.FeedbackBad:
			disliked = append(disliked, pq.Question)
		}
	}
	if len(liked) > 0 {
		sb.WriteString(fmt.Sprintf("\n用户喜欢这类问题：\n- %s\n", strings.Join(liked, "\n- ")))
	}
	if len(disliked) > 0 {
		sb.WriteString(fmt.Sprintf("\n用户不喜欢这类问题，避免类似风格：\n- %s\n", strings.Join(disliked, "\n- ")))
	}

	questions := s.Session.Questions()
	answers := s.Session.Answers()

	if len(questions) > 0 {
		sb.WriteString("\n已进行的问答：\n")
		for i, q := range questions {
			sb.WriteString(fmt.Sprintf("问%d：%s\n", i+1, q.Content))
			if answer, ok := answers[q.ID]; ok {
				if answer.IsSkipped() {
					sb.WriteString("答：（受访者选择跳过，换个角度提问）\n")
				} else {
					sb.WriteString(fmt.Sprintf("答：%s\n", answer.Content))
				}
			}
		}
	} else {
		sb.WriteString("\n访谈刚开始，请提出一个自然的开场问题。\n")
	}

	sb.WriteString(`
请生成下一个访谈问题，严格按以下JSON格式输出：
{
  "question": "问题内容",
  "category": "background|event|emotion|reflection|general",
  "explanation": "提出该问题的意图",
  "tone": "问题的语气，如 gentle|curious|probing",
  "is_follow_up": 是否为对上一回答的追问
}`)

	return sb.String()
}
