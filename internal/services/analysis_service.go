// internal/services/analysis_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/inkweave/InterviewWeaver/internal/errors"
	"github.com/inkweave/InterviewWeaver/internal/models"
	"github.com/inkweave/InterviewWeaver/internal/utils"
)

// AnalysisService 内容分析：从背景素材中提炼摘要、主题和候选问题
type AnalysisService struct {
	Session    *SessionService
	Completion *CompletionService
}

// NewAnalysisService 创建内容分析服务
func NewAnalysisService(session *SessionService, completion *CompletionService) *AnalysisService {
	return &AnalysisService{
		Session:    session,
		Completion: completion,
	}
}

// AnalyzeSources 分析全部已添加素材并覆盖写入分析结果。
// 素材为空返回InvalidInput；模型输出无法解析时以启发式兜底结果收尾，
// 不把解析失败暴露给调用方。
func (s *AnalysisService) AnalyzeSources(ctx context.Context) (*models.AnalysisResult, error) {
	sources := s.Session.Sources()
	if len(sources) == 0 {
		return nil, apperrors.NewInvalidInputError("尚未添加任何背景素材", nil)
	}

	if err := s.Session.BeginStage(StageAnalysis); err != nil {
		return nil, err
	}

	combined := combineSources(sources)
	prompt := buildAnalysisPrompt(combined)

	raw, err := s.Completion.Complete(ctx, prompt, analysisSystemPrompt, CompletionOptions{
		Temperature: 0.3,
		MaxTokens:   2000,
		Stage:       StageAnalysis,
	})
	if err != nil {
		s.Session.FailStage(StageAnalysis, err)
		return nil, err
	}

	result := parseAnalysisResult(raw, combined)
	s.Session.SetAnalysisResult(result)
	s.Session.FinishStage(StageAnalysis)

	return result, nil
}

// parseAnalysisResult 解析模型输出，失败时退化为启发式结果
func parseAnalysisResult(raw, combined string) *models.AnalysisResult {
	var result models.AnalysisResult
	if _, err := ExtractObjectInto(raw, &result); err == nil && result.Summary != "" {
		if result.KeyTopics == nil {
			result.KeyTopics = []string{}
		}
		if result.SuggestedQuestions == nil {
			result.SuggestedQuestions = []string{}
		}
		return &result
	}

	utils.GetLogger().Warn("内容分析输出解析失败，使用启发式兜底结果", map[string]interface{}{
		"raw_length": len(raw),
	})
	return fallbackAnalysisResult(combined)
}

// fallbackAnalysisResult 启发式兜底：摘要取素材前200个字符，
// 主题与建议问题使用通用预设
func fallbackAnalysisResult(combined string) *models.AnalysisResult {
	summary := combined
	runes := []rune(summary)
	if len(runes) > 200 {
		summary = string(runes[:200])
	}

	return &models.AnalysisResult{
		Summary:   strings.TrimSpace(summary),
		KeyTopics: []string{"个人经历", "关键转折", "经验感悟"},
		SuggestedQuestions: []string{
			"能先简单介绍一下这段经历的背景吗？",
			"这段经历中最让你印象深刻的时刻是什么？",
			"回头看，这段经历给你带来了什么改变？",
		},
		Difficulty: "medium",
	}
}

// GeneratePreviewQuestions 基于分析结果生成预置问题列表供用户筛选。
// 需要先完成内容分析；解析失败时返回空列表而不是错误。
func (s *AnalysisService) GeneratePreviewQuestions(ctx context.Context) ([]models.PreviewQuestion, error) {
	analysis := s.Session.AnalysisResult()
	if analysis == nil {
		return nil, apperrors.NewInvalidInputError("请先完成内容分析", nil)
	}

	if err := s.Session.BeginStage(StagePreview); err != nil {
		return nil, err
	}

	prompt := buildPreviewPrompt(analysis)

	raw, err := s.Completion.Complete(ctx, prompt, previewSystemPrompt, CompletionOptions{
		Temperature: 0.7,
		MaxTokens:   2500,
		Stage:       StagePreview,
	})
	if err != nil {
		s.Session.FailStage(StagePreview, err)
		return nil, err
	}

	questions := parsePreviewQuestions(raw)
	s.Session.SetPreviewQuestions(questions)
	s.Session.FinishStage(StagePreview)

	return questions, nil
}

type previewItem struct {
	Question string `json:"question"`
	Category string `json:"category"`
	Purpose  string `json:"purpose"`
}

func parsePreviewQuestions(raw string) []models.PreviewQuestion {
	extracted := ExtractJSON(raw)

	var items []previewItem

	switch extracted.Kind {
	case ExtractArray:
		if json.Unmarshal([]byte(extracted.JSON), &items) != nil {
			items = nil
		}
	case ExtractObject:
		var wrapper struct {
			Questions []previewItem `json:"questions"`
		}
		if json.Unmarshal([]byte(extracted.JSON), &wrapper) == nil && len(wrapper.Questions) > 0 {
			items = wrapper.Questions
			break
		}
		// 单元素数组会被抽取为内部对象，按单个问题接受
		var single previewItem
		if json.Unmarshal([]byte(extracted.JSON), &single) == nil && strings.TrimSpace(single.Question) != "" {
			items = []previewItem{single}
		}
	}

	questions := make([]models.PreviewQuestion, 0, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.Question) == "" {
			continue
		}
		category := item.Category
		if category == "" {
			category = "general"
		}
		questions = append(questions, models.PreviewQuestion{
			Order:    i + 1,
			Question: strings.TrimSpace(item.Question),
			Category: category,
			Purpose:  item.Purpose,
		})
	}

	return questions
}

func combineSources(sources []models.ContentSource) string {
	var sb strings.Builder
	for i, source := range sources {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		if source.Title != "" {
			sb.WriteString(fmt.Sprintf("【%s】\n", source.Title))
		}
		sb.WriteString(source.Content)
	}
	return sb.String()
}

const analysisSystemPrompt = `你是一位专业的访谈策划，擅长从背景素材中提炼访谈要点。只输出JSON，不要附加解释。`

const previewSystemPrompt = `你是一位资深访谈记者，擅长根据素材分析设计有层次的访谈问题。只输出JSON数组，不要附加解释。`

func buildAnalysisPrompt(combined string) string {
	return fmt.Sprintf(`请分析以下背景素材，提炼访谈准备信息。

背景素材：
%s

请严格按以下JSON格式输出：
{
  "summary": "素材核心内容摘要，200字以内",
  "key_topics": ["主题1", "主题2", "主题3"],
  "suggested_questions": ["值得深入的问题1", "问题2", "问题3"],
  "difficulty": "easy | medium | hard，表示访谈展开的难度"
}`, combined)
}

func buildPreviewPrompt(analysis *models.AnalysisResult) string {
	return fmt.Sprintf(`根据以下素材分析，设计8到10个访谈问题供访谈前筛选。
问题要覆盖不同层次：背景事实、关键事件、情感体验、反思总结。

素材摘要：%s
关键主题：%s

请严格按以下JSON数组格式输出：
[
  {"question": "问题内容", "category": "background|event|emotion|reflection", "purpose": "设计该问题的目的"}
]`, analysis.Summary, strings.Join(analysis.KeyTopics, "、"))
}
