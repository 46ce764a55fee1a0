// internal/services/synthesis_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/inkweave/InterviewWeaver/internal/errors"
	"github.com/inkweave/InterviewWeaver/internal/models"
	"github.com/inkweave/InterviewWeaver/internal/utils"
)

// SynthesisService 成稿流水线
// 快速模式：访谈记录一步生成风格化成稿；
// 提纲模式：提纲 -> 逐章生成 -> 合并初稿 -> 按风格润色。
type SynthesisService struct {
	Session    *SessionService
	Completion *CompletionService
}

// NewSynthesisService 创建成稿服务
func NewSynthesisService(session *SessionService, completion *CompletionService) *SynthesisService {
	return &SynthesisService{
		Session:    session,
		Completion: completion,
	}
}

// transcript 把问答记录拼成访谈文本，跳过的问题整体略去
func (s *SynthesisService) transcript() string {
	questions := s.Session.Questions()
	answers := s.Session.Answers()

	var sb strings.Builder
	for _, q := range questions {
		answer, ok := answers[q.ID]
		if !ok || answer.IsSkipped() {
			continue
		}
		sb.WriteString(fmt.Sprintf("问：%s\n答：%s\n\n", q.Content, answer.Content))
	}
	return strings.TrimSpace(sb.String())
}

// GenerateQuickScript 快速模式：跳过提纲，把访谈记录直接生成指定风格成稿。
// 产物写入InterviewScripts，不影响提纲模式的任何产物。
func (s *SynthesisService) GenerateQuickScript(ctx context.Context, style string, onChunk func(delta, accumulated string)) (*models.StyledScript, error) {
	transcript := s.transcript()
	if transcript == "" {
		return nil, apperrors.NewInvalidInputError("没有可用的访谈记录", nil)
	}

	if err := s.Session.BeginStage(StageFinal); err != nil {
		return nil, err
	}

	profile := StyleFor(style)
	prompt := fmt.Sprintf(`以下是一次访谈的完整记录，请据此写成一篇完整的文章。

访谈记录：
%s

要求：%s
直接输出Markdown格式的文章正文，不要附加说明。`, transcript, profile.PolishInstruction)

	content, err := s.Completion.CompleteStreaming(ctx, prompt, profile.SystemPrompt, CompletionOptions{
		Temperature: profile.Temperature,
		MaxTokens:   4000,
		Stage:       StageFinal,
	}, func(delta, accumulated string) {
		s.Session.SetStreaming(StageFinal, accumulated)
		if onChunk != nil {
			onChunk(delta, accumulated)
		}
	})
	if err != nil {
		s.Session.FailStage(StageFinal, err)
		return nil, err
	}

	script := newStyledScript(content, profile.Name)
	s.Session.SetInterviewScript(profile.Name, script)
	s.Session.FinishStage(StageFinal)

	return script, nil
}

// GenerateOutline 提纲模式第一步：根据访谈记录生成章节提纲。
// 提交新提纲会清空旧的章节内容与初稿，并把style记为当前风格，
// 后续润色默认沿用。只有流结束后的完整文本才会被解析提交，
// 中途的流式增量仅用于预览。
func (s *SynthesisService) GenerateOutline(ctx context.Context, style string, onChunk func(delta, accumulated string)) (*models.Outline, error) {
	transcript := s.transcript()
	if transcript == "" {
		return nil, apperrors.NewInvalidInputError("没有可用的访谈记录", nil)
	}

	if err := s.Session.BeginStage(StageOutline); err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`以下是一次访谈的完整记录，请为成文规划章节提纲。

访谈记录：
%s

请严格按以下JSON格式输出：
{
  "title": "文章标题",
  "total_sections": 章节数,
  "estimated_words": 预计总字数,
  "sections": [
    {"section_number": 1, "title": "章节标题", "theme": "本章主题", "key_points": ["要点1", "要点2"], "tone": "本章基调", "estimated_words": 预计字数}
  ]
}`, transcript)

	raw, err := s.Completion.CompleteStreaming(ctx, prompt, outlineSystemPrompt, CompletionOptions{
		Temperature: 0.3,
		MaxTokens:   2500,
		Stage:       StageOutline,
	}, func(delta, accumulated string) {
		s.Session.SetStreaming(StageOutline, accumulated)
		if onChunk != nil {
			onChunk(delta, accumulated)
		}
	})
	if err != nil {
		s.Session.FailStage(StageOutline, err)
		return nil, err
	}

	var outline models.Outline
	if _, err := ExtractObjectInto(raw, &outline); err != nil || len(outline.Sections) == 0 {
		parseErr := apperrors.NewUpstreamError("提纲输出无法解析", err)
		s.Session.FailStage(StageOutline, parseErr)
		return nil, parseErr
	}
	outline.TotalSections = len(outline.Sections)

	s.Session.SetOutline(&outline)
	s.Session.SetCurrentStyle(StyleFor(style).Name)
	s.Session.FinishStage(StageOutline)

	return &outline, nil
}

// GenerateSection 生成第index章（从0计）的正文。
// 上下文带上此前已生成章节的全文和下一章的主题预告，保证章节间承接。
func (s *SynthesisService) GenerateSection(ctx context.Context, index int, onChunk func(delta, accumulated string)) (string, error) {
	result, err := s.Session.ResultState()
	if err != nil {
		return "", err
	}
	outline := result.Outline
	if outline == nil {
		return "", apperrors.NewInvalidInputError("请先生成提纲", nil)
	}
	if index < 0 || index >= outline.SectionCount() {
		return "", apperrors.NewInvalidInputError(fmt.Sprintf("章节序号越界: %d", index), nil)
	}

	if err := s.Session.BeginStage(StageSection); err != nil {
		return "", err
	}

	prompt := s.buildSectionPrompt(outline, result.Sections, index)

	content, err := s.Completion.CompleteStreaming(ctx, prompt, sectionSystemPrompt, CompletionOptions{
		Temperature: 0.7,
		MaxTokens:   3000,
		Stage:       StageSection,
	}, func(delta, accumulated string) {
		s.Session.SetStreaming(StageSection, accumulated)
		if onChunk != nil {
			onChunk(delta, accumulated)
		}
	})
	if err != nil {
		s.Session.FailStage(StageSection, err)
		return "", err
	}

	content = strings.TrimSpace(content)
	s.Session.SetSection(index, content)
	s.Session.FinishStage(StageSection)

	return content, nil
}

// GenerateAllSections 顺序生成全部章节，每章完成后回调进度。
// 任意一章失败即中止，已完成的章节保留。
func (s *SynthesisService) GenerateAllSections(ctx context.Context, onProgress func(current, total int), onChunk func(delta, accumulated string)) error {
	result, err := s.Session.ResultState()
	if err != nil {
		return err
	}
	if result.Outline == nil {
		return apperrors.NewInvalidInputError("请先生成提纲", nil)
	}

	total := result.Outline.SectionCount()
	for i := 0; i < total; i++ {
		if _, exists := result.Sections[i]; exists {
			if onProgress != nil {
				onProgress(i+1, total)
			}
			continue
		}
		if _, err := s.GenerateSection(ctx, i, onChunk); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	return nil
}

func (s *SynthesisService) buildSectionPrompt(outline *models.Outline, sections map[int]string, index int) string {
	section := outline.Sections[index]

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("文章标题：%s\n共%d章，现在写第%d章。\n\n", outline.Title, outline.SectionCount(), index+1))

	// 已完成章节全文作为上文，保证叙事连续
	var earlier []string
	for i := 0; i < index; i++ {
		if text, ok := sections[i]; ok && text != "" {
			earlier = append(earlier, text)
		}
	}
	if len(earlier) > 0 {
		sb.WriteString(fmt.Sprintf("前文内容：\n%s\n\n", strings.Join(earlier, "\n\n")))
	}

	sb.WriteString(fmt.Sprintf("本章标题：%s\n本章主题：%s\n", section.Title, section.Theme))
	if len(section.KeyPoints) > 0 {
		sb.WriteString(fmt.Sprintf("本章要点：%s\n", strings.Join(section.KeyPoints, "；")))
	}
	if section.Tone != "" {
		sb.WriteString(fmt.Sprintf("本章基调：%s\n", section.Tone))
	}
	if section.EstimatedWords > 0 {
		sb.WriteString(fmt.Sprintf("目标字数：约%d字\n", section.EstimatedWords))
	}

	// 下一章主题预告，让本章结尾自然引出
	if index+1 < len(outline.Sections) {
		next := outline.Sections[index+1]
		sb.WriteString(fmt.Sprintf("\n下一章主题预告：%s（本章结尾自然过渡，不要展开）\n", next.Theme))
	} else {
		sb.WriteString("\n这是最后一章，请给全文一个完整的收束。\n")
	}

	sb.WriteString("\n直接输出Markdown格式的本章正文，不要重复章节标题之外的元信息。")
	return sb.String()
}

// BuildDraft 纯函数：由提纲与章节内容推导合并初稿。
// 任何一章缺失即返回nil；章节按序号以空行分隔拼接。
func BuildDraft(outline *models.Outline, sections map[int]string) *models.DraftScript {
	if outline == nil {
		return nil
	}

	total := outline.SectionCount()
	if total == 0 {
		return nil
	}

	parts := make([]string, 0, total)
	for i := 0; i < total; i++ {
		text, ok := sections[i]
		if !ok || strings.TrimSpace(text) == "" {
			return nil
		}
		parts = append(parts, strings.TrimSpace(text))
	}

	content := strings.Join(parts, "\n\n")
	return &models.DraftScript{
		Content:       content,
		Format:        "markdown",
		WordCount:     utils.CountWords(content),
		SectionsCount: total,
		TotalSections: total,
		GeneratedAt:   time.Now(),
	}
}

// MergeDraft 合并初稿并写入状态树。章节不齐时返回InvalidInput。
func (s *SynthesisService) MergeDraft() (*models.DraftScript, error) {
	result, err := s.Session.ResultState()
	if err != nil {
		return nil, err
	}

	draft := BuildDraft(result.Outline, result.Sections)
	if draft == nil {
		return nil, apperrors.NewInvalidInputError("章节尚未全部生成，无法合并初稿", nil)
	}

	s.Session.SetDraftScript(draft)
	return draft, nil
}

// Polish 把合并初稿按指定风格润色为成稿。
// 初稿缺失时返回InvalidInput；产物写入FinalScripts，按风格各存一份。
func (s *SynthesisService) Polish(ctx context.Context, style string, onChunk func(delta, accumulated string)) (*models.StyledScript, error) {
	result, err := s.Session.ResultState()
	if err != nil {
		return nil, err
	}
	if result.DraftScript == nil {
		return nil, apperrors.NewInvalidInputError("请先合并初稿再进行润色", nil)
	}

	if err := s.Session.BeginStage(StageFinal); err != nil {
		return nil, err
	}

	profile := StyleFor(style)
	prompt := fmt.Sprintf(`%s

初稿：
%s

直接输出Markdown格式的成稿正文，不要附加说明。`, profile.PolishInstruction, result.DraftScript.Content)

	content, err := s.Completion.CompleteStreaming(ctx, prompt, profile.SystemPrompt, CompletionOptions{
		Temperature: profile.Temperature,
		MaxTokens:   4000,
		Stage:       StageFinal,
	}, func(delta, accumulated string) {
		s.Session.SetStreaming(StageFinal, accumulated)
		if onChunk != nil {
			onChunk(delta, accumulated)
		}
	})
	if err != nil {
		s.Session.FailStage(StageFinal, err)
		return nil, err
	}

	script := newStyledScript(content, profile.Name)
	s.Session.SetFinalScript(profile.Name, script)
	s.Session.FinishStage(StageFinal)

	return script, nil
}

func newStyledScript(content, style string) *models.StyledScript {
	content = strings.TrimSpace(content)
	wordCount := utils.CountWords(content)
	return &models.StyledScript{
		Content:           content,
		Style:             style,
		Format:            "markdown",
		WordCount:         wordCount,
		EstimatedReadTime: utils.EstimatedReadTime(wordCount),
		GeneratedAt:       time.Now(),
	}
}

const outlineSystemPrompt = `你是一位结构感极强的编辑，擅长把访谈素材规划成层次清晰的文章提纲。只输出JSON，不要附加解释。`

const sectionSystemPrompt = `你是一位叙事功力深厚的作者，正在按提纲逐章撰写文章。承接前文，贴合本章主题，文风统一。`
