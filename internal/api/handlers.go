// internal/api/handlers.go
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inkweave/InterviewWeaver/internal/config"
	"github.com/inkweave/InterviewWeaver/internal/llm"
	"github.com/inkweave/InterviewWeaver/internal/models"
	"github.com/inkweave/InterviewWeaver/internal/services"
	"github.com/inkweave/InterviewWeaver/internal/utils"
)

// Handler 处理API请求
type Handler struct {
	Session    *services.SessionService    // 会话状态服务
	Completion *services.CompletionService // 模型完成服务
	Analysis   *services.AnalysisService   // 内容分析服务
	Question   *services.QuestionService   // 问题生成服务
	Synthesis  *services.SynthesisService  // 成稿服务
	Speech     *services.SpeechService     // 语音转写服务
	Persist    *services.SnapshotService   // 快照持久化服务
	Hub        *StreamHub                  // 流式事件分发器
	Response   *ResponseHelper             // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(
	session *services.SessionService,
	completion *services.CompletionService,
	analysis *services.AnalysisService,
	question *services.QuestionService,
	synthesis *services.SynthesisService,
	speech *services.SpeechService,
	persist *services.SnapshotService,
) *Handler {
	return &Handler{
		Session:    session,
		Completion: completion,
		Analysis:   analysis,
		Question:   question,
		Synthesis:  synthesis,
		Speech:     speech,
		Persist:    persist,
		Hub:        NewStreamHub(),
		Response:   NewResponseHelper(),
	}
}

// StreamWebSocket 流式生成事件订阅入口
func (h *Handler) StreamWebSocket(c *gin.Context) {
	h.Hub.HandleWS(c)
}

// ========================================
// 内容准备
// ========================================

// AddSourceRequest 添加素材的请求结构
type AddSourceRequest struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AddSource 添加背景素材
func (h *Handler) AddSource(c *gin.Context) {
	var req AddSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if req.Type == "" {
		req.Type = models.SourceTypeText
	}

	source, err := h.Session.AddContentSource(req.Type, req.Title, req.Content, req.Metadata)
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}

	h.Response.Created(c, source, "素材添加成功")
}

// ListSources 列出全部素材
func (h *Handler) ListSources(c *gin.Context) {
	h.Response.Success(c, h.Session.Sources())
}

// RemoveSource 删除素材
func (h *Handler) RemoveSource(c *gin.Context) {
	if err := h.Session.RemoveContentSource(c.Param("id")); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, nil, "素材已删除")
}

// AnalyzeSources 分析已添加的素材
func (h *Handler) AnalyzeSources(c *gin.Context) {
	result, err := h.Analysis.AnalyzeSources(c.Request.Context())
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, result, "内容分析完成")
}

// GeneratePreviewQuestions 生成预置问题列表
func (h *Handler) GeneratePreviewQuestions(c *gin.Context) {
	questions, err := h.Analysis.GeneratePreviewQuestions(c.Request.Context())
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, questions, "预置问题生成完成")
}

// ListPreviewQuestions 返回当前预置问题列表
func (h *Handler) ListPreviewQuestions(c *gin.Context) {
	h.Response.Success(c, h.Session.PreviewQuestions())
}

// QuestionFeedbackRequest 预置问题反馈请求
type QuestionFeedbackRequest struct {
	Order    int    `json:"order"`
	Feedback string `json:"feedback"`
}

// SetQuestionFeedback 标记预置问题好/差
func (h *Handler) SetQuestionFeedback(c *gin.Context) {
	var req QuestionFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if err := h.Session.SetQuestionFeedback(req.Order, req.Feedback); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, nil, "反馈已记录")
}

// ========================================
// 访谈会话
// ========================================

// StartInterview 进入访谈阶段
func (h *Handler) StartInterview(c *gin.Context) {
	h.Session.StartInterview()
	h.Response.Success(c, gin.H{
		"questions":     h.Session.Questions(),
		"min_questions": models.MinQuestions,
	}, "访谈已开始")
}

// NextQuestion 生成下一个访谈问题，生成过程经WebSocket流式推送
func (h *Handler) NextQuestion(c *gin.Context) {
	question, err := h.Question.NextQuestionStream(c.Request.Context(), h.Hub.ChunkRelay(services.StageQuestion))
	if err != nil {
		h.Hub.Broadcast(StreamEvent{Type: "error", Stage: services.StageQuestion, Error: err.Error()})
		h.Response.FromAppError(c, err)
		return
	}

	h.Hub.Broadcast(StreamEvent{Type: "done", Stage: services.StageQuestion, Done: true})
	h.Response.Success(c, question)
}

// SubmitAnswerRequest 提交回答请求
type SubmitAnswerRequest struct {
	QuestionID string `json:"question_id"`
	Content    string `json:"content"`
}

// SubmitAnswer 提交回答
func (h *Handler) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	atFrontier, err := h.Session.SubmitAnswer(req.QuestionID, req.Content)
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"at_frontier":       atFrontier,
		"answered_count":    h.Session.AnsweredCount(),
		"ready_to_complete": h.Session.ReadyToComplete(),
	}, "回答已记录")
}

// SkipQuestionRequest 跳过问题请求
type SkipQuestionRequest struct {
	QuestionID string `json:"question_id"`
}

// SkipQuestion 跳过当前问题
func (h *Handler) SkipQuestion(c *gin.Context) {
	var req SkipQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	atFrontier, err := h.Session.SkipAnswer(req.QuestionID)
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"at_frontier":       atFrontier,
		"answered_count":    h.Session.AnsweredCount(),
		"ready_to_complete": h.Session.ReadyToComplete(),
	}, "问题已跳过")
}

// CompleteInterview 结束访谈。未达最少问题数时需要force=true确认
func (h *Handler) CompleteInterview(c *gin.Context) {
	force := c.DefaultQuery("force", "false") == "true"

	if err := h.Session.CompleteInterview(force); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{
		"answered_count": h.Session.AnsweredCount(),
	}, "访谈已结束")
}

// GetSession 返回完整会话状态与各阶段运行状态
func (h *Handler) GetSession(c *gin.Context) {
	snapshot, err := h.Session.Snapshot()
	if err != nil {
		h.Response.InternalError(c, "读取会话状态失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{
		"session": snapshot,
		"stages":  h.Session.StageStates(),
	})
}

// ResetSession 清空全部状态并删除持久化快照
func (h *Handler) ResetSession(c *gin.Context) {
	h.Session.Reset()
	if err := h.Persist.Clear(); err != nil {
		h.Response.InternalError(c, "清除持久化快照失败", err.Error())
		return
	}
	h.Response.Success(c, nil, "会话已重置")
}

// ========================================
// 成稿
// ========================================

// SetModeRequest 切换生成模式请求
type SetModeRequest struct {
	Mode string `json:"mode"`
}

// SetGenerationMode 切换快速/提纲模式
func (h *Handler) SetGenerationMode(c *gin.Context) {
	var req SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if err := h.Session.SetGenerationMode(req.Mode); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"mode": req.Mode}, "生成模式已切换")
}

// StyleRequest 指定风格的请求
type StyleRequest struct {
	Style string `json:"style"`
}

// GenerateQuickScript 快速模式一步成稿
func (h *Handler) GenerateQuickScript(c *gin.Context) {
	var req StyleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	script, err := h.Synthesis.GenerateQuickScript(c.Request.Context(), req.Style, h.Hub.ChunkRelay(services.StageFinal))
	if err != nil {
		h.Hub.Broadcast(StreamEvent{Type: "error", Stage: services.StageFinal, Error: err.Error()})
		h.Response.FromAppError(c, err)
		return
	}

	h.Hub.Broadcast(StreamEvent{Type: "done", Stage: services.StageFinal, Done: true})
	h.Response.Success(c, script, "快速成稿完成")
}

// GenerateOutline 生成文章提纲，请求体的风格参数可省略
func (h *Handler) GenerateOutline(c *gin.Context) {
	var req StyleRequest
	_ = c.ShouldBindJSON(&req)

	outline, err := h.Synthesis.GenerateOutline(c.Request.Context(), req.Style, h.Hub.ChunkRelay(services.StageOutline))
	if err != nil {
		h.Hub.Broadcast(StreamEvent{Type: "error", Stage: services.StageOutline, Error: err.Error()})
		h.Response.FromAppError(c, err)
		return
	}

	h.Hub.Broadcast(StreamEvent{Type: "done", Stage: services.StageOutline, Done: true})
	h.Response.Success(c, outline, "提纲生成完成")
}

// SectionRequest 生成指定章节请求
type SectionRequest struct {
	Index int `json:"index"`
}

// GenerateSection 生成单个章节
func (h *Handler) GenerateSection(c *gin.Context) {
	var req SectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	content, err := h.Synthesis.GenerateSection(c.Request.Context(), req.Index, h.Hub.ChunkRelay(services.StageSection))
	if err != nil {
		h.Hub.Broadcast(StreamEvent{Type: "error", Stage: services.StageSection, Error: err.Error()})
		h.Response.FromAppError(c, err)
		return
	}

	h.Hub.Broadcast(StreamEvent{Type: "done", Stage: services.StageSection, Done: true})
	h.Response.Success(c, gin.H{"index": req.Index, "content": content}, "章节生成完成")
}

// GenerateAllSections 顺序生成全部章节，进度经WebSocket推送
func (h *Handler) GenerateAllSections(c *gin.Context) {
	err := h.Synthesis.GenerateAllSections(c.Request.Context(),
		func(current, total int) {
			h.Hub.Broadcast(StreamEvent{Type: "progress", Stage: services.StageSection, Current: current, Total: total})
		},
		h.Hub.ChunkRelay(services.StageSection))
	if err != nil {
		h.Hub.Broadcast(StreamEvent{Type: "error", Stage: services.StageSection, Error: err.Error()})
		h.Response.FromAppError(c, err)
		return
	}

	h.Hub.Broadcast(StreamEvent{Type: "done", Stage: services.StageSection, Done: true})
	h.Response.Success(c, nil, "全部章节生成完成")
}

// MergeDraft 合并章节为初稿
func (h *Handler) MergeDraft(c *gin.Context) {
	draft, err := h.Synthesis.MergeDraft()
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, draft, "初稿合并完成")
}

// PolishScript 按风格润色初稿
func (h *Handler) PolishScript(c *gin.Context) {
	var req StyleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	script, err := h.Synthesis.Polish(c.Request.Context(), req.Style, h.Hub.ChunkRelay(services.StageFinal))
	if err != nil {
		h.Hub.Broadcast(StreamEvent{Type: "error", Stage: services.StageFinal, Error: err.Error()})
		h.Response.FromAppError(c, err)
		return
	}

	h.Hub.Broadcast(StreamEvent{Type: "done", Stage: services.StageFinal, Done: true})
	h.Response.Success(c, script, "润色完成")
}

// ListStyles 返回全部可用风格
func (h *Handler) ListStyles(c *gin.Context) {
	h.Response.Success(c, services.ListStyles())
}

// ExportScript 导出成稿。mode参数决定导出快速成稿还是润色成稿，
// 缺省按当前生成模式取对应产物。
func (h *Handler) ExportScript(c *gin.Context) {
	result, err := h.Session.ResultState()
	if err != nil {
		h.Response.InternalError(c, "读取成稿状态失败", err.Error())
		return
	}

	mode := c.DefaultQuery("mode", result.GenerationMode)
	style := c.DefaultQuery("style", result.CurrentStyle)
	format := c.DefaultQuery("format", result.ExportFormat)

	var script *models.StyledScript
	if mode == models.ModeQuick {
		script = result.InterviewScripts[style]
	} else {
		script = result.FinalScripts[style]
	}
	if script == nil {
		h.Response.NotFound(c, fmt.Sprintf("风格 %s 的成稿", style))
		return
	}

	filename := fmt.Sprintf("interview_%s_%s", style, time.Now().Format("20060102_150405"))
	switch strings.ToLower(format) {
	case "json":
		h.Response.Success(c, script, "导出成功")
	case "txt":
		h.Response.DownloadResponse(c, utils.StripMarkdown(script.Content), filename+".txt", "text/plain; charset=utf-8")
	default:
		h.Response.DownloadResponse(c, script.Content, filename+".md", "text/markdown; charset=utf-8")
	}
}

// ========================================
// 语音与设置
// ========================================

// TranscribeAudio 语音转写
func (h *Handler) TranscribeAudio(c *gin.Context) {
	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		h.Response.BadRequest(c, "缺少音频文件", err.Error())
		return
	}
	defer file.Close()

	text, err := h.Speech.Transcribe(c.Request.Context(), file, header.Filename)
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"text": text}, "转写完成")
}

// GetSettings 返回当前LLM配置（隐去密钥明文）
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := config.GetCurrentConfig()

	masked := make(map[string]string, len(cfg.LLMConfig))
	for key, value := range cfg.LLMConfig {
		if key == "api_key" && value != "" {
			masked[key] = "******"
			continue
		}
		masked[key] = value
	}

	h.Response.Success(c, gin.H{
		"provider":     cfg.LLMProvider,
		"llm_config":   masked,
		"speech_model": cfg.SpeechModel,
		"providers":    llm.ListProviders(),
		"ready":        h.Completion.IsReady(),
		"ready_state":  h.Completion.ReadyState(),
	})
}

// UpdateSettingsRequest 更新LLM配置请求
type UpdateSettingsRequest struct {
	Provider  string            `json:"provider"`
	LLMConfig map[string]string `json:"llm_config"`
}

// UpdateSettings 更新LLM配置并热切换提供者
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if err := h.Completion.UpdateProvider(req.Provider, req.LLMConfig); err != nil {
		h.Response.FromAppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"provider": req.Provider}, "配置已更新")
}

// GetMetrics 返回各生成阶段的调用指标
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, utils.GetMetrics().Snapshot())
}
