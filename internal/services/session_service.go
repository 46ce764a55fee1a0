// internal/services/session_service.go
package services

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/inkweave/InterviewWeaver/internal/errors"
	"github.com/inkweave/InterviewWeaver/internal/models"
)

// 生成阶段标识，守卫按阶段独立互斥
const (
	StageAnalysis = "analysis"
	StagePreview  = "preview"
	StageQuestion = "question"
	StageOutline  = "outline"
	StageSection  = "section"
	StageFinal    = "final"
)

// StageStatus 阶段运行状态
type StageStatus string

const (
	StageIdle    StageStatus = "idle"
	StageRunning StageStatus = "running"
	StageDone    StageStatus = "done"
	StageFailed  StageStatus = "failed"
)

// StageInfo 阶段运行时信息，属于瞬态，不进入持久化快照
type StageInfo struct {
	Status    StageStatus `json:"status"`
	Streaming string      `json:"streaming,omitempty"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	LastError string      `json:"last_error,omitempty"`
}

// DirtyMarker 状态变更通知接口，由快照服务实现
type DirtyMarker interface {
	MarkDirty()
}

// SessionService 持有访谈全流程的内存状态树
// 所有变更经由离散动作方法完成，方法内部持锁，外部不暴露可变引用
type SessionService struct {
	mu       sync.RWMutex
	snapshot *models.SessionSnapshot
	stages   map[string]*StageInfo
	persist  DirtyMarker

	// 预置问题抽取的随机源，测试时可替换
	randIntn func(n int) int
}

// NewSessionService 创建带空状态树的会话服务
func NewSessionService() *SessionService {
	return &SessionService{
		snapshot: models.NewSessionSnapshot(),
		stages:   make(map[string]*StageInfo),
		randIntn: rand.Intn,
	}
}

// BindPersister 绑定快照服务，之后每次状态变更都会触发延迟持久化
func (s *SessionService) BindPersister(p DirtyMarker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = p
}

func (s *SessionService) markDirty() {
	if s.persist != nil {
		s.persist.MarkDirty()
	}
}

// ---- 阶段守卫 ----

// BeginStage 将阶段置为running。同一阶段已在运行时返回Conflict，
// 调用方应拒绝本次请求而不是排队等待。
func (s *SessionService) BeginStage(stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, exists := s.stages[stage]
	if exists && info.Status == StageRunning {
		return apperrors.NewConflictError(fmt.Sprintf("阶段 %s 已有生成任务在进行", stage), nil)
	}

	now := time.Now()
	s.stages[stage] = &StageInfo{
		Status:    StageRunning,
		StartedAt: &now,
	}
	return nil
}

// FinishStage 标记阶段成功完成
func (s *SessionService) FinishStage(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stages[stage] = &StageInfo{Status: StageDone}
}

// FailStage 标记阶段失败并记录错误描述
func (s *SessionService) FailStage(stage string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := &StageInfo{Status: StageFailed}
	if err != nil {
		info.LastError = err.Error()
	}
	s.stages[stage] = info
}

// SetStreaming 更新阶段的流式预览文本，只在running状态下有效
func (s *SessionService) SetStreaming(stage, accumulated string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, exists := s.stages[stage]; exists && info.Status == StageRunning {
		info.Streaming = accumulated
	}
}

// StageState 返回阶段状态，从未运行过的阶段为idle
func (s *SessionService) StageState(stage string) StageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if info, exists := s.stages[stage]; exists {
		return *info
	}
	return StageInfo{Status: StageIdle}
}

// StageStates 返回所有阶段状态的副本
func (s *SessionService) StageStates() map[string]StageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]StageInfo, len(s.stages))
	for stage, info := range s.stages {
		result[stage] = *info
	}
	return result
}

// ---- 内容准备 ----

// AddContentSource 添加背景素材，返回生成的素材ID
func (s *SessionService) AddContentSource(sourceType, title, content string, metadata map[string]string) (*models.ContentSource, error) {
	if content == "" {
		return nil, apperrors.NewInvalidInputError("素材内容不能为空", nil)
	}

	source := models.ContentSource{
		ID:       "source_" + uuid.NewString(),
		Type:     sourceType,
		Title:    title,
		Content:  content,
		Metadata: metadata,
		AddedAt:  time.Now(),
	}

	s.mu.Lock()
	s.snapshot.ContentState.Sources = append(s.snapshot.ContentState.Sources, source)
	s.mu.Unlock()

	s.markDirty()
	return &source, nil
}

// RemoveContentSource 按ID删除素材
func (s *SessionService) RemoveContentSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources := s.snapshot.ContentState.Sources
	for i, source := range sources {
		if source.ID == id {
			s.snapshot.ContentState.Sources = append(sources[:i], sources[i+1:]...)
			s.markDirty()
			return nil
		}
	}
	return apperrors.NewNotFoundError(fmt.Sprintf("素材不存在: %s", id), nil)
}

// Sources 返回素材列表副本
func (s *SessionService) Sources() []models.ContentSource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.ContentSource, len(s.snapshot.ContentState.Sources))
	copy(result, s.snapshot.ContentState.Sources)
	return result
}

// SetAnalysisResult 整体覆盖分析结果
func (s *SessionService) SetAnalysisResult(result *models.AnalysisResult) {
	s.mu.Lock()
	s.snapshot.ContentState.AnalysisResult = result
	s.mu.Unlock()
	s.markDirty()
}

// AnalysisResult 返回当前分析结果
func (s *SessionService) AnalysisResult() *models.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot.ContentState.AnalysisResult == nil {
		return nil
	}
	result := *s.snapshot.ContentState.AnalysisResult
	return &result
}

// SetPreviewQuestions 整体替换预置问题列表，重置所有反馈与消费标记
func (s *SessionService) SetPreviewQuestions(questions []models.PreviewQuestion) {
	s.mu.Lock()
	s.snapshot.ContentState.PreviewQuestions = questions
	s.mu.Unlock()
	s.markDirty()
}

// PreviewQuestions 返回预置问题列表副本
func (s *SessionService) PreviewQuestions() []models.PreviewQuestion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.PreviewQuestion, len(s.snapshot.ContentState.PreviewQuestions))
	copy(result, s.snapshot.ContentState.PreviewQuestions)
	return result
}

// SetQuestionFeedback 按序号设置预置问题的好/差反馈
func (s *SessionService) SetQuestionFeedback(order int, feedback string) error {
	if feedback != models.FeedbackGood && feedback != models.FeedbackBad && feedback != models.FeedbackUnset {
		return apperrors.NewInvalidInputError(fmt.Sprintf("无效的反馈标记: %s", feedback), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.snapshot.ContentState.PreviewQuestions {
		if s.snapshot.ContentState.PreviewQuestions[i].Order == order {
			s.snapshot.ContentState.PreviewQuestions[i].Feedback = feedback
			s.markDirty()
			return nil
		}
	}
	return apperrors.NewNotFoundError(fmt.Sprintf("预置问题不存在: %d", order), nil)
}

// PickGoodPreviewQuestion 从「标记为good且未消费」的预置问题中等概率
// 随机取一个，置位消费标记并返回；没有候选时返回nil。
func (s *SessionService) PickGoodPreviewQuestion() *models.PreviewQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []int
	for i := range s.snapshot.ContentState.PreviewQuestions {
		pq := &s.snapshot.ContentState.PreviewQuestions[i]
		if pq.Feedback == models.FeedbackGood && !pq.Consumed {
			candidates = append(candidates, i)
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	idx := candidates[s.randIntn(len(candidates))]
	s.snapshot.ContentState.PreviewQuestions[idx].Consumed = true
	picked := s.snapshot.ContentState.PreviewQuestions[idx]

	s.markDirty()
	return &picked
}

// ---- 访谈会话 ----

// StartInterview 进入访谈阶段，初始化会话元信息
func (s *SessionService) StartInterview() {
	s.mu.Lock()

	now := time.Now()
	s.snapshot.InterviewState.CurrentStep = models.StepInterview
	if s.snapshot.InterviewState.SessionID == "" {
		s.snapshot.InterviewState.SessionID = "session_" + uuid.NewString()
		s.snapshot.InterviewState.CreatedAt = &now
	}

	s.mu.Unlock()
	s.markDirty()
}

// AppendQuestion 追加正式问题并推进当前问题指针
func (s *SessionService) AppendQuestion(q models.Question) {
	s.mu.Lock()

	s.snapshot.SessionState.Questions = append(s.snapshot.SessionState.Questions, q)
	s.snapshot.SessionState.CurrentQuestionIndex = len(s.snapshot.SessionState.Questions) - 1

	s.mu.Unlock()
	s.markDirty()
}

// Questions 返回正式问题列表副本
func (s *SessionService) Questions() []models.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Question, len(s.snapshot.SessionState.Questions))
	copy(result, s.snapshot.SessionState.Questions)
	return result
}

// Answers 返回回答映射的副本
func (s *SessionService) Answers() map[string]models.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]models.Answer, len(s.snapshot.SessionState.Answers))
	for id, answer := range s.snapshot.SessionState.Answers {
		result[id] = answer
	}
	return result
}

// SubmitAnswer 提交回答。问题ID不存在时返回NotFound；重复提交覆盖旧值。
// 返回值表示被回答的问题是否为当前最新问题（回答最新问题才推进访谈）。
func (s *SessionService) SubmitAnswer(questionID, content string) (atFrontier bool, err error) {
	if content == "" {
		return false, apperrors.NewInvalidInputError("回答内容不能为空", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := -1
	for i, q := range s.snapshot.SessionState.Questions {
		if q.ID == questionID {
			found = i
			break
		}
	}
	if found < 0 {
		return false, apperrors.NewNotFoundError(fmt.Sprintf("问题不存在: %s", questionID), nil)
	}

	s.snapshot.SessionState.Answers[questionID] = models.Answer{
		Content:   content,
		Timestamp: time.Now(),
	}

	s.markDirty()
	return found == len(s.snapshot.SessionState.Questions)-1, nil
}

// SkipAnswer 跳过问题，以哨兵回答记录，流程上等价于已回答
func (s *SessionService) SkipAnswer(questionID string) (atFrontier bool, err error) {
	return s.submitSentinel(questionID)
}

func (s *SessionService) submitSentinel(questionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := -1
	for i, q := range s.snapshot.SessionState.Questions {
		if q.ID == questionID {
			found = i
			break
		}
	}
	if found < 0 {
		return false, apperrors.NewNotFoundError(fmt.Sprintf("问题不存在: %s", questionID), nil)
	}

	s.snapshot.SessionState.Answers[questionID] = models.Answer{
		Content:   models.SkippedAnswer,
		Timestamp: time.Now(),
	}

	s.markDirty()
	return found == len(s.snapshot.SessionState.Questions)-1, nil
}

// AnsweredCount 返回已回答（含跳过）的问题数
func (s *SessionService) AnsweredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshot.SessionState.Answers)
}

// ReadyToComplete 判断是否达到建议的最少问题数
func (s *SessionService) ReadyToComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshot.SessionState.Answers) >= models.MinQuestions
}

// CompleteInterview 结束访谈进入成稿阶段。门槛为建议性：
// 未达到最少问题数时由force参数决定是否放行。
func (s *SessionService) CompleteInterview(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshot.SessionState.Answers) < models.MinQuestions && !force {
		return apperrors.NewInvalidInputError(
			fmt.Sprintf("已回答 %d 个问题，建议至少回答 %d 个后再结束访谈", len(s.snapshot.SessionState.Answers), models.MinQuestions), nil)
	}

	s.snapshot.SessionState.IsComplete = true
	s.snapshot.InterviewState.CurrentStep = models.StepCompleted

	s.markDirty()
	return nil
}

// IsInterviewComplete 返回访谈是否已结束
func (s *SessionService) IsInterviewComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.SessionState.IsComplete
}

// ---- 成稿状态 ----

// SetGenerationMode 切换生成模式。两种模式的产物相互独立，切换不清除。
func (s *SessionService) SetGenerationMode(mode string) error {
	if mode != models.ModeOutline && mode != models.ModeQuick {
		return apperrors.NewInvalidInputError(fmt.Sprintf("无效的生成模式: %s", mode), nil)
	}

	s.mu.Lock()
	s.snapshot.ResultState.GenerationMode = mode
	s.mu.Unlock()
	s.markDirty()
	return nil
}

// SetOutline 提交新提纲并清空旧的章节内容与初稿
func (s *SessionService) SetOutline(outline *models.Outline) {
	s.mu.Lock()

	s.snapshot.ResultState.Outline = outline
	s.snapshot.ResultState.Sections = map[int]string{}
	s.snapshot.ResultState.CurrentSection = 0
	s.snapshot.ResultState.DraftScript = nil

	s.mu.Unlock()
	s.markDirty()
}

// SetSection 记录第index章（从0计）的生成内容
func (s *SessionService) SetSection(index int, content string) {
	s.mu.Lock()

	s.snapshot.ResultState.Sections[index] = content
	if index >= s.snapshot.ResultState.CurrentSection {
		s.snapshot.ResultState.CurrentSection = index + 1
	}
	// 章节内容变化后旧初稿失效
	s.snapshot.ResultState.DraftScript = nil

	s.mu.Unlock()
	s.markDirty()
}

// SetCurrentStyle 记录当前选定的成稿风格
func (s *SessionService) SetCurrentStyle(style string) {
	s.mu.Lock()
	s.snapshot.ResultState.CurrentStyle = style
	s.mu.Unlock()
	s.markDirty()
}

// SetDraftScript 记录合并初稿
func (s *SessionService) SetDraftScript(draft *models.DraftScript) {
	s.mu.Lock()
	s.snapshot.ResultState.DraftScript = draft
	s.mu.Unlock()
	s.markDirty()
}

// SetFinalScript 记录提纲模式的润色成稿，同时把该风格设为当前风格
func (s *SessionService) SetFinalScript(style string, script *models.StyledScript) {
	s.mu.Lock()

	s.snapshot.ResultState.FinalScripts[style] = script
	s.snapshot.ResultState.CurrentStyle = style

	s.mu.Unlock()
	s.markDirty()
}

// SetInterviewScript 记录快速模式的成稿，同时把该风格设为当前风格
func (s *SessionService) SetInterviewScript(style string, script *models.StyledScript) {
	s.mu.Lock()

	s.snapshot.ResultState.InterviewScripts[style] = script
	s.snapshot.ResultState.CurrentStyle = style

	s.mu.Unlock()
	s.markDirty()
}

// SetExportFormat 设置导出格式
func (s *SessionService) SetExportFormat(format string) {
	s.mu.Lock()
	s.snapshot.ResultState.ExportFormat = format
	s.mu.Unlock()
	s.markDirty()
}

// ResultState 返回成稿阶段状态的深拷贝
func (s *SessionService) ResultState() (models.ResultState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cloned, err := s.snapshot.Clone()
	if err != nil {
		return models.ResultState{}, err
	}
	return cloned.ResultState, nil
}

// ---- 快照 ----

// Snapshot 返回整棵状态树的深拷贝，持久化侧使用
func (s *SessionService) Snapshot() (*models.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// Restore 用持久化快照整体替换内存状态树，阶段守卫回到初始态
func (s *SessionService) Restore(snapshot *models.SessionSnapshot) {
	if snapshot == nil {
		return
	}
	snapshot.Normalize()

	s.mu.Lock()
	s.snapshot = snapshot
	s.stages = make(map[string]*StageInfo)
	s.mu.Unlock()
}

// Reset 清空全部状态，重新开始
func (s *SessionService) Reset() {
	s.mu.Lock()
	s.snapshot = models.NewSessionSnapshot()
	s.stages = make(map[string]*StageInfo)
	s.mu.Unlock()
	s.markDirty()
}
