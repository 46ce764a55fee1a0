// internal/models/snapshot.go
package models

import (
	"encoding/json"
	"time"
)

// 访谈流程步骤
const (
	StepContentInput = "content-input"
	StepInterview    = "interview"
	StepCompleted    = "completed"
)

// InterviewState 访谈流程元信息
type InterviewState struct {
	CurrentStep string     `json:"current_step"`
	SessionID   string     `json:"session_id,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// ContentState 内容准备阶段的状态
type ContentState struct {
	Sources          []ContentSource   `json:"sources"`
	AnalysisResult   *AnalysisResult   `json:"analysis_result,omitempty"`
	PreviewQuestions []PreviewQuestion `json:"preview_questions"`
}

// SessionState 访谈会话状态
type SessionState struct {
	Questions            []Question        `json:"questions"`
	Answers              map[string]Answer `json:"answers"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	IsComplete           bool              `json:"is_complete"`
}

// ResultState 成稿阶段状态
// FinalScripts（提纲模式润色产物）与 InterviewScripts（快速模式产物）
// 相互独立，切换模式不清除已有产物
type ResultState struct {
	Outline          *Outline                 `json:"outline,omitempty"`
	Sections         map[int]string           `json:"sections"`
	CurrentSection   int                      `json:"current_section"`
	DraftScript      *DraftScript             `json:"draft_script,omitempty"`
	FinalScripts     map[string]*StyledScript `json:"final_scripts"`
	InterviewScripts map[string]*StyledScript `json:"interview_scripts"`
	CurrentStyle     string                   `json:"current_style"`
	GenerationMode   string                   `json:"generation_mode"`
	ExportFormat     string                   `json:"export_format"`
}

// SessionSnapshot 可持久化的完整状态树
// 约定：进行中标志、流式缓冲、错误字段均不属于快照，存取两侧都不携带
type SessionSnapshot struct {
	InterviewState InterviewState `json:"interview_state"`
	ContentState   ContentState   `json:"content_state"`
	SessionState   SessionState   `json:"session_state"`
	ResultState    ResultState    `json:"result_state"`
	SavedAt        time.Time      `json:"saved_at"`
}

// NewSessionSnapshot 创建带默认值的空状态树
func NewSessionSnapshot() *SessionSnapshot {
	return &SessionSnapshot{
		InterviewState: InterviewState{
			CurrentStep: StepContentInput,
		},
		ContentState: ContentState{
			Sources:          []ContentSource{},
			PreviewQuestions: []PreviewQuestion{},
		},
		SessionState: SessionState{
			Questions: []Question{},
			Answers:   map[string]Answer{},
		},
		ResultState: ResultState{
			Sections:         map[int]string{},
			FinalScripts:     map[string]*StyledScript{},
			InterviewScripts: map[string]*StyledScript{},
			CurrentStyle:     "default",
			GenerationMode:   ModeOutline,
			ExportFormat:     "markdown",
		},
	}
}

// Clone 深拷贝快照，持久化时与在内存树解耦
func (s *SessionSnapshot) Clone() (*SessionSnapshot, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	cloned := NewSessionSnapshot()
	if err := json.Unmarshal(data, cloned); err != nil {
		return nil, err
	}

	cloned.normalize()
	return cloned, nil
}

// normalize 保证map/slice字段非nil，反序列化后的快照可以直接使用
func (s *SessionSnapshot) normalize() {
	if s.ContentState.Sources == nil {
		s.ContentState.Sources = []ContentSource{}
	}
	if s.ContentState.PreviewQuestions == nil {
		s.ContentState.PreviewQuestions = []PreviewQuestion{}
	}
	if s.SessionState.Questions == nil {
		s.SessionState.Questions = []Question{}
	}
	if s.SessionState.Answers == nil {
		s.SessionState.Answers = map[string]Answer{}
	}
	if s.ResultState.Sections == nil {
		s.ResultState.Sections = map[int]string{}
	}
	if s.ResultState.FinalScripts == nil {
		s.ResultState.FinalScripts = map[string]*StyledScript{}
	}
	if s.ResultState.InterviewScripts == nil {
		s.ResultState.InterviewScripts = map[string]*StyledScript{}
	}
	if s.ResultState.CurrentStyle == "" {
		s.ResultState.CurrentStyle = "default"
	}
	if s.ResultState.GenerationMode == "" {
		s.ResultState.GenerationMode = ModeOutline
	}
}

// Normalize 对外暴露的规范化入口，加载持久化数据后调用
func (s *SessionSnapshot) Normalize() {
	s.normalize()
}
