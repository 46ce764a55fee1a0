// internal/models/interview.go
package models

import "time"

// 内容源类型
const (
	SourceTypeURL      = "url"
	SourceTypeText     = "text"
	SourceTypeDocument = "document"
)

// 预置问题反馈标记
const (
	FeedbackGood  = "good"
	FeedbackBad   = "bad"
	FeedbackUnset = ""
)

// SkippedAnswer 跳过问题时记录的哨兵回答
const SkippedAnswer = "（跳过）"

// MinQuestions 访谈允许结束的最少已答问题数（建议性门槛，非硬性限制）
const MinQuestions = 5

// ContentSource 用户提供的背景素材，添加后内容不可变，仅可按ID删除
type ContentSource struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	AddedAt  time.Time         `json:"added_at"`
}

// AnalysisResult 内容分析结果，每次分析整体覆盖
type AnalysisResult struct {
	Summary            string   `json:"summary"`
	KeyTopics          []string `json:"key_topics"`
	SuggestedQuestions []string `json:"suggested_questions"`
	Difficulty         string   `json:"difficulty,omitempty"`
}

// PreviewQuestion 访谈开始前批量生成、供用户筛选的预置问题
// Consumed 一旦置位，该问题不会再次进入正式会话
type PreviewQuestion struct {
	Order    int    `json:"order"`
	Question string `json:"question"`
	Category string `json:"category"`
	Purpose  string `json:"purpose"`
	Feedback string `json:"feedback,omitempty"`
	Consumed bool   `json:"consumed"`
}

// Question 正式会话中的访谈问题，ID生成后保持稳定，是回答的关联键
type Question struct {
	ID            string    `json:"id"`
	Content       string    `json:"content"`
	Category      string    `json:"category"`
	Explanation   string    `json:"explanation,omitempty"`
	Tone          string    `json:"tone,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	IsFromPreview bool      `json:"is_from_preview"`
	IsFollowUp    bool      `json:"is_follow_up"`
}

// Answer 用户回答，按问题ID索引，重复提交覆盖旧值
type Answer struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IsSkipped 判断该回答是否为跳过哨兵
func (a Answer) IsSkipped() bool {
	return a.Content == SkippedAnswer
}
