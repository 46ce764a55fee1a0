// internal/models/script.go
package models

import "time"

// 生成模式
const (
	ModeOutline = "outline"
	ModeQuick   = "quick"
)

// OutlineSection 提纲中的单个章节规格
type OutlineSection struct {
	SectionNumber  int      `json:"section_number"`
	Title          string   `json:"title"`
	Theme          string   `json:"theme"`
	KeyPoints      []string `json:"key_points"`
	Tone           string   `json:"tone,omitempty"`
	EstimatedWords int      `json:"estimated_words,omitempty"`
}

// Outline 文章提纲，分章节生成的依据
type Outline struct {
	Title          string           `json:"title"`
	TotalSections  int              `json:"total_sections"`
	EstimatedWords int              `json:"estimated_words,omitempty"`
	Sections       []OutlineSection `json:"sections"`
}

// SectionCount 返回提纲的章节数，优先使用Sections的实际长度
func (o *Outline) SectionCount() int {
	if o == nil {
		return 0
	}
	if len(o.Sections) > 0 {
		return len(o.Sections)
	}
	return o.TotalSections
}

// DraftScript 合并初稿，由提纲+章节内容纯函数推导，不可手工编辑
// 仅当 SectionsCount == TotalSections 时有效
type DraftScript struct {
	Content       string    `json:"content"`
	Format        string    `json:"format"`
	WordCount     int       `json:"word_count"`
	SectionsCount int       `json:"sections_count"`
	TotalSections int       `json:"total_sections"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// StyledScript 按风格润色后的成稿
type StyledScript struct {
	Content           string     `json:"content"`
	Style             string     `json:"style"`
	Format            string     `json:"format"`
	WordCount         int        `json:"word_count"`
	EstimatedReadTime int        `json:"estimated_read_time"`
	GeneratedAt       time.Time  `json:"generated_at"`
	LastEditedAt      *time.Time `json:"last_edited_at,omitempty"`
}
