// internal/utils/metrics.go
package utils

import (
	"sync"
	"time"
)

// StageMetrics 单个生成阶段的累计指标
type StageMetrics struct {
	Calls         int64         `json:"calls"`
	Failures      int64         `json:"failures"`
	TokensUsed    int64         `json:"tokens_used"`
	TotalDuration time.Duration `json:"total_duration_ns"`
	LastDuration  time.Duration `json:"last_duration_ns"`
	LastCalledAt  time.Time     `json:"last_called_at"`
}

// GenerationMetrics 按阶段聚合完成服务的调用指标
type GenerationMetrics struct {
	mu     sync.RWMutex
	stages map[string]*StageMetrics
}

var (
	globalMetrics *GenerationMetrics
	metricsOnce   sync.Once
)

// GetMetrics 返回全局指标收集器
func GetMetrics() *GenerationMetrics {
	metricsOnce.Do(func() {
		globalMetrics = &GenerationMetrics{
			stages: make(map[string]*StageMetrics),
		}
	})
	return globalMetrics
}

// RecordCall 记录一次阶段调用
func (m *GenerationMetrics) RecordCall(stage string, duration time.Duration, tokens int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.stages[stage]
	if !exists {
		entry = &StageMetrics{}
		m.stages[stage] = entry
	}

	entry.Calls++
	if err != nil {
		entry.Failures++
	}
	entry.TokensUsed += int64(tokens)
	entry.TotalDuration += duration
	entry.LastDuration = duration
	entry.LastCalledAt = time.Now()
}

// Snapshot 返回所有阶段指标的副本
func (m *GenerationMetrics) Snapshot() map[string]StageMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]StageMetrics, len(m.stages))
	for stage, entry := range m.stages {
		result[stage] = *entry
	}
	return result
}

// Reset 清空指标，主要用于测试
func (m *GenerationMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = make(map[string]*StageMetrics)
}
