// internal/services/completion_service.go
package services

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/inkweave/InterviewWeaver/internal/config"
	apperrors "github.com/inkweave/InterviewWeaver/internal/errors"
	"github.com/inkweave/InterviewWeaver/internal/llm"
	"github.com/inkweave/InterviewWeaver/internal/utils"
)

var ErrCompletionNotReady = errors.New("completion service not ready")

// CompletionOptions 单次调用的可选参数
type CompletionOptions struct {
	Model       string
	MaxTokens   int
	Temperature float32
	Stage       string
}

// CompletionService 提供统一的大语言模型调用接口
// 所有生成阶段共用一个实例，provider切换受锁保护
type CompletionService struct {
	providerMutex      sync.RWMutex
	provider           llm.Provider
	providerName       string
	activeDefaultModel string
	isReady            bool
	readyState         string
	cache              *completionCache
}

type completionCache struct {
	cache      map[string]*cacheEntry
	mutex      sync.RWMutex
	expiration time.Duration
}

type cacheEntry struct {
	Response  string
	CreatedAt time.Time
}

// ExtractKind JSON抽取结果的形态
type ExtractKind string

const (
	ExtractObject   ExtractKind = "object"
	ExtractArray    ExtractKind = "array"
	ExtractUnparsed ExtractKind = "unparsed"
)

// ExtractResult JSON抽取结果
// Kind为unparsed时JSON为空，Raw始终保留原始文本
type ExtractResult struct {
	Kind ExtractKind
	JSON string
	Raw  string
}

// NewCompletionService 创建完成服务，配置不完整时返回未就绪实例而非错误
func NewCompletionService() (*CompletionService, error) {
	service := createBaseCompletionService()

	cfg := config.GetCurrentConfig()
	if cfg == nil {
		service.readyState = "配置获取失败"
		return service, nil
	}

	if cfg.LLMProvider == "" || (cfg.LLMConfig != nil && cfg.LLMConfig["api_key"] == "") {
		service.readyState = "API密钥未配置"
		return service, nil
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		service.readyState = fmt.Sprintf("初始化失败: %v", err)
		return service, nil
	}

	service.provider = provider
	service.providerName = cfg.LLMProvider
	service.activeDefaultModel = cfg.LLMConfig["default_model"]
	service.isReady = true
	service.readyState = "Ready"

	return service, nil
}

func createBaseCompletionService() *CompletionService {
	return &CompletionService{
		readyState: "Uninitialized",
		cache: &completionCache{
			cache:      make(map[string]*cacheEntry),
			expiration: 30 * time.Minute,
		},
	}
}

// IsReady 返回服务是否已就绪
func (s *CompletionService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// ReadyState 返回就绪状态描述
func (s *CompletionService) ReadyState() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.readyState
}

// UpdateProvider 切换提供者并持久化配置
func (s *CompletionService) UpdateProvider(providerName string, providerConfig map[string]string) error {
	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("切换提供者失败: %s", providerName), err)
	}

	if err := config.UpdateLLMConfig(providerName, providerConfig); err != nil {
		return err
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = providerName
	s.activeDefaultModel = providerConfig["default_model"]
	s.isReady = true
	s.readyState = "Ready"

	// 换提供者后旧缓存作废
	s.cache.clear()

	return nil
}

// ProviderName 返回当前提供者名称
func (s *CompletionService) ProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

func (s *CompletionService) currentProvider() (llm.Provider, string, error) {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	if s.provider == nil || !s.isReady {
		return nil, "", apperrors.NewUpstreamError("完成服务未就绪", ErrCompletionNotReady)
	}
	return s.provider, s.activeDefaultModel, nil
}

// Complete 非流式文本生成，同参数请求命中缓存时不再调用上游
func (s *CompletionService) Complete(ctx context.Context, prompt, systemPrompt string, opts CompletionOptions) (string, error) {
	provider, defaultModel, err := s.currentProvider()
	if err != nil {
		return "", err
	}

	model := opts.Model
	if model == "" {
		model = defaultModel
	}

	cacheKey := s.cacheKey(prompt, systemPrompt, model, opts)
	if cached, ok := s.cache.get(cacheKey); ok {
		return cached, nil
	}

	start := time.Now()
	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		MaxTokens:    opts.MaxTokens,
		Temperature:  opts.Temperature,
		Model:        model,
	})

	tokens := 0
	if resp != nil {
		tokens = resp.TokensUsed
	}
	utils.GetMetrics().RecordCall(stageLabel(opts), time.Since(start), tokens, err)

	if err != nil {
		utils.GetLogger().Error("文本生成失败", map[string]interface{}{
			"provider": s.ProviderName(),
			"model":    model,
			"error":    err.Error(),
		})
		return "", apperrors.WrapError(err, "上游生成调用失败", apperrors.ErrorTypeUpstream)
	}

	s.cache.set(cacheKey, resp.Text)
	return resp.Text, nil
}

// CompleteStreaming 流式文本生成。每个增量到达时以(增量, 累计全文)回调一次，
// 累计文本只增不减；返回值为最终累计全文。流式结果不进缓存。
func (s *CompletionService) CompleteStreaming(ctx context.Context, prompt, systemPrompt string, opts CompletionOptions, onChunk func(delta, accumulated string)) (string, error) {
	provider, defaultModel, err := s.currentProvider()
	if err != nil {
		return "", err
	}

	model := opts.Model
	if model == "" {
		model = defaultModel
	}

	start := time.Now()
	stream, err := provider.StreamCompletion(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		MaxTokens:    opts.MaxTokens,
		Temperature:  opts.Temperature,
		Model:        model,
		Stream:       true,
	})
	if err != nil {
		utils.GetMetrics().RecordCall(stageLabel(opts), time.Since(start), 0, err)
		return "", apperrors.WrapError(err, "建立流式连接失败", apperrors.ErrorTypeUpstream)
	}

	var accumulated strings.Builder
	var finishReason string
	for chunk := range stream {
		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}
		if chunk.Text == "" {
			continue
		}
		accumulated.WriteString(chunk.Text)
		if onChunk != nil {
			onChunk(chunk.Text, accumulated.String())
		}
	}

	if err := ctx.Err(); err != nil {
		utils.GetMetrics().RecordCall(stageLabel(opts), time.Since(start), 0, err)
		return accumulated.String(), apperrors.WrapError(err, "流式生成被取消", apperrors.ErrorTypeUpstream)
	}

	// 流在正常结束前断开时，残缺的累计文本不能当成功结果返回
	if finishReason == llm.FinishReasonError {
		streamErr := apperrors.NewUpstreamError("流式连接中断，输出不完整", nil)
		utils.GetMetrics().RecordCall(stageLabel(opts), time.Since(start), 0, streamErr)
		return accumulated.String(), streamErr
	}

	utils.GetMetrics().RecordCall(stageLabel(opts), time.Since(start), 0, nil)
	return accumulated.String(), nil
}

func stageLabel(opts CompletionOptions) string {
	if opts.Stage != "" {
		return opts.Stage
	}
	return "completion"
}

// cacheKey 用请求参数生成md5缓存键
func (s *CompletionService) cacheKey(prompt, systemPrompt, model string, opts CompletionOptions) string {
	payload := fmt.Sprintf("%s|%s|%s|%d|%.2f", prompt, systemPrompt, model, opts.MaxTokens, opts.Temperature)
	return fmt.Sprintf("%x", md5.Sum([]byte(payload)))
}

func (c *completionCache) get(key string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.cache[key]
	if !exists {
		return "", false
	}
	if time.Since(entry.CreatedAt) > c.expiration {
		return "", false
	}
	return entry.Response, true
}

func (c *completionCache) set(key, response string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache[key] = &cacheEntry{Response: response, CreatedAt: time.Now()}
}

func (c *completionCache) clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache = make(map[string]*cacheEntry)
}

// JSON抽取规则：围栏代码块优先，其次贪婪匹配最外层对象/数组
var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	objectRe     = regexp.MustCompile(`(?s)\{.*\}`)
	arrayRe      = regexp.MustCompile(`(?s)\[.*\]`)
)

// ExtractJSON 从模型输出中宽容地抽取JSON。
// 依次尝试：围栏代码块内容、最外层{...}、最外层[...]，每个候选都要
// 通过json.Valid校验才被采纳；全部失败时返回unparsed标记并保留原文，
// 本函数永不返回错误，降级由调用方决定。
func ExtractJSON(raw string) ExtractResult {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ExtractResult{Kind: ExtractUnparsed, Raw: raw}
	}

	candidates := make([]string, 0, 3)

	if m := fencedJSONRe.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := objectRe.FindString(trimmed); m != "" {
		candidates = append(candidates, m)
	}
	if m := arrayRe.FindString(trimmed); m != "" {
		candidates = append(candidates, m)
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if json.Valid([]byte(candidate)) {
			kind := ExtractObject
			if strings.HasPrefix(candidate, "[") {
				kind = ExtractArray
			}
			return ExtractResult{Kind: kind, JSON: candidate, Raw: raw}
		}
		// 尝试修复常见的模型输出瑕疵后再校验一次
		repaired := repairJSONString(candidate)
		if repaired != candidate && json.Valid([]byte(repaired)) {
			kind := ExtractObject
			if strings.HasPrefix(repaired, "[") {
				kind = ExtractArray
			}
			return ExtractResult{Kind: kind, JSON: repaired, Raw: raw}
		}
	}

	return ExtractResult{Kind: ExtractUnparsed, Raw: raw}
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// repairJSONString 清理模型常见的JSON瑕疵：尾逗号、全角引号
func repairJSONString(text string) string {
	text = trailingCommaRe.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "“", "\"")
	text = strings.ReplaceAll(text, "”", "\"")
	return strings.TrimSpace(text)
}

// ExtractObjectInto 抽取并反序列化为对象，失败时返回unparsed标记的结果
func ExtractObjectInto(raw string, v interface{}) (ExtractResult, error) {
	result := ExtractJSON(raw)
	if result.Kind == ExtractUnparsed {
		return result, apperrors.NewAppError(apperrors.ErrorTypeDegradedParse, "模型输出无法解析为JSON", nil)
	}

	if err := json.Unmarshal([]byte(result.JSON), v); err != nil {
		result.Kind = ExtractUnparsed
		result.JSON = ""
		return result, apperrors.NewAppError(apperrors.ErrorTypeDegradedParse, "JSON结构与目标类型不匹配", err)
	}

	return result, nil
}
