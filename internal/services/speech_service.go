// internal/services/speech_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/inkweave/InterviewWeaver/internal/config"
	apperrors "github.com/inkweave/InterviewWeaver/internal/errors"
)

// SpeechService 语音转写：把录音片段发给OpenAI兼容的转写接口
type SpeechService struct {
	httpClient *http.Client
}

// NewSpeechService 创建语音转写服务
func NewSpeechService() *SpeechService {
	return &SpeechService{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Transcribe 上传音频并返回转写文本。
// 不同服务商的响应字段不统一，统一归一化为纯文本：
// 依次尝试 text 字段、transcript 字段、裸字符串响应。
func (s *SpeechService) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	cfg := config.GetCurrentConfig()
	if cfg == nil || cfg.LLMConfig == nil || cfg.LLMConfig["api_key"] == "" {
		return "", apperrors.NewInvalidInputError("语音转写需要先配置API密钥", nil)
	}

	baseURL := strings.TrimSuffix(cfg.LLMConfig["base_url"], "/")
	if baseURL == "" {
		baseURL = "https://api.siliconflow.cn/v1"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", apperrors.NewUpstreamError("构造上传请求失败", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", apperrors.NewUpstreamError("读取音频数据失败", err)
	}
	if err := writer.WriteField("model", cfg.SpeechModel); err != nil {
		return "", apperrors.NewUpstreamError("构造上传请求失败", err)
	}
	if err := writer.Close(); err != nil {
		return "", apperrors.NewUpstreamError("构造上传请求失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", apperrors.NewUpstreamError("创建转写请求失败", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+cfg.LLMConfig["api_key"])

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", apperrors.NewUpstreamError("转写请求失败", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewUpstreamError("读取转写响应失败", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewUpstreamError(
			fmt.Sprintf("转写接口返回错误状态: %d, %s", resp.StatusCode, string(respBody)), nil)
	}

	return normalizeTranscription(respBody), nil
}

// normalizeTranscription 归一化转写响应为纯文本
func normalizeTranscription(respBody []byte) string {
	var structured struct {
		Text       string `json:"text"`
		Transcript string `json:"transcript"`
	}
	if json.Unmarshal(respBody, &structured) == nil {
		if structured.Text != "" {
			return strings.TrimSpace(structured.Text)
		}
		if structured.Transcript != "" {
			return strings.TrimSpace(structured.Transcript)
		}
	}

	// 裸字符串响应
	var plain string
	if json.Unmarshal(respBody, &plain) == nil {
		return strings.TrimSpace(plain)
	}

	return strings.TrimSpace(string(respBody))
}
