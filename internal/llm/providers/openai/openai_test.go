// internal/llm/providers/openai/openai_test.go
package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inkweave/InterviewWeaver/internal/llm"
)

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()

	p := &Provider{}
	err := p.Initialize(map[string]string{
		"api_key":       "test-key",
		"base_url":      baseURL,
		"default_model": "test-model",
	})
	if err != nil {
		t.Fatalf("初始化提供者失败: %v", err)
	}
	return p
}

func TestInitializeRequiresAPIKey(t *testing.T) {
	p := &Provider{}
	if err := p.Initialize(map[string]string{}); err == nil {
		t.Fatal("缺少API密钥应返回错误")
	}
}

func TestInitializeTrimsBaseURL(t *testing.T) {
	p := &Provider{}
	if err := p.Initialize(map[string]string{"api_key": "k", "base_url": "https://example.com/v1/"}); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	if p.baseURL != "https://example.com/v1" {
		t.Errorf("base_url末尾斜杠应被去除: %s", p.baseURL)
	}
}

func TestCompleteText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("请求路径不符: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("鉴权头不符: %s", auth)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"model": "test-model",
			"choices": [{"message": {"role": "assistant", "content": "生成的回答"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
		}`)
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "测试"})
	if err != nil {
		t.Fatalf("调用失败: %v", err)
	}

	if resp.Text != "生成的回答" {
		t.Errorf("响应文本不符: %s", resp.Text)
	}
	if resp.TokensUsed != 12 {
		t.Errorf("token统计不符: %d", resp.TokensUsed)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("结束原因不符: %s", resp.FinishReason)
	}
}

func TestCompleteTextErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": "rate limited"}`)
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	if _, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "测试"}); err == nil {
		t.Fatal("非200状态应返回错误")
	}
}

func TestStreamCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")

		chunks := []string{
			`data: {"model": "test-model", "choices": [{"delta": {"content": "你"}}]}`,
			`data: {"choices": [{"delta": {"content": "好"}}]}`,
			`: 注释行应被忽略`,
			`data: {"choices": [{"delta": {"content": "世界"}}]}`,
			`data: {"choices": [{"delta": {}, "finish_reason": "stop"}]}`,
			`data: [DONE]`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "%s\n\n", chunk)
		}
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	stream, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{Prompt: "测试", Stream: true})
	if err != nil {
		t.Fatalf("建立流式连接失败: %v", err)
	}

	var accumulated strings.Builder
	var done bool
	for chunk := range stream {
		accumulated.WriteString(chunk.Text)
		if chunk.Done {
			done = true
			if chunk.FinishReason != "stop" {
				t.Errorf("结束原因不符: %s", chunk.FinishReason)
			}
		}
	}

	if accumulated.String() != "你好世界" {
		t.Errorf("流式累计不符: %q", accumulated.String())
	}
	if !done {
		t.Error("流结束时应收到Done标记")
	}
}

func TestStreamCompletionCancellation(t *testing.T) {
	blocker := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\": [{\"delta\": {\"content\": \"第一块\"}}]}\n\n")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		<-blocker
	}))
	defer server.Close()
	defer close(blocker)

	ctx, cancel := context.WithCancel(context.Background())
	p := newTestProvider(t, server.URL)

	stream, err := p.StreamCompletion(ctx, llm.CompletionRequest{Prompt: "测试", Stream: true})
	if err != nil {
		t.Fatalf("建立流式连接失败: %v", err)
	}

	<-stream
	cancel()

	// 取消后通道应很快关闭
	for range stream {
	}
}

func TestProviderRegistered(t *testing.T) {
	found := false
	for _, name := range llm.ListProviders() {
		if name == "openai" {
			found = true
		}
	}
	if !found {
		t.Fatal("openai提供者应已注册")
	}
}
