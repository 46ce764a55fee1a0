// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inkweave/InterviewWeaver/internal/config"
	"github.com/inkweave/InterviewWeaver/internal/di"
	"github.com/inkweave/InterviewWeaver/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 只从容器获取服务，不在路由层创建实例
	container := di.GetContainer()

	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		return nil, fmt.Errorf("会话服务未正确初始化")
	}

	completionService, ok := container.Get("completion").(*services.CompletionService)
	if !ok {
		return nil, fmt.Errorf("完成服务未正确初始化")
	}

	analysisService, ok := container.Get("analysis").(*services.AnalysisService)
	if !ok {
		return nil, fmt.Errorf("分析服务未正确初始化")
	}

	questionService, ok := container.Get("question").(*services.QuestionService)
	if !ok {
		return nil, fmt.Errorf("问题服务未正确初始化")
	}

	synthesisService, ok := container.Get("synthesis").(*services.SynthesisService)
	if !ok {
		return nil, fmt.Errorf("成稿服务未正确初始化")
	}

	speechService, ok := container.Get("speech").(*services.SpeechService)
	if !ok {
		return nil, fmt.Errorf("语音服务未正确初始化")
	}

	snapshotService, ok := container.Get("snapshot").(*services.SnapshotService)
	if !ok {
		return nil, fmt.Errorf("快照服务未正确初始化")
	}

	handler := NewHandler(
		sessionService,
		completionService,
		analysisService,
		questionService,
		synthesisService,
		speechService,
		snapshotService,
	)

	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	// HTTPS重定向（生产环境）
	if !cfg.DebugMode {
		r.Use(func(c *gin.Context) {
			if c.Request.Header.Get("X-Forwarded-Proto") != "https" {
				c.Redirect(http.StatusPermanentRedirect,
					"https://"+c.Request.Host+c.Request.URL.Path)
				return
			}
			c.Next()
		})
	}

	// WebSocket 流式事件订阅
	r.GET("/ws/stream", handler.StreamWebSocket)

	apiGroup := r.Group("/api")
	{
		// 内容准备
		apiGroup.POST("/sources", handler.AddSource)
		apiGroup.GET("/sources", handler.ListSources)
		apiGroup.DELETE("/sources/:id", handler.RemoveSource)
		apiGroup.POST("/analyze", handler.AnalyzeSources)

		// 预置问题
		apiGroup.POST("/preview-questions", handler.GeneratePreviewQuestions)
		apiGroup.GET("/preview-questions", handler.ListPreviewQuestions)
		apiGroup.POST("/preview-questions/feedback", handler.SetQuestionFeedback)

		// 访谈会话
		apiGroup.POST("/interview/start", handler.StartInterview)
		apiGroup.POST("/interview/question", handler.NextQuestion)
		apiGroup.POST("/interview/answer", handler.SubmitAnswer)
		apiGroup.POST("/interview/skip", handler.SkipQuestion)
		apiGroup.POST("/interview/complete", handler.CompleteInterview)

		// 会话状态
		apiGroup.GET("/session", handler.GetSession)
		apiGroup.POST("/session/reset", handler.ResetSession)

		// 成稿
		apiGroup.POST("/script/mode", handler.SetGenerationMode)
		apiGroup.POST("/script/quick", handler.GenerateQuickScript)
		apiGroup.POST("/script/outline", handler.GenerateOutline)
		apiGroup.POST("/script/section", handler.GenerateSection)
		apiGroup.POST("/script/sections", handler.GenerateAllSections)
		apiGroup.POST("/script/draft", handler.MergeDraft)
		apiGroup.POST("/script/polish", handler.PolishScript)
		apiGroup.GET("/script/styles", handler.ListStyles)
		apiGroup.GET("/script/export", handler.ExportScript)

		// 语音转写
		apiGroup.POST("/speech/transcribe", handler.TranscribeAudio)

		// 设置与指标
		apiGroup.GET("/settings", handler.GetSettings)
		apiGroup.POST("/settings", handler.UpdateSettings)
		apiGroup.GET("/metrics", handler.GetMetrics)
	}

	return r, nil
}

// corsMiddleware 跨域支持
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
