// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"

	"github.com/inkweave/InterviewWeaver/internal/config"
	"github.com/inkweave/InterviewWeaver/internal/di"
	"github.com/inkweave/InterviewWeaver/internal/services"
	"github.com/inkweave/InterviewWeaver/internal/storage"
	"github.com/inkweave/InterviewWeaver/internal/utils"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器。
// 存在历史快照时在启动阶段恢复会话状态。
func InitServices() error {
	container := di.GetContainer()
	cfg := config.GetCurrentConfig()

	// 1. 文件存储
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	// 2. 完成服务（配置不完整时为未就绪实例，可随后热配置）
	completionService, err := services.NewCompletionService()
	if err != nil {
		return fmt.Errorf("初始化完成服务失败: %w", err)
	}
	container.Register("completion", completionService)

	// 3. 会话状态
	sessionService := services.NewSessionService()
	container.Register("session", sessionService)

	// 4. 快照持久化：先恢复历史状态，再接通变更通知
	snapshotService := services.NewSnapshotService(fileStorage)
	if saved, err := snapshotService.Load(); err != nil {
		utils.GetLogger().Warn("历史快照加载失败，使用空状态启动", map[string]interface{}{
			"error": err.Error(),
		})
	} else if saved != nil {
		sessionService.Restore(saved)
		utils.GetLogger().Info("历史快照已恢复", map[string]interface{}{
			"saved_at": saved.SavedAt,
			"step":     saved.InterviewState.CurrentStep,
		})
	}
	snapshotService.Bind(sessionService)
	sessionService.BindPersister(snapshotService)
	container.Register("snapshot", snapshotService)

	// 5. 生成流水线服务
	container.Register("analysis", services.NewAnalysisService(sessionService, completionService))
	container.Register("question", services.NewQuestionService(sessionService, completionService))
	container.Register("synthesis", services.NewSynthesisService(sessionService, completionService))

	// 6. 语音转写
	container.Register("speech", services.NewSpeechService())

	return nil
}

// Cleanup 停机清理：写出最后一次状态变更
func Cleanup() {
	container := di.GetContainer()

	if snapshotService, ok := container.Get("snapshot").(*services.SnapshotService); ok {
		if err := snapshotService.Flush(); err != nil {
			utils.GetLogger().Error("停机前快照落盘失败", map[string]interface{}{
				"error": err.Error(),
			})
		}
		snapshotService.Close()
	}
}

// InitLogger 初始化日志文件
func InitLogger(logDir string) error {
	return utils.InitLogger(filepath.Join(logDir, "server.log"))
}
