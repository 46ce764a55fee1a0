// internal/services/snapshot_service_test.go
package services

import (
	"sync"
	"testing"
	"time"

	"github.com/inkweave/InterviewWeaver/internal/models"
	"github.com/inkweave/InterviewWeaver/internal/storage"
)

func newTestSnapshotService(t *testing.T) (*SnapshotService, *SessionService) {
	t.Helper()

	fileStorage, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建测试存储失败: %v", err)
	}

	session := NewSessionService()
	snapshot := NewSnapshotService(fileStorage)
	snapshot.Bind(session)
	session.BindPersister(snapshot)

	t.Cleanup(snapshot.Close)
	return snapshot, session
}

func TestSnapshotSaveLoadClear(t *testing.T) {
	snapshotService, session := newTestSnapshotService(t)

	session.StartInterview()
	q := newQuestion("q_1", "问题")
	session.AppendQuestion(q)
	session.SubmitAnswer(q.ID, "回答")

	if err := snapshotService.Flush(); err != nil {
		t.Fatalf("落盘失败: %v", err)
	}

	loaded, err := snapshotService.Load()
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if loaded == nil {
		t.Fatal("落盘后应能读回快照")
	}
	if loaded.InterviewState.CurrentStep != models.StepInterview {
		t.Errorf("流程步骤不符: %s", loaded.InterviewState.CurrentStep)
	}
	if loaded.SessionState.Answers["q_1"].Content != "回答" {
		t.Error("回答数据未持久化")
	}
	if loaded.SavedAt.IsZero() {
		t.Error("快照应带保存时间戳")
	}

	if err := snapshotService.Clear(); err != nil {
		t.Fatalf("清除失败: %v", err)
	}
	if loaded, _ := snapshotService.Load(); loaded != nil {
		t.Error("清除后不应再读到快照")
	}
}

func TestSnapshotLoadMissingFile(t *testing.T) {
	snapshotService, _ := newTestSnapshotService(t)

	loaded, err := snapshotService.Load()
	if err != nil {
		t.Fatalf("文件缺失不应报错: %v", err)
	}
	if loaded != nil {
		t.Error("无历史快照时应返回nil")
	}
}

func TestSnapshotExcludesTransientState(t *testing.T) {
	snapshotService, session := newTestSnapshotService(t)

	session.BeginStage(StageOutline)
	session.SetStreaming(StageOutline, "生成到一半的流式文本")
	session.AddContentSource(models.SourceTypeText, "素材", "内容", nil)

	if err := snapshotService.Flush(); err != nil {
		t.Fatalf("落盘失败: %v", err)
	}

	loaded, err := snapshotService.Load()
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	restored := NewSessionService()
	restored.Restore(loaded)

	// 进行中标志与流式缓冲属于瞬态，不应随快照往返
	info := restored.StageState(StageOutline)
	if info.Status != StageIdle || info.Streaming != "" {
		t.Errorf("瞬态阶段信息不应被持久化: %+v", info)
	}
	if len(restored.Sources()) != 1 {
		t.Error("业务数据应完整往返")
	}
}

func TestMarkDirtyCoalescesWrites(t *testing.T) {
	snapshotService, session := newTestSnapshotService(t)

	// 合并窗口内的连续变更只应产生一次落盘
	for i := 0; i < 20; i++ {
		session.AddContentSource(models.SourceTypeText, "素材", "内容", nil)
	}

	// 等待合并窗口结束
	time.Sleep(flushDelay + 100*time.Millisecond)

	loaded, err := snapshotService.Load()
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if loaded == nil {
		t.Fatal("延迟落盘应已执行")
	}
	if len(loaded.ContentState.Sources) != 20 {
		t.Errorf("落盘应包含全部变更, 实际: %d", len(loaded.ContentState.Sources))
	}
}

// countingSource 统计快照被取用的次数
type countingSource struct {
	mu    sync.Mutex
	count int
}

func (c *countingSource) Snapshot() (*models.SessionSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return models.NewSessionSnapshot(), nil
}

func (c *countingSource) flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestCloseSkipsFlushWhenNothingPending(t *testing.T) {
	fileStorage, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建测试存储失败: %v", err)
	}

	source := &countingSource{}
	snapshotService := NewSnapshotService(fileStorage)
	snapshotService.Bind(source)

	// 显式Flush已覆盖最后一次变更，Close不应再落盘
	snapshotService.MarkDirty()
	if err := snapshotService.Flush(); err != nil {
		t.Fatalf("落盘失败: %v", err)
	}
	snapshotService.Close()

	time.Sleep(flushDelay + 50*time.Millisecond)
	if got := source.flushes(); got != 1 {
		t.Errorf("关闭时不应重复落盘, 实际落盘次数: %d", got)
	}
}

func TestSnapshotNormalizeAfterLoad(t *testing.T) {
	fileStorage, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建测试存储失败: %v", err)
	}

	// 模拟旧版本写出的不完整快照
	if err := fileStorage.SaveJSONFile("sessions", "current.json", map[string]interface{}{
		"interview_state": map[string]interface{}{"current_step": "interview"},
	}); err != nil {
		t.Fatalf("写入测试快照失败: %v", err)
	}

	snapshotService := NewSnapshotService(fileStorage)
	loaded, err := snapshotService.Load()
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	if loaded.SessionState.Answers == nil || loaded.ResultState.FinalScripts == nil {
		t.Error("加载侧应补齐缺失的map字段")
	}
	if loaded.ResultState.CurrentStyle != "default" {
		t.Errorf("缺省风格应补为default, 实际: %s", loaded.ResultState.CurrentStyle)
	}
}
