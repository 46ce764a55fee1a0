// internal/services/snapshot_service.go
package services

import (
	"sync"
	"time"

	"github.com/inkweave/InterviewWeaver/internal/models"
	"github.com/inkweave/InterviewWeaver/internal/storage"
	"github.com/inkweave/InterviewWeaver/internal/utils"
)

const (
	snapshotDir  = "sessions"
	snapshotFile = "current.json"

	// 写合并窗口：窗口内的连续变更只落盘一次
	flushDelay = 100 * time.Millisecond
)

// SnapshotSource 快照提供方，由会话服务实现
type SnapshotSource interface {
	Snapshot() (*models.SessionSnapshot, error)
}

// SnapshotService 状态树持久化
// MarkDirty只做标记，实际写盘由后台协程在合并窗口后执行，
// 高频变更（逐字流式之外的状态更新）不会放大成高频IO。
type SnapshotService struct {
	storage *storage.FileStorage
	source  SnapshotSource

	mu      sync.Mutex
	dirty   chan struct{}
	closed  chan struct{}
	started bool
	pending bool
}

// NewSnapshotService 创建快照服务
func NewSnapshotService(fileStorage *storage.FileStorage) *SnapshotService {
	return &SnapshotService{
		storage: fileStorage,
		dirty:   make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// Bind 绑定快照来源并启动后台落盘协程
func (s *SnapshotService) Bind(source SnapshotSource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.source = source
	if !s.started {
		s.started = true
		go s.flushLoop()
	}
}

// MarkDirty 标记状态已变更。非阻塞：已有待处理标记时直接合并。
func (s *SnapshotService) MarkDirty() {
	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()

	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// flushLoop 等待脏标记，延迟一个合并窗口后落盘
func (s *SnapshotService) flushLoop() {
	for {
		select {
		case <-s.closed:
			return
		case <-s.dirty:
		}

		timer := time.NewTimer(flushDelay)
		select {
		case <-s.closed:
			timer.Stop()
			// 退出前把尚未落盘的变更写掉；已被显式Flush覆盖则跳过
			if s.hasPending() {
				s.flush()
			}
			return
		case <-timer.C:
		}

		s.flush()
	}
}

// Flush 立即落盘一次，优雅停机时调用
func (s *SnapshotService) Flush() error {
	return s.flush()
}

func (s *SnapshotService) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *SnapshotService) flush() error {
	s.mu.Lock()
	source := s.source
	// 取快照前清标记，落盘期间的新变更会重新置位
	s.pending = false
	s.mu.Unlock()

	if source == nil {
		return nil
	}

	snapshot, err := source.Snapshot()
	if err != nil {
		utils.GetLogger().Error("生成持久化快照失败", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	snapshot.SavedAt = time.Now()

	if err := s.storage.SaveJSONFile(snapshotDir, snapshotFile, snapshot); err != nil {
		utils.GetLogger().Error("快照落盘失败", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	return nil
}

// Load 读取持久化快照，文件不存在时返回nil快照且不报错
func (s *SnapshotService) Load() (*models.SessionSnapshot, error) {
	if !s.storage.FileExists(snapshotDir, snapshotFile) {
		return nil, nil
	}

	snapshot := models.NewSessionSnapshot()
	if err := s.storage.LoadJSONFile(snapshotDir, snapshotFile, snapshot); err != nil {
		return nil, err
	}

	// 历史快照可能缺字段，加载侧统一规范化
	snapshot.Normalize()
	return snapshot, nil
}

// Clear 删除持久化快照
func (s *SnapshotService) Clear() error {
	return s.storage.DeleteFile(snapshotDir, snapshotFile)
}

// Close 停止后台协程并写出最后一次变更
func (s *SnapshotService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}
