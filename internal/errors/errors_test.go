// internal/errors/errors_test.go
package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypeOf(t *testing.T) {
	if got := TypeOf(NewNotFoundError("找不到", nil)); got != ErrorTypeNotFound {
		t.Errorf("类型判定不符: %s", got)
	}
	if got := TypeOf(errors.New("普通错误")); got != "" {
		t.Errorf("非AppError应返回空串: %s", got)
	}
	if got := TypeOf(nil); got != "" {
		t.Errorf("nil应返回空串: %s", got)
	}
}

func TestTypeHelpersThroughWrapping(t *testing.T) {
	base := NewConflictError("阶段占用", nil)
	wrapped := fmt.Errorf("外层上下文: %w", base)

	if !IsConflictError(wrapped) {
		t.Error("包装后仍应识别出Conflict类型")
	}
	if IsNotFoundError(wrapped) {
		t.Error("类型判定不应串线")
	}
}

func TestWrapErrorPreservesType(t *testing.T) {
	inner := NewUpstreamError("网络超时", errors.New("dial timeout"))
	wrapped := WrapError(inner, "生成提纲失败", ErrorTypeInvalidInput)

	// 已是AppError时保留原始类型，只叠加消息
	if !IsUpstreamError(wrapped) {
		t.Errorf("包装应保留原始类型, 实际: %s", TypeOf(wrapped))
	}

	plain := WrapError(errors.New("raw"), "操作失败", ErrorTypeInvalidInput)
	if !IsInvalidInputError(plain) {
		t.Errorf("普通错误包装后应带指定类型, 实际: %s", TypeOf(plain))
	}

	if WrapError(nil, "不应产生错误", ErrorTypeUpstream) != nil {
		t.Error("nil包装应返回nil")
	}
}

func TestErrorMessageFormat(t *testing.T) {
	err := NewInvalidInputError("输入为空", errors.New("底层原因"))
	if err.Error() != "输入为空: 底层原因" {
		t.Errorf("错误消息格式不符: %s", err.Error())
	}

	bare := NewInvalidInputError("输入为空", nil)
	if bare.Error() != "输入为空" {
		t.Errorf("无底层错误时只输出消息: %s", bare.Error())
	}
}
