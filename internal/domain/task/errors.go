package task

import "errors"

var (
	// ErrTaskConflict 同一知识库上已有同类任务在执行
	ErrTaskConflict = errors.New("task already active for this repository")
	// ErrTaskNotFound 任务不存在或已被清理
	ErrTaskNotFound = errors.New("task not found")
)
