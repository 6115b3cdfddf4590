package repository

import "errors"

var (
	// ErrNotFound 知识库不存在
	ErrNotFound = errors.New("repository not found")
	// ErrAlreadyExists 知识库名称已被占用
	ErrAlreadyExists = errors.New("repository already exists")
	// ErrInvalidFrequency 自动更新频率取值非法
	ErrInvalidFrequency = errors.New("invalid auto-update frequency")
	// ErrUploadedAutoUpdate 上传型知识库不允许启用自动更新
	ErrUploadedAutoUpdate = errors.New("auto-update is not supported for uploaded repositories")
)
