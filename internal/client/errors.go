package client

import "errors"

var (
	// ErrNotFound 账本上不存在该地址
	ErrNotFound = errors.New("account not found")
	// ErrAccountEmpty 账户存在但数据为空或全零（已删除 / 已分配未写入）
	ErrAccountEmpty = errors.New("account is empty")
	// ErrDecode 类型化客户端解码失败
	ErrDecode = errors.New("decode record failed")
)
