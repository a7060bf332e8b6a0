package douyin

import "fmt"

// SignatureError 签名能力不可用（脚本缺失、JS 执行失败等）
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature generation failed: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// RoomResolutionError 直播间解析失败（页面拉取失败、roomId 不存在等）
type RoomResolutionError struct {
	LiveID string
	Err    error
}

func (e *RoomResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve room %s: %v", e.LiveID, e.Err)
}

func (e *RoomResolutionError) Unwrap() error { return e.Err }
