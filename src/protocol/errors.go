package protocol

import "fmt"

// FrameDecodeError 外层帧不可用：PushFrame 解码失败、gzip 解压失败或
// Response 解码失败。整帧丢弃，由连接层决定是否断开。
type FrameDecodeError struct {
	Stage string // frame / gzip / response
	Err   error
}

func (e *FrameDecodeError) Error() string {
	return fmt.Sprintf("frame decode failed at %s: %v", e.Stage, e.Err)
}

func (e *FrameDecodeError) Unwrap() error { return e.Err }

// MessageDecodeError 批次内单条消息解码失败，只丢这一条，不影响同批其他消息
type MessageDecodeError struct {
	Method string
	Err    error
}

func (e *MessageDecodeError) Error() string {
	return fmt.Sprintf("message decode failed for %s: %v", e.Method, e.Err)
}

func (e *MessageDecodeError) Unwrap() error { return e.Err }

// ProtocolDriftError 同一 method 连续解码失败超过阈值
// 通常意味着平台升级了协议，需要人工介入而不是无限重连
type ProtocolDriftError struct {
	Method      string
	Consecutive int
}

func (e *ProtocolDriftError) Error() string {
	return fmt.Sprintf("protocol drift suspected: %s failed to decode %d times in a row", e.Method, e.Consecutive)
}
