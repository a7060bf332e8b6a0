// Package protocol 实现抖音直播 WebSocket 推送协议的帧编解码与消息路由。
//
// 入站链路：PushFrame（protobuf）→ gzip 解压 → Response（protobuf）→
// 按 method 分发到各消息解码器。出站链路：心跳帧与 ack 帧。
// 协议为逆向得到的外部契约，字段号集中定义在本包，不依赖生成代码。
package protocol

import (
	"bytes"
	"compress/gzip"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// PushFrame 字段号
const (
	pushFrameSeqID           = 1
	pushFrameLogID           = 2
	pushFrameService         = 3
	pushFrameMethod          = 4
	pushFramePayloadEncoding = 6
	pushFramePayloadType     = 7
	pushFramePayload         = 8
)

// Response 字段号
const (
	responseMessages          = 1
	responseCursor            = 2
	responseFetchInterval     = 3
	responseNow               = 4
	responseInternalExt       = 5
	responseFetchType         = 6
	responseHeartbeatDuration = 8
	responseNeedAck           = 9
)

// Message 字段号
const (
	messageMethod  = 1
	messagePayload = 2
	messageMsgID   = 3
	messageMsgType = 4
	messageOffset  = 5
)

// 出站帧的 payload_type
const (
	PayloadTypeHeartbeat = "hb"
	PayloadTypeAck       = "ack"
	PayloadTypeMsg       = "msg"
)

// PushFrame 是 WebSocket 上传输的最外层帧
type PushFrame struct {
	SeqID           uint64
	LogID           uint64
	Service         uint64
	Method          uint64
	PayloadEncoding string
	PayloadType     string
	Payload         []byte
}

// Response 是 PushFrame.Payload 经 gzip 解压后的消息批次
type Response struct {
	Messages          []*Message
	Cursor            string
	FetchInterval     uint64
	Now               uint64
	InternalExt       string
	FetchType         uint32
	HeartbeatDuration uint64
	NeedAck           bool
}

// Message 是批次内的单条消息，payload 按 Method 再次解码
type Message struct {
	Method  string
	Payload []byte
	MsgID   int64
	MsgType int32
	Offset  int64
}

// DecodePushFrame 解码最外层帧
func DecodePushFrame(b []byte) (*PushFrame, error) {
	frame := &PushFrame{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		switch num {
		case pushFrameSeqID:
			frame.SeqID = varint
		case pushFrameLogID:
			frame.LogID = varint
		case pushFrameService:
			frame.Service = varint
		case pushFrameMethod:
			frame.Method = varint
		case pushFramePayloadEncoding:
			frame.PayloadEncoding = string(raw)
		case pushFramePayloadType:
			frame.PayloadType = string(raw)
		case pushFramePayload:
			frame.Payload = raw
		}
		return nil
	})
	if err != nil {
		return nil, &FrameDecodeError{Stage: "frame", Err: err}
	}
	return frame, nil
}

// Marshal 编码出站帧（心跳 / ack）
func (f *PushFrame) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, pushFrameSeqID, f.SeqID)
	b = appendVarintField(b, pushFrameLogID, f.LogID)
	b = appendVarintField(b, pushFrameService, f.Service)
	b = appendVarintField(b, pushFrameMethod, f.Method)
	b = appendStringField(b, pushFramePayloadEncoding, f.PayloadEncoding)
	b = appendStringField(b, pushFramePayloadType, f.PayloadType)
	b = appendBytesField(b, pushFramePayload, f.Payload)
	return b
}

// DecodeResponse 解压并解码消息批次。
// payload_encoding 为 gzip（或历史上未标注 encoding 但以 gzip 魔数开头）时先解压。
func DecodeResponse(frame *PushFrame) (*Response, error) {
	payload := frame.Payload
	if frame.PayloadEncoding == "gzip" || hasGzipMagic(payload) {
		inflated, err := gunzip(payload)
		if err != nil {
			return nil, &FrameDecodeError{Stage: "gzip", Err: err}
		}
		payload = inflated
	}

	resp := &Response{}
	err := walkFields(payload, func(num protowire.Number, varint uint64, raw []byte) error {
		switch num {
		case responseMessages:
			msg, err := decodeMessage(raw)
			if err != nil {
				return err
			}
			resp.Messages = append(resp.Messages, msg)
		case responseCursor:
			resp.Cursor = string(raw)
		case responseFetchInterval:
			resp.FetchInterval = varint
		case responseNow:
			resp.Now = varint
		case responseInternalExt:
			resp.InternalExt = string(raw)
		case responseFetchType:
			resp.FetchType = uint32(varint)
		case responseHeartbeatDuration:
			resp.HeartbeatDuration = varint
		case responseNeedAck:
			resp.NeedAck = varint != 0
		}
		return nil
	})
	if err != nil {
		return nil, &FrameDecodeError{Stage: "response", Err: err}
	}
	return resp, nil
}

func decodeMessage(b []byte) (*Message, error) {
	msg := &Message{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		switch num {
		case messageMethod:
			msg.Method = string(raw)
		case messagePayload:
			msg.Payload = raw
		case messageMsgID:
			msg.MsgID = int64(varint)
		case messageMsgType:
			msg.MsgType = int32(varint)
		case messageOffset:
			msg.Offset = int64(varint)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// NewHeartbeatFrame 构造心跳帧，连接期间每个心跳周期发送一次
func NewHeartbeatFrame() *PushFrame {
	return &PushFrame{PayloadType: PayloadTypeHeartbeat}
}

// NewAckFrame 构造 ack 帧：回显收到批次的 log_id，payload 携带 internal_ext
func NewAckFrame(logID uint64, internalExt string) *PushFrame {
	return &PushFrame{
		LogID:       logID,
		PayloadType: PayloadTypeAck,
		Payload:     []byte(internalExt),
	}
}

func hasGzipMagic(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func gunzip(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
