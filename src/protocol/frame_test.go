package protocol

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// 测试用的 wire 编码辅助函数

func encodeUser(u *User) []byte {
	var b []byte
	b = appendVarintField(b, 1, u.ID)
	b = appendVarintField(b, 2, u.ShortID)
	b = appendStringField(b, 3, u.Nickname)
	b = appendVarintField(b, 4, uint64(u.Gender))
	b = appendVarintField(b, 6, uint64(u.Level))
	return b
}

func encodeCommon(c *Common) []byte {
	var b []byte
	b = appendStringField(b, 1, c.Method)
	b = appendVarintField(b, 2, c.MsgID)
	b = appendVarintField(b, 3, c.RoomID)
	b = appendVarintField(b, 4, c.CreateTime)
	return b
}

func encodeChat(m *ChatMessage) []byte {
	var b []byte
	if m.Common != nil {
		b = appendBytesField(b, 1, encodeCommon(m.Common))
	}
	if m.User != nil {
		b = appendBytesField(b, 2, encodeUser(m.User))
	}
	b = appendStringField(b, 3, m.Content)
	return b
}

func encodeGift(m *GiftMessage) []byte {
	var b []byte
	if m.Common != nil {
		b = appendBytesField(b, 1, encodeCommon(m.Common))
	}
	b = appendVarintField(b, 2, m.GiftID)
	b = appendVarintField(b, 4, m.GroupCount)
	b = appendVarintField(b, 5, m.RepeatCount)
	b = appendVarintField(b, 6, m.ComboCount)
	if m.User != nil {
		b = appendBytesField(b, 7, encodeUser(m.User))
	}
	b = appendVarintField(b, 9, uint64(m.RepeatEnd))
	if m.Gift != nil {
		var g []byte
		g = appendStringField(g, 2, m.Gift.Describe)
		g = appendVarintField(g, 5, m.Gift.ID)
		g = appendVarintField(g, 12, uint64(m.Gift.DiamondCount))
		g = appendStringField(g, 16, m.Gift.Name)
		b = appendBytesField(b, 15, g)
	}
	b = appendVarintField(b, 34, m.SendType)
	b = appendVarintField(b, 35, m.GroupID)
	b = appendStringField(b, 36, m.TraceID)
	return b
}

func encodeWireMessage(method string, payload []byte) []byte {
	var b []byte
	b = appendStringField(b, messageMethod, method)
	b = appendBytesField(b, messagePayload, payload)
	return b
}

func encodeResponse(t *testing.T, resp *Response, compress bool) *PushFrame {
	t.Helper()
	var b []byte
	for _, msg := range resp.Messages {
		b = appendBytesField(b, responseMessages, encodeWireMessage(msg.Method, msg.Payload))
	}
	b = appendStringField(b, responseCursor, resp.Cursor)
	b = appendStringField(b, responseInternalExt, resp.InternalExt)
	if resp.NeedAck {
		b = protowire.AppendTag(b, responseNeedAck, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}

	frame := &PushFrame{LogID: 42, PayloadType: PayloadTypeMsg, Payload: b}
	if compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write(b)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		frame.PayloadEncoding = "gzip"
		frame.Payload = buf.Bytes()
	}
	return frame
}

func TestPushFrameRoundTrip(t *testing.T) {
	t.Run("心跳帧", func(t *testing.T) {
		raw := NewHeartbeatFrame().Marshal()
		frame, err := DecodePushFrame(raw)
		require.NoError(t, err)
		assert.Equal(t, PayloadTypeHeartbeat, frame.PayloadType)
		assert.Empty(t, frame.Payload)
	})

	t.Run("ack帧回显log_id和internal_ext", func(t *testing.T) {
		raw := NewAckFrame(987, "ext-token").Marshal()
		frame, err := DecodePushFrame(raw)
		require.NoError(t, err)
		assert.Equal(t, uint64(987), frame.LogID)
		assert.Equal(t, PayloadTypeAck, frame.PayloadType)
		assert.Equal(t, "ext-token", string(frame.Payload))
	})
}

func TestDecodePushFrameMalformed(t *testing.T) {
	_, err := DecodePushFrame([]byte{0xff, 0xff, 0xff, 0xff})
	require.Error(t, err)
	var fde *FrameDecodeError
	require.ErrorAs(t, err, &fde)
	assert.Equal(t, "frame", fde.Stage)
}

func TestDecodeResponseGzip(t *testing.T) {
	chat := encodeChat(&ChatMessage{
		Common:  &Common{RoomID: 7383, MsgID: 1},
		User:    &User{ID: 100, Nickname: "观众甲"},
		Content: "主播好",
	})
	frame := encodeResponse(t, &Response{
		Messages:    []*Message{{Method: MethodChat, Payload: chat}},
		Cursor:      "c-1",
		InternalExt: "iext",
		NeedAck:     true,
	}, true)

	// 经过完整的 Marshal → DecodePushFrame → DecodeResponse 链路
	decoded, err := DecodePushFrame(frame.Marshal())
	require.NoError(t, err)
	resp, err := DecodeResponse(decoded)
	require.NoError(t, err)

	assert.True(t, resp.NeedAck)
	assert.Equal(t, "iext", resp.InternalExt)
	assert.Equal(t, "c-1", resp.Cursor)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, MethodChat, resp.Messages[0].Method)

	msg, err := DecodeChatMessage(resp.Messages[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "主播好", msg.Content)
	assert.Equal(t, "观众甲", msg.User.Nickname)
	assert.Equal(t, uint64(7383), msg.Common.RoomID)
}

func TestDecodeResponseUncompressed(t *testing.T) {
	frame := encodeResponse(t, &Response{Cursor: "c-2"}, false)
	resp, err := DecodeResponse(frame)
	require.NoError(t, err)
	assert.Equal(t, "c-2", resp.Cursor)
	assert.False(t, resp.NeedAck)
	assert.Empty(t, resp.Messages)
}

func TestDecodeResponseBadGzip(t *testing.T) {
	frame := &PushFrame{PayloadEncoding: "gzip", Payload: []byte("not gzip at all")}
	_, err := DecodeResponse(frame)
	var fde *FrameDecodeError
	require.ErrorAs(t, err, &fde)
	assert.Equal(t, "gzip", fde.Stage)
}

func TestDecodeGiftMessage(t *testing.T) {
	payload := encodeGift(&GiftMessage{
		Common:     &Common{RoomID: 1},
		GiftID:     685,
		GroupCount: 1,
		ComboCount: 3,
		User:       &User{ID: 55, Nickname: "大哥"},
		RepeatEnd:  1,
		Gift:       &GiftDetail{ID: 685, Name: "玫瑰", DiamondCount: 1},
		SendType:   0,
		GroupID:    900001,
		TraceID:    "t1",
	})
	msg, err := DecodeGiftMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), msg.ComboCount)
	assert.Equal(t, uint32(1), msg.RepeatEnd)
	assert.Equal(t, uint64(900001), msg.GroupID)
	assert.Equal(t, "t1", msg.TraceID)
	assert.Equal(t, "玫瑰", msg.Gift.Name)
	assert.Equal(t, uint32(1), msg.Gift.DiamondCount)
}

func TestParseCompactNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"123", 123},
		{"1.2万", 12000},
		{"3亿", 300000000},
		{" 2.5万 ", 25000},
		{"", 0},
		{"abc", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCompactNumber(tt.in), tt.in)
	}
}
