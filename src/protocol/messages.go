package protocol

import (
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// 已知的消息 method
const (
	MethodChat        = "WebcastChatMessage"
	MethodGift        = "WebcastGiftMessage"
	MethodMember      = "WebcastMemberMessage"
	MethodLike        = "WebcastLikeMessage"
	MethodSocial      = "WebcastSocialMessage"
	MethodRoomUserSeq = "WebcastRoomUserSeqMessage"
	MethodControl     = "WebcastControlMessage"
	MethodFansclub    = "WebcastFansclubMessage"
	MethodEmojiChat   = "WebcastEmojiChatMessage"
)

// Common 所有消息共有的头部
type Common struct {
	Method     string
	MsgID      uint64
	RoomID     uint64
	CreateTime uint64
}

func decodeCommon(b []byte) (*Common, error) {
	c := &Common{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		switch num {
		case 1:
			c.Method = string(raw)
		case 2:
			c.MsgID = varint
		case 3:
			c.RoomID = varint
		case 4:
			c.CreateTime = varint
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// User 消息中携带的用户信息
type User struct {
	ID       uint64
	ShortID  uint64
	Nickname string
	Gender   uint32
	Level    uint32
}

func decodeUser(b []byte) (*User, error) {
	u := &User{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		switch num {
		case 1:
			u.ID = varint
		case 2:
			u.ShortID = varint
		case 3:
			u.Nickname = string(raw)
		case 4:
			u.Gender = uint32(varint)
		case 6:
			u.Level = uint32(varint)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ChatMessage 弹幕
type ChatMessage struct {
	Common  *Common
	User    *User
	Content string
}

func DecodeChatMessage(b []byte) (*ChatMessage, error) {
	msg := &ChatMessage{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		var err error
		switch num {
		case 1:
			msg.Common, err = decodeCommon(raw)
		case 2:
			msg.User, err = decodeUser(raw)
		case 3:
			msg.Content = string(raw)
		}
		return err
	})
	if err != nil {
		return nil, &MessageDecodeError{Method: MethodChat, Err: err}
	}
	return msg, nil
}

// GiftDetail 礼物静态信息
type GiftDetail struct {
	Describe     string
	ID           uint64
	DiamondCount uint32
	Name         string
}

func decodeGiftDetail(b []byte) (*GiftDetail, error) {
	g := &GiftDetail{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		switch num {
		case 2:
			g.Describe = string(raw)
		case 5:
			g.ID = varint
		case 12:
			g.DiamondCount = uint32(varint)
		case 16:
			g.Name = string(raw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GiftMessage 礼物。连击礼物的 ComboCount 是权威总数而非增量，
// RepeatEnd==1 标记连击结束，TraceID 在重发时保持不变。
type GiftMessage struct {
	Common         *Common
	GiftID         uint64
	FanTicketCount uint64
	GroupCount     uint64
	RepeatCount    uint64
	ComboCount     uint64
	User           *User
	RepeatEnd      uint32
	Gift           *GiftDetail
	SendType       uint64
	GroupID        uint64
	TraceID        string
}

func DecodeGiftMessage(b []byte) (*GiftMessage, error) {
	msg := &GiftMessage{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		var err error
		switch num {
		case 1:
			msg.Common, err = decodeCommon(raw)
		case 2:
			msg.GiftID = varint
		case 3:
			msg.FanTicketCount = varint
		case 4:
			msg.GroupCount = varint
		case 5:
			msg.RepeatCount = varint
		case 6:
			msg.ComboCount = varint
		case 7:
			msg.User, err = decodeUser(raw)
		case 9:
			msg.RepeatEnd = uint32(varint)
		case 15:
			msg.Gift, err = decodeGiftDetail(raw)
		case 34:
			msg.SendType = varint
		case 35:
			msg.GroupID = varint
		case 36:
			msg.TraceID = string(raw)
		}
		return err
	})
	if err != nil {
		return nil, &MessageDecodeError{Method: MethodGift, Err: err}
	}
	return msg, nil
}

// MemberMessage 进场
type MemberMessage struct {
	Common      *Common
	User        *User
	MemberCount uint64
}

func DecodeMemberMessage(b []byte) (*MemberMessage, error) {
	msg := &MemberMessage{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		var err error
		switch num {
		case 1:
			msg.Common, err = decodeCommon(raw)
		case 2:
			msg.User, err = decodeUser(raw)
		case 3:
			msg.MemberCount = varint
		}
		return err
	})
	if err != nil {
		return nil, &MessageDecodeError{Method: MethodMember, Err: err}
	}
	return msg, nil
}

// LikeMessage 点赞，Count 为本条新增、Total 为累计
type LikeMessage struct {
	Common *Common
	Count  uint64
	Total  uint64
	User   *User
}

func DecodeLikeMessage(b []byte) (*LikeMessage, error) {
	msg := &LikeMessage{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		var err error
		switch num {
		case 1:
			msg.Common, err = decodeCommon(raw)
		case 2:
			msg.Count = varint
		case 3:
			msg.Total = varint
		case 5:
			msg.User, err = decodeUser(raw)
		}
		return err
	})
	if err != nil {
		return nil, &MessageDecodeError{Method: MethodLike, Err: err}
	}
	return msg, nil
}

// SocialMessage 关注/分享，Action==1 表示关注
type SocialMessage struct {
	Common      *Common
	User        *User
	ShareType   uint64
	Action      uint64
	FollowCount uint64
}

func DecodeSocialMessage(b []byte) (*SocialMessage, error) {
	msg := &SocialMessage{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		var err error
		switch num {
		case 1:
			msg.Common, err = decodeCommon(raw)
		case 2:
			msg.User, err = decodeUser(raw)
		case 3:
			msg.ShareType = varint
		case 4:
			msg.Action = varint
		case 6:
			msg.FollowCount = varint
		}
		return err
	})
	if err != nil {
		return nil, &MessageDecodeError{Method: MethodSocial, Err: err}
	}
	return msg, nil
}

// RoomUserSeqMessage 在线人数序列。Total 为当前在线，
// TotalPVForAnchor 是形如 "1.2万" 的累计观看人次
type RoomUserSeqMessage struct {
	Common           *Common
	Total            uint64
	TotalUser        uint64
	TotalPVForAnchor string
}

func DecodeRoomUserSeqMessage(b []byte) (*RoomUserSeqMessage, error) {
	msg := &RoomUserSeqMessage{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		var err error
		switch num {
		case 1:
			msg.Common, err = decodeCommon(raw)
		case 3:
			msg.Total = varint
		case 4:
			msg.TotalUser = varint
		case 12:
			msg.TotalPVForAnchor = string(raw)
		}
		return err
	})
	if err != nil {
		return nil, &MessageDecodeError{Method: MethodRoomUserSeq, Err: err}
	}
	return msg, nil
}

// ControlStatusStreamEnded 表示主播已下播
const ControlStatusStreamEnded = 3

// ControlMessage 房间控制指令
type ControlMessage struct {
	Common *Common
	Status uint64
}

func DecodeControlMessage(b []byte) (*ControlMessage, error) {
	msg := &ControlMessage{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		var err error
		switch num {
		case 1:
			msg.Common, err = decodeCommon(raw)
		case 2:
			msg.Status = varint
		}
		return err
	})
	if err != nil {
		return nil, &MessageDecodeError{Method: MethodControl, Err: err}
	}
	return msg, nil
}

// FansclubMessage 粉丝团（加入 / 升级）
type FansclubMessage struct {
	Common  *Common
	Type    uint64
	Content string
	User    *User
}

func DecodeFansclubMessage(b []byte) (*FansclubMessage, error) {
	msg := &FansclubMessage{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		var err error
		switch num {
		case 1:
			msg.Common, err = decodeCommon(raw)
		case 2:
			msg.Type = varint
		case 3:
			msg.Content = string(raw)
		case 4:
			msg.User, err = decodeUser(raw)
		}
		return err
	})
	if err != nil {
		return nil, &MessageDecodeError{Method: MethodFansclub, Err: err}
	}
	return msg, nil
}

// EmojiChatMessage 会员表情弹幕
type EmojiChatMessage struct {
	Common         *Common
	User           *User
	EmojiID        uint64
	DefaultContent string
}

func DecodeEmojiChatMessage(b []byte) (*EmojiChatMessage, error) {
	msg := &EmojiChatMessage{}
	err := walkFields(b, func(num protowire.Number, varint uint64, raw []byte) error {
		var err error
		switch num {
		case 1:
			msg.Common, err = decodeCommon(raw)
		case 2:
			msg.User, err = decodeUser(raw)
		case 3:
			msg.EmojiID = varint
		case 5:
			msg.DefaultContent = string(raw)
		}
		return err
	})
	if err != nil {
		return nil, &MessageDecodeError{Method: MethodEmojiChat, Err: err}
	}
	return msg, nil
}

// ParseCompactNumber 解析 "1.2万"、"3亿" 这类带中文数量单位的计数，
// 无法解析时返回 0
func ParseCompactNumber(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	multiplier := float64(1)
	switch {
	case strings.HasSuffix(s, "亿"):
		multiplier = 1e8
		s = strings.TrimSuffix(s, "亿")
	case strings.HasSuffix(s, "万"):
		multiplier = 1e4
		s = strings.TrimSuffix(s, "万")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(v * multiplier)
}
