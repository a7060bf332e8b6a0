package protocol

import (
	"github.com/sirupsen/logrus"

	"github.com/dylive-go/dylive-go/src/metrics"
)

// DefaultDriftThreshold 同一 method 连续解码失败多少次后判定协议漂移
const DefaultDriftThreshold = 50

// Router 把 Response 批次内的消息按 method 解码并分发到对应回调。
// 单条消息解码失败只丢该条；未注册的 method 计数后跳过。
// 回调为 nil 时该类消息被静默丢弃。
type Router struct {
	OnChat        func(*ChatMessage)
	OnGift        func(*GiftMessage)
	OnMember      func(*MemberMessage)
	OnLike        func(*LikeMessage)
	OnSocial      func(*SocialMessage)
	OnRoomUserSeq func(*RoomUserSeqMessage)
	OnControl     func(*ControlMessage)
	OnFansclub    func(*FansclubMessage)
	OnEmojiChat   func(*EmojiChatMessage)

	// DriftThreshold <=0 时使用 DefaultDriftThreshold
	DriftThreshold int

	Logger *logrus.Entry

	failures map[string]int
}

// RouteAll 依次分发一个批次内的全部消息。
// 返回的错误只可能是 *ProtocolDriftError，解码错误在内部记录后吞掉。
func (r *Router) RouteAll(msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.Route(msg); err != nil {
			return err
		}
	}
	return nil
}

// Route 分发单条消息
func (r *Router) Route(msg *Message) error {
	metrics.MessagesTotal.WithLabelValues(msg.Method).Inc()

	var err error
	switch msg.Method {
	case MethodChat:
		var m *ChatMessage
		if m, err = DecodeChatMessage(msg.Payload); err == nil && r.OnChat != nil {
			r.OnChat(m)
		}
	case MethodGift:
		var m *GiftMessage
		if m, err = DecodeGiftMessage(msg.Payload); err == nil && r.OnGift != nil {
			r.OnGift(m)
		}
	case MethodMember:
		var m *MemberMessage
		if m, err = DecodeMemberMessage(msg.Payload); err == nil && r.OnMember != nil {
			r.OnMember(m)
		}
	case MethodLike:
		var m *LikeMessage
		if m, err = DecodeLikeMessage(msg.Payload); err == nil && r.OnLike != nil {
			r.OnLike(m)
		}
	case MethodSocial:
		var m *SocialMessage
		if m, err = DecodeSocialMessage(msg.Payload); err == nil && r.OnSocial != nil {
			r.OnSocial(m)
		}
	case MethodRoomUserSeq:
		var m *RoomUserSeqMessage
		if m, err = DecodeRoomUserSeqMessage(msg.Payload); err == nil && r.OnRoomUserSeq != nil {
			r.OnRoomUserSeq(m)
		}
	case MethodControl:
		var m *ControlMessage
		if m, err = DecodeControlMessage(msg.Payload); err == nil && r.OnControl != nil {
			r.OnControl(m)
		}
	case MethodFansclub:
		var m *FansclubMessage
		if m, err = DecodeFansclubMessage(msg.Payload); err == nil && r.OnFansclub != nil {
			r.OnFansclub(m)
		}
	case MethodEmojiChat:
		var m *EmojiChatMessage
		if m, err = DecodeEmojiChatMessage(msg.Payload); err == nil && r.OnEmojiChat != nil {
			r.OnEmojiChat(m)
		}
	default:
		metrics.UnknownMethods.Inc()
		return nil
	}

	if err != nil {
		return r.recordFailure(msg.Method, err)
	}
	if r.failures != nil {
		delete(r.failures, msg.Method)
	}
	return nil
}

func (r *Router) recordFailure(method string, err error) error {
	metrics.MessageDecodeErrors.WithLabelValues(method).Inc()
	if r.Logger != nil {
		r.Logger.WithError(err).WithField("method", method).Warn("failed to decode message")
	}
	if r.failures == nil {
		r.failures = make(map[string]int)
	}
	r.failures[method]++

	threshold := r.DriftThreshold
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}
	if r.failures[method] >= threshold {
		return &ProtocolDriftError{Method: method, Consecutive: r.failures[method]}
	}
	return nil
}
