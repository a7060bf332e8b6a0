package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dylive-go/dylive-go/src/configs"
)

// Conn 推送通道连接的最小接口，方便测试替换
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer 建立推送通道连接
type Dialer interface {
	Dial(ctx context.Context, wssURL, ttwid, userAgent string) (Conn, error)
}

type wsDialer struct{}

// NewDialer 构造 Dialer，代理在每次建连时从当前配置读取
func NewDialer() Dialer {
	return &wsDialer{}
}

func (d *wsDialer) Dial(ctx context.Context, wssURL, ttwid, userAgent string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            configs.ProxyFunc,
	}

	header := http.Header{}
	header.Set("Cookie", "ttwid="+ttwid)
	header.Set("User-Agent", userAgent)
	header.Set("Origin", "https://live.douyin.com")

	conn, _, err := dialer.DialContext(ctx, wssURL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
