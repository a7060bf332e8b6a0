package douyin

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/robertkrimen/otto"
)

// signatureParams 参与签名的参数及其顺序，与平台 JS 侧保持一致，不可调整
var signatureParams = []string{
	"live_id", "aid", "version_code", "webcast_sdk_version",
	"room_id", "sub_room_id", "sub_channel_id", "did_rule",
	"user_unique_id", "device_platform", "device_type", "ac",
	"identity",
}

// Signer 为 WebSocket 连接地址生成 signature 参数
type Signer interface {
	Sign(wssURL string) (string, error)
}

// SignatureDigest 从 WebSocket URL 中取出签名参数，
// 按固定顺序拼成 "k=v,k=v,..." 后求 md5 hex
func SignatureDigest(wssURL string) (string, error) {
	u, err := url.Parse(wssURL)
	if err != nil {
		return "", err
	}
	query := u.Query()
	pairs := make([]string, 0, len(signatureParams))
	for _, key := range signatureParams {
		pairs = append(pairs, key+"="+query.Get(key))
	}
	sum := md5.Sum([]byte(strings.Join(pairs, ",")))
	return hex.EncodeToString(sum[:]), nil
}

// JSSigner 通过 otto 执行平台的 get_sign 脚本
// otto 的 VM 不是并发安全的，所有调用串行化
type JSSigner struct {
	mu sync.Mutex
	vm *otto.Otto
}

// NewJSSigner 加载签名脚本并校验 get_sign 函数可用
func NewJSSigner(scriptPath string) (*JSSigner, error) {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, &SignatureError{Err: err}
	}
	vm := otto.New()
	if _, err := vm.Run(string(src)); err != nil {
		return nil, &SignatureError{Err: err}
	}
	fn, err := vm.Get("get_sign")
	if err != nil || !fn.IsFunction() {
		return nil, &SignatureError{Err: errors.New("script does not define get_sign")}
	}
	return &JSSigner{vm: vm}, nil
}

func (s *JSSigner) Sign(wssURL string) (string, error) {
	digest, err := SignatureDigest(wssURL)
	if err != nil {
		return "", &SignatureError{Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	value, err := s.vm.Call("get_sign", nil, digest)
	if err != nil {
		return "", &SignatureError{Err: err}
	}
	signature, err := value.ToString()
	if err != nil || signature == "" || signature == "undefined" {
		return "", &SignatureError{Err: errors.New("get_sign returned no value")}
	}
	return signature, nil
}

const msTokenChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// GenerateMsToken 生成请求 cookie 中的 msToken 字段，默认 182 位随机字符
func GenerateMsToken(length int) string {
	if length <= 0 {
		length = 182
	}
	buf := make([]byte, length)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = msTokenChars[int(b)%len(msTokenChars)]
	}
	return string(buf)
}

// GenerateUserUniqueID 生成一个 19 位的数字设备标识
func GenerateUserUniqueID() string {
	buf := make([]byte, 19)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = '0' + b%10
	}
	// 首位不为 0
	if buf[0] == '0' {
		buf[0] = '7'
	}
	return string(buf)
}
