// Package dysentry 提供 Sentry 错误监控的封装
// 用于收集程序崩溃日志，同时避免把平台凭据带进上报数据
package dysentry

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	initialized bool
	initMu      sync.RWMutex
)

// 敏感关键字列表，用于过滤敏感数据
// ttwid / msToken / signature 是平台侧凭据，绝不能出现在上报里
var sensitiveKeywords = []string{
	"cookie", "token", "password", "secret", "auth", "credential",
	"ttwid", "mstoken", "ms_token", "signature", "sender_password",
}

// 敏感 URL 参数正则
var sensitiveURLPattern = regexp.MustCompile(`[?&](ttwid|msToken|signature|token|key|secret|password)[=][^&]*`)

// Init 初始化 Sentry SDK，dsn 为空则禁用
func Init(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
		BeforeSend:       beforeSendHook,
		SampleRate:       1.0,
	})
	if err != nil {
		return err
	}
	initMu.Lock()
	initialized = true
	initMu.Unlock()
	return nil
}

func IsInitialized() bool {
	initMu.RLock()
	defer initMu.RUnlock()
	return initialized
}

// Flush 刷新所有待发送事件（程序退出前调用）
func Flush(timeout time.Duration) {
	if !IsInitialized() {
		return
	}
	sentry.Flush(timeout)
}

// Recover 用于 goroutine 的 panic 恢复
// 注意：必须先调用 recover()，再检查 Sentry 状态，否则 panic 不会被捕获
func Recover() {
	err := recover()
	if err == nil {
		return
	}
	if IsInitialized() {
		if hub := sentry.CurrentHub(); hub != nil {
			hub.Recover(err)
		}
	}
	// 不重新 panic，让 goroutine 优雅退出
}

// RecoverWithContext 同 Recover，但从 context 取 hub
func RecoverWithContext(ctx context.Context) {
	err := recover()
	if err == nil {
		return
	}
	if IsInitialized() {
		hub := sentry.GetHubFromContext(ctx)
		if hub == nil {
			hub = sentry.CurrentHub()
		}
		if hub != nil {
			hub.RecoverWithContext(ctx, err)
		}
	}
}

func CaptureException(err error) {
	if !IsInitialized() || err == nil {
		return
	}
	sentry.CaptureException(err)
}

// Go 启动一个新的 goroutine 并自动添加 panic 恢复
func Go(f func()) {
	go func() {
		defer Recover()
		f()
	}()
}

// GoWithContext 启动一个新的 goroutine 并自动添加 panic 恢复（带 Context）
func GoWithContext(ctx context.Context, f func(context.Context)) {
	go func() {
		defer RecoverWithContext(ctx)
		f(ctx)
	}()
}

// beforeSendHook 在发送事件前清理敏感数据
func beforeSendHook(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event.Message != "" {
		event.Message = sanitizeString(event.Message)
	}
	for i := range event.Exception {
		if event.Exception[i].Value != "" {
			event.Exception[i].Value = sanitizeString(event.Exception[i].Value)
		}
	}
	event.Extra = sanitizeMap(event.Extra)
	event.Tags = sanitizeTags(event.Tags)
	if event.Request != nil {
		event.Request.URL = sensitiveURLPattern.ReplaceAllString(event.Request.URL, "$1=[REDACTED]")
		event.Request.Cookies = "[REDACTED]"
		event.Request.Data = sanitizeString(event.Request.Data)
	}
	return event
}

func sanitizeString(s string) string {
	result := sensitiveURLPattern.ReplaceAllString(s, "$1=[REDACTED]")
	for _, keyword := range sensitiveKeywords {
		pattern := regexp.MustCompile(`(?i)(` + regexp.QuoteMeta(keyword) + `)\s*[=:]\s*[^\s,}"\]]+`)
		result = pattern.ReplaceAllString(result, "$1=[REDACTED]")
	}
	return result
}

func sanitizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	result := make(map[string]interface{}, len(m))
	for key, value := range m {
		switch {
		case isSensitiveKey(key):
			result[key] = "[REDACTED]"
		default:
			if strVal, ok := value.(string); ok {
				result[key] = sanitizeString(strVal)
			} else {
				result[key] = value
			}
		}
	}
	return result
}

func sanitizeTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	result := make(map[string]string, len(tags))
	for key, value := range tags {
		if isSensitiveKey(key) {
			result[key] = "[REDACTED]"
		} else {
			result[key] = sanitizeString(value)
		}
	}
	return result
}

func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(keyLower, keyword) {
			return true
		}
	}
	return false
}
