// Package notify 在开播和下播时向外发送通知。
package notify

import (
	"fmt"

	"github.com/dylive-go/dylive-go/src/configs"
	"github.com/dylive-go/dylive-go/src/consts"
	applog "github.com/dylive-go/dylive-go/src/log"
	"github.com/dylive-go/dylive-go/src/monitor"
	"github.com/dylive-go/dylive-go/src/notify/email"
	"github.com/dylive-go/dylive-go/src/pkg/dysentry"
	"github.com/dylive-go/dylive-go/src/pkg/events"
)

// for test
var sendEmail = email.SendEmail

// SendNotification 发送直播状态变更通知
// status 取 consts.LiveStatusStart / consts.LiveStatusStop
func SendNotification(anchorName, liveID, status string) error {
	cfg := configs.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var messageStatus string
	switch status {
	case consts.LiveStatusStart:
		messageStatus = "已开始直播,正在监控中"
	case consts.LiveStatusStop:
		messageStatus = "已结束直播"
	default:
		messageStatus = "直播状态未知"
	}

	hostInfo := fmt.Sprintf("%s,%s", anchorName, messageStatus)
	liveURL := "https://live.douyin.com/" + liveID

	if cfg.Notify.Email.Enable {
		subject := fmt.Sprintf("%s - 抖音", hostInfo)
		body := fmt.Sprintf("主播：%s\n平台：抖音\n直播地址：%s", hostInfo, liveURL)
		if err := sendEmail(subject, body); err != nil {
			applog.GetLogger().WithError(err).Error("Failed to send email")
			return err
		}
	}
	return nil
}

// RegisterEventListeners 把通知接到事件总线的开播/下播事件上
// SMTP 发送较慢，放到独立 goroutine 执行，不占用事件派发循环
func RegisterEventListeners(ed events.Dispatcher) {
	ed.AddEventListener(monitor.EventLiveStart, events.NewEventListener(func(event *events.Event) {
		live := event.Object.(*monitor.LiveEvent)
		dysentry.Go(func() {
			if err := SendNotification(live.AnchorName, live.LiveID, consts.LiveStatusStart); err != nil {
				applog.WithFields(map[string]interface{}{"live_id": live.LiveID}).
					WithError(err).Error("failed to send live start notification")
			}
		})
	}))
	ed.AddEventListener(monitor.EventLiveEnd, events.NewEventListener(func(event *events.Event) {
		live := event.Object.(*monitor.LiveEvent)
		dysentry.Go(func() {
			if err := SendNotification(live.AnchorName, live.LiveID, consts.LiveStatusStop); err != nil {
				applog.WithFields(map[string]interface{}{"live_id": live.LiveID}).
					WithError(err).Error("failed to send live end notification")
			}
		})
	}))
}
