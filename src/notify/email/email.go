// Package email 通过 SMTP 发送通知邮件
package email

import (
	"errors"

	gomail "gopkg.in/gomail.v2"

	"github.com/dylive-go/dylive-go/src/configs"
)

// SendEmail 按当前配置发送一封纯文本邮件
func SendEmail(subject, body string) error {
	cfg := configs.GetCurrentConfig()
	if cfg == nil {
		return errors.New("configuration is nil")
	}
	ec := cfg.Notify.Email
	if ec.SMTPHost == "" || ec.SenderEmail == "" || ec.RecipientEmail == "" {
		return errors.New("email notify is not fully configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", ec.SenderEmail)
	m.SetHeader("To", ec.RecipientEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(ec.SMTPHost, ec.SMTPPort, ec.SenderEmail, ec.SenderPassword)
	return d.DialAndSend(m)
}
