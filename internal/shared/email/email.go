// Package email 邮件发送抽象与 SMTP 实现
//
// 找回密码流程通过 Sender 发送重置链接，接口化便于测试时替换。
package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Message 待发送的邮件
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender 邮件发送接口
type Sender interface {
	Send(msg Message) error
}

// ============================================================================
// SMTP 实现
// ============================================================================

// SMTPConfig SMTP 服务器配置
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender 基于 net/smtp 的发送实现
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender 创建 SMTP 发送器
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send 发送邮件
func (s *SMTPSender) Send(msg Message) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

var _ Sender = (*SMTPSender)(nil)

// ============================================================================
// 密码重置邮件
// ============================================================================

// ResetMessage 构造密码重置邮件
func ResetMessage(to, resetURL string) Message {
	body := fmt.Sprintf(
		"Forgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s.\nIf you didn't forget your password, please ignore this email!",
		resetURL,
	)
	return Message{
		To:      to,
		Subject: "Your password reset token (valid for 10 min)",
		Body:    body,
	}
}
