// Package email 邮件发送 mock 实现
package email

import "sync"

// MockSender 记录邮件的测试实现
type MockSender struct {
	mu       sync.Mutex
	Messages []Message
	Err      error // 非 nil 时 Send 返回该错误
}

// NewMockSender 创建 MockSender 实例
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send 记录邮件或返回预设错误
func (m *MockSender) Send(msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

// Last 返回最近一封邮件，未发送过返回 nil
func (m *MockSender) Last() *Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		return nil
	}
	msg := m.Messages[len(m.Messages)-1]
	return &msg
}

var _ Sender = (*MockSender)(nil)
