package mail

import (
	"context"
	"github.com/hauke96/sigolo/v2"
	"sync"
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Provider interface {
	Send(ctx context.Context, message Message) error
}

// MockProvider logs messages instead of sending them. It is used when no mail API key is configured.
type MockProvider struct {
	mutex sync.Mutex
	sent  []Message
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Send(ctx context.Context, message Message) error {
	sigolo.Infof("Mock mail to %s with subject '%s' (%d bytes HTML, %d bytes text)", message.To, message.Subject, len(message.HTML), len(message.Text))
	if sigolo.ShouldLogTrace() {
		sigolo.Tracef("Mail text:\n%s", message.Text)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sent = append(m.sent, message)
	return nil
}

// Sent returns all messages passed to this provider so far.
func (m *MockProvider) Sent() []Message {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]Message{}, m.sent...)
}
