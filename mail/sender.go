package mail

import (
	"context"
	"fmt"
	"github.com/codeGROOVE-dev/retry"
	"github.com/hauke96/sigolo/v2"
	"time"
)

const (
	DefaultAttempts   = 3
	DefaultRetryDelay = time.Second
)

// DeliveryError is returned when a message could not be delivered after all attempts.
type DeliveryError struct {
	To  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("Unable to deliver mail to %s: %s", e.To, e.Err.Error())
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Sender delivers messages through a provider and retries failed attempts.
type Sender struct {
	provider   Provider
	attempts   uint
	retryDelay time.Duration
}

func NewSender(provider Provider, attempts uint, retryDelay time.Duration) *Sender {
	if attempts == 0 {
		attempts = DefaultAttempts
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Sender{
		provider:   provider,
		attempts:   attempts,
		retryDelay: retryDelay,
	}
}

func (s *Sender) Send(ctx context.Context, message Message) error {
	sigolo.Debugf("Send mail to %s with subject '%s'", message.To, message.Subject)

	err := retry.Do(
		func() error {
			return s.provider.Send(ctx, message)
		},
		retry.Attempts(s.attempts),
		retry.Delay(s.retryDelay),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(s.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			sigolo.Warnf("Sending mail to %s failed (attempt %d): %s", message.To, n+1, err.Error())
		}),
	)
	if err != nil {
		return &DeliveryError{To: message.To, Err: err}
	}

	sigolo.Infof("Sent mail to %s", message.To)
	return nil
}
