package report

import (
	"context"
	"github.com/google/uuid"
	"github.com/hauke96/sigolo/v2"
	"github.com/jonboulle/clockwork"
	"osm4cities/mail"
	"time"
)

type MessageSender interface {
	Send(ctx context.Context, message mail.Message) error
}

type SentMarker interface {
	MarkReportSent(ctx context.Context, userID uuid.UUID, when time.Time) error
}

type TaskResult struct {
	Sent   bool       `json:"sent"`
	UserID *uuid.UUID `json:"userId,omitempty"`
}

// Task sends the report of the next due user. A user is only marked as notified after the mail was delivered, so a
// failed delivery is attempted again on the next run.
type Task struct {
	generator *Generator
	sender    MessageSender
	marker    SentMarker
	clock     clockwork.Clock
}

func NewTask(generator *Generator, sender MessageSender, marker SentMarker, clock clockwork.Clock) *Task {
	return &Task{
		generator: generator,
		sender:    sender,
		marker:    marker,
		clock:     clock,
	}
}

func (t *Task) SendNext(ctx context.Context) (*TaskResult, error) {
	report, err := t.generator.GenerateNext(ctx)
	if err != nil {
		return nil, err
	}
	if report == nil {
		sigolo.Infof("No user due for a report")
		return &TaskResult{Sent: false}, nil
	}

	userID := report.User.ID
	message := mail.Message{
		To:      report.User.Email,
		Subject: report.Content.Subject,
		HTML:    report.Content.HTML,
		Text:    report.Content.Text,
	}

	err = t.sender.Send(ctx, message)
	if err != nil {
		sigolo.Errorf("Report of user %s not delivered, user stays due: %+v", userID, err)
		return nil, err
	}

	err = t.marker.MarkReportSent(ctx, userID, t.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	sigolo.Infof("Sent report to user %s", userID)
	return &TaskResult{Sent: true, UserID: &userID}, nil
}
