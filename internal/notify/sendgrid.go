package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendgridDispatcher delivers guardian notifications by email.
type SendgridDispatcher struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	schoolName string
}

var _ Dispatcher = (*SendgridDispatcher)(nil)

// NewSendgridDispatcher builds a dispatcher for the given API key.
func NewSendgridDispatcher(apiKey, fromEmail, schoolName string) *SendgridDispatcher {
	return &SendgridDispatcher{
		client:     sendgrid.NewSendClient(apiKey),
		from:       sgmail.NewEmail(schoolName, fromEmail),
		schoolName: schoolName,
	}
}

// Send emails every recipient. The first delivery error is returned after all
// recipients have been attempted.
func (d *SendgridDispatcher) Send(_ context.Context, n Notification) error {
	subject, body := d.compose(n)
	var firstErr error
	for _, to := range n.Recipients {
		m := sgmail.NewSingleEmail(d.from, subject, sgmail.NewEmail("", to), body, "")
		resp, err := d.client.Send(m)
		if err == nil && resp.StatusCode >= 400 {
			err = fmt.Errorf("sendgrid status %d", resp.StatusCode)
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("send to %s: %w", to, err)
		}
	}
	return firstErr
}

func (d *SendgridDispatcher) compose(n Notification) (subject, body string) {
	verb := "entered"
	if n.EventType == EventExit {
		verb = "left"
	}
	subject = fmt.Sprintf("[%s] %s %s the school", d.schoolName, n.SubjectName, verb)
	body = fmt.Sprintf("%s %s the school at %s.", n.SubjectName, verb, n.EventTime.Format(time.RFC1123))
	return subject, body
}
