package notify

import (
	"context"
	"fmt"
	"html"
	"log"

	gomail "gopkg.in/gomail.v2"
)

// Notifier delivers assignment notifications. Delivery failures are the
// caller's to log; an assignment never fails because mail did not go out.
type Notifier interface {
	TestAssigned(ctx context.Context, to []string, testName, groupName string) error
}

// Nop is used when SMTP is not configured.
type Nop struct{}

func (Nop) TestAssigned(context.Context, []string, string, string) error { return nil }

type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTP(host string, port int, user, pass, from string) *SMTPNotifier {
	return &SMTPNotifier{dialer: gomail.NewDialer(host, port, user, pass), from: from}
}

func (n *SMTPNotifier) TestAssigned(ctx context.Context, to []string, testName, groupName string) error {
	if len(to) == 0 {
		return nil
	}
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", fmt.Sprintf("New test assigned: %s", testName))
	m.SetBody("text/html", assignedBody(testName, groupName))

	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func assignedBody(testName, groupName string) string {
	return fmt.Sprintf(
		`<p>Hello,</p>
<p>The test <strong>%s</strong> has been assigned to your group <strong>%s</strong>.</p>
<p>Log in to take it before the deadline your teacher announced.</p>`,
		html.EscapeString(testName), html.EscapeString(groupName))
}

// LogFailure records a delivery error without aborting the request.
func LogFailure(err error, testName, groupName string) {
	if err != nil {
		log.Printf("notify: assignment mail for %q to group %q failed: %v", testName, groupName, err)
	}
}
