package mailer

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/gomail.v2"
)

type Attachment struct {
	Filename string
	Data     []byte
}

type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer dispatches a report over the external mail service.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPMailer sends through an SMTP relay with a bounded deadline so a hung
// server cannot stall the scheduler's critical section indefinitely.
type SMTPMailer struct {
	dialer  *gomail.Dialer
	from    string
	timeout time.Duration
}

func NewSMTPMailer(host string, port int, from, password string, timeout time.Duration) *SMTPMailer {
	return &SMTPMailer{
		dialer:  gomail.NewDialer(host, port, from, password),
		from:    from,
		timeout: timeout,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To...)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)

	for _, att := range msg.Attachments {
		data := att.Data
		gm.Attach(att.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(gm)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("dispatch mail: %w", err)
		}
		return nil
	case <-time.After(m.timeout):
		return fmt.Errorf("dispatch mail: timed out after %s", m.timeout)
	case <-ctx.Done():
		return fmt.Errorf("dispatch mail: %w", ctx.Err())
	}
}
