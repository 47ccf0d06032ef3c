package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	gomail "gopkg.in/gomail.v2"
)

// SMTPProvider sends the transcript directly over SMTP.
type SMTPProvider struct {
	dialer *gomail.Dialer
}

func NewSMTPProvider(host string, port int, username, password string) *SMTPProvider {
	return &SMTPProvider{
		dialer: gomail.NewDialer(host, port, username, password),
	}
}

func (p *SMTPProvider) Name() string {
	return "smtp"
}

func (p *SMTPProvider) Send(ctx context.Context, msg *Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	start := time.Now()

	// gomail has no context support; run the send in a goroutine so a
	// cancelled context does not leave the caller blocked on the dial.
	done := make(chan error, 1)
	go func() {
		done <- p.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return classifyTransportError(ctx.Err())
	case err := <-done:
		if err != nil {
			log.Error().
				Err(err).
				Dur("elapsed", time.Since(start)).
				Msg("smtp send failed")
			return classifySMTPError(err)
		}
	}

	log.Info().
		Str("to", msg.To).
		Dur("elapsed", time.Since(start)).
		Msg("smtp send completed")
	return nil
}
