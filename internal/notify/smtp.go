package notify

import (
	"context"
	"fmt"

	mail "github.com/go-mail/mail"
)

// SMTPSender implementa Sender para email usando SMTP.
type SMTPSender struct {
	Host string
	Port int
	From string
	User string
	Pass string
}

// NewSMTPSender crea un sender SMTP. Retorna la interfaz, no el puntero,
// para que sin host configurado el nil sea un nil de verdad y el
// dispatcher omita el canal.
func NewSMTPSender(host string, port int, from, user, pass string) Sender {
	if host == "" {
		return nil
	}
	if port == 0 {
		port = 587
	}
	return &SMTPSender{Host: host, Port: port, From: from, User: user, Pass: pass}
}

func (s *SMTPSender) Channel() Channel { return ChannelEmail }

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.StartTLSPolicy = mail.OpportunisticStartTLS

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
