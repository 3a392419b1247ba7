// Package notify implementa el despacho multi-canal de notificaciones:
// email (SMTP), SMS y WhatsApp vía gateways HTTP.
//
// El despacho es fire-and-forget con reintentos acotados; la persistencia
// de alertas nunca depende de que un canal haya entregado.
package notify

import (
	"context"
	"time"

	"github.com/warshatech/trustgate/internal/observability/logger"
)

// Channel identifica un canal de notificación.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Message es el contenido a despachar.
type Message struct {
	To      string // email o teléfono según canal
	Subject string // solo email
	Body    string
}

// Sender entrega un mensaje por un canal concreto.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, msg Message) error
}

// Dispatcher enruta mensajes a los senders registrados, en background,
// con reintentos.
type Dispatcher struct {
	senders map[Channel]Sender
	retries int
	backoff time.Duration
}

// NewDispatcher registra los senders dados. Senders nil se ignoran.
func NewDispatcher(senders ...Sender) *Dispatcher {
	d := &Dispatcher{
		senders: make(map[Channel]Sender),
		retries: 2,
		backoff: 5 * time.Second,
	}
	for _, s := range senders {
		if s != nil {
			d.senders[s.Channel()] = s
		}
	}
	return d
}

// Channels retorna los canales con sender configurado.
func (d *Dispatcher) Channels() []Channel {
	out := make([]Channel, 0, len(d.senders))
	for ch := range d.senders {
		out = append(out, ch)
	}
	return out
}

// Dispatch envía el mensaje por cada canal pedido en una goroutine.
// Retorna inmediatamente los canales que efectivamente se intentarán
// (los que tienen sender configurado).
func (d *Dispatcher) Dispatch(ctx context.Context, channels []Channel, msg Message) []Channel {
	log := logger.From(ctx).Named("notify")

	var attempted []Channel
	for _, ch := range channels {
		s, ok := d.senders[ch]
		if !ok {
			continue
		}
		attempted = append(attempted, ch)

		// contexto propio: el request que originó la alerta no espera
		go func(s Sender) {
			sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var err error
			for attempt := 0; attempt <= d.retries; attempt++ {
				if attempt > 0 {
					time.Sleep(d.backoff)
				}
				if err = s.Send(sendCtx, msg); err == nil {
					return
				}
			}
			log.Warn("notification dispatch failed",
				logger.String("channel", string(s.Channel())),
				logger.String("to", msg.To),
				logger.Err(err),
			)
		}(s)
	}
	return attempted
}
