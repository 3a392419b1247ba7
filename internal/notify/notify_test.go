package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherSkipsUnconfiguredSenders(t *testing.T) {
	// constructores sin config retornan interfaz nil, no puntero tipado:
	// el dispatcher tiene que descartarlos sin registrar el canal
	d := NewDispatcher(
		NewSMTPSender("", 0, "", "", ""),
		NewSMSSender("", ""),
		NewWhatsAppSender("", ""),
	)

	assert.Empty(t, d.Channels())

	attempted := d.Dispatch(context.Background(), []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp}, Message{
		To:   "someone",
		Body: "hello",
	})
	assert.Empty(t, attempted)
}

func TestDispatcherRegistersConfiguredSenders(t *testing.T) {
	d := NewDispatcher(
		NewSMTPSender("smtp.taller.om", 587, "alerts@taller.om", "u", "p"),
		NewSMSSender("", ""),
	)

	assert.ElementsMatch(t, []Channel{ChannelEmail}, d.Channels())
}
