package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// GatewaySender implementa Sender contra un gateway HTTP genérico de
// mensajería (SMS o WhatsApp). El payload es el que esperan los gateways
// locales de Omán que usa el ERP: {"to": ..., "message": ...}.
type GatewaySender struct {
	channel Channel
	url     string
	apiKey  string
	http    *http.Client
}

// NewSMSSender crea el sender de SMS. Sin URL configurada retorna una
// interfaz nil, no un puntero tipado, para que el dispatcher lo descarte.
func NewSMSSender(gatewayURL, apiKey string) Sender {
	if gatewayURL == "" {
		return nil
	}
	return newGatewaySender(ChannelSMS, gatewayURL, apiKey)
}

// NewWhatsAppSender crea el sender de WhatsApp. Misma convención de nil
// que NewSMSSender.
func NewWhatsAppSender(gatewayURL, apiKey string) Sender {
	if gatewayURL == "" {
		return nil
	}
	return newGatewaySender(ChannelWhatsApp, gatewayURL, apiKey)
}

func newGatewaySender(ch Channel, url, apiKey string) *GatewaySender {
	return &GatewaySender{
		channel: ch,
		url:     url,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *GatewaySender) Channel() Channel { return g.channel }

func (g *GatewaySender) Send(ctx context.Context, msg Message) error {
	body, _ := json.Marshal(map[string]string{
		"to":      msg.To,
		"message": msg.Body,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s gateway: %w", g.channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s gateway: status %d", g.channel, resp.StatusCode)
	}
	return nil
}
