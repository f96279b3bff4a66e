package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pedidolabs/pedidobot/internal/bus"
)

// maxMessageChars is WhatsApp's text body limit; longer replies are split
// on the last newline before the cut.
const maxMessageChars = 4096

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Send delivers an outbound text message through the Graph API.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	for _, part := range splitMessage(msg.Content, maxMessageChars) {
		if err := c.sendLimiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.sendText(ctx, msg.ChatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) sendText(ctx context.Context, to, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": text},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.config.GraphAPIBase, c.config.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp send: graph api %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// splitMessage cuts text into chunks of at most limit runes, preferring to
// break on a newline near the limit.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
