package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pedidolabs/pedidobot/internal/bus"
)

const maxWebhookBody = 1 << 20 // Cloud API payloads are small; cap reads

// webhookPayload maps the Cloud API webhook envelope down to the parts the
// bot consumes. Statuses and unknown change fields are ignored.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *webhookMedia `json:"image"`
	Audio    *webhookMedia `json:"audio"`
	Voice    *webhookMedia `json:"voice"`
	Document *webhookMedia `json:"document"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

type webhookMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

// Handler returns the webhook endpoint: GET answers Meta's subscription
// challenge, POST receives message notifications.
func (c *Channel) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			c.handleVerify(w, r)
		case http.MethodPost:
			c.handleNotification(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func (c *Channel) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == c.config.VerifyToken {
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	c.logger.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
	w.WriteHeader(http.StatusForbidden)
}

func (c *Channel) handleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if c.config.AppSecret != "" {
		if !verifySignature(body, r.Header.Get("X-Hub-Signature-256"), c.config.AppSecret) {
			c.logger.Warn("webhook signature mismatch, dropping payload")
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn("webhook payload unparseable", "error", err)
		// Still 200: Meta retries on errors and the payload will not
		// improve on redelivery.
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				c.acceptMessage(msg)
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (c *Channel) acceptMessage(msg webhookMessage) {
	if c.dedupe.Seen(msg.ID) {
		c.logger.Debug("duplicate webhook delivery dropped", "message", msg.ID)
		return
	}
	if !c.limiter.Allow(msg.From) {
		c.logger.Warn("sender over webhook rate limit, dropping", "sender", msg.From)
		return
	}

	inbound := bus.InboundMessage{
		Channel:   c.Name(),
		MessageID: msg.ID,
		Sender:    msg.From,
		ChatID:    msg.From,
	}
	if ts, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
		inbound.Timestamp = ts
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil || strings.TrimSpace(msg.Text.Body) == "" {
			return
		}
		inbound.Kind = bus.KindText
		inbound.Content = msg.Text.Body
	case "image":
		if msg.Image == nil {
			return
		}
		inbound.Kind = bus.KindImage
		inbound.MediaID = msg.Image.ID
		inbound.MimeType = msg.Image.MimeType
		inbound.Content = msg.Image.Caption
	case "audio", "voice":
		media := msg.Audio
		if media == nil {
			media = msg.Voice
		}
		if media == nil {
			return
		}
		inbound.Kind = bus.KindAudio
		inbound.MediaID = media.ID
		inbound.MimeType = media.MimeType
	case "document":
		// Documents are not processed; the agent only learns one arrived.
		if msg.Document == nil {
			return
		}
		name := msg.Document.Filename
		if name == "" {
			name = "archivo adjunto"
		}
		inbound.Kind = bus.KindText
		inbound.Content = fmt.Sprintf("[El cliente envió un documento: %s]", name)
	case "location":
		if msg.Location == nil {
			return
		}
		inbound.Kind = bus.KindLocation
		inbound.Latitude = msg.Location.Latitude
		inbound.Longitude = msg.Location.Longitude
	default:
		c.logger.Debug("unsupported message type ignored", "type", msg.Type, "sender", msg.From)
		return
	}

	c.Bus().PublishInbound(inbound)
}

// verifySignature checks the X-Hub-Signature-256 header against the body
// using the app secret, in constant time.
func verifySignature(body []byte, header, secret string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	want, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
