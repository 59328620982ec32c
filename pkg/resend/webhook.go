package resend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SignatureHeader carries the webhook payload signature.
const SignatureHeader = "resend-signature"

// Webhook event types.
const (
	EventDelivered       = "email.delivered"
	EventOpened          = "email.opened"
	EventClicked         = "email.clicked"
	EventBounced         = "email.bounced"
	EventComplained      = "email.complained"
	EventDeliveryDelayed = "email.delivery_delayed"
)

// WebhookEvent is the envelope posted to the delivery webhook.
type WebhookEvent struct {
	Type      string      `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
	Data      WebhookData `json:"data"`
}

// WebhookData is the event payload. Tags echo back what the send attached.
type WebhookData struct {
	EmailID string   `json:"email_id"`
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Tags    []Tag    `json:"tags"`
	Click   struct {
		Link string `json:"link"`
	} `json:"click"`
	Bounce struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"bounce"`
}

// TagValue returns the value of a named tag, or "" when absent.
func (d WebhookData) TagValue(name string) string {
	for _, t := range d.Tags {
		if t.Name == name {
			return t.Value
		}
	}
	return ""
}

// SignPayload computes the hex HMAC-SHA256 signature for a webhook payload.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook payload signature in constant time.
func VerifySignature(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(SignPayload(secret, payload)), []byte(signature))
}
