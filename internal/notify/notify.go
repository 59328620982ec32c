// Package notify sends operator alert emails. Notification failures are
// logged and swallowed; alerting must never break the pipeline or a webhook.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/risksure/outreach-cli/pkg/resend"
)

const defaultFrom = "RiskSure Alerts <alerts@risksure.ai>"

// Notifier mails the configured operator address. A Notifier with an empty
// recipient is a no-op, so callers never need to branch on configuration.
type Notifier struct {
	client resend.Client
	from   string
	to     string
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithFrom overrides the alert sender identity.
func WithFrom(from string) Option {
	return func(n *Notifier) { n.from = from }
}

func New(client resend.Client, to string, opts ...Option) *Notifier {
	n := &Notifier{client: client, from: defaultFrom, to: to}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send delivers a plain-text alert to the operator.
func (n *Notifier) Send(ctx context.Context, subject, message string) {
	if n.to == "" {
		return
	}
	_, err := n.client.Send(ctx, resend.SendRequest{
		From:    n.from,
		To:      []string{n.to},
		Subject: subject,
		Text:    message,
	})
	if err != nil {
		zap.L().Warn("operator notification failed",
			zap.String("subject", subject), zap.Error(err))
	}
}

// EmailOpened alerts on a lead opening an email.
func (n *Notifier) EmailOpened(ctx context.Context, leadEmail string) {
	n.Send(ctx, "Email Opened", fmt.Sprintf("Lead opened email: %s", leadEmail))
}

// LinkClicked alerts on the highest-intent engagement signal.
func (n *Notifier) LinkClicked(ctx context.Context, leadEmail, link string) {
	n.Send(ctx, "HOT LEAD - Link Clicked!",
		fmt.Sprintf("Lead clicked link: %s\nURL: %s", orUnknown(leadEmail), orUnknown(link)))
}

// DemoScheduled alerts when a lead books a demo.
func (n *Notifier) DemoScheduled(ctx context.Context, leadEmail, company string) {
	n.Send(ctx, "Demo Booked!",
		fmt.Sprintf("Lead booked a demo: %s (%s)", leadEmail, company))
}

// WarmingPaused alerts when deliverability thresholds auto-pause sending.
func (n *Notifier) WarmingPaused(ctx context.Context, reason string) {
	n.Send(ctx, "Sending Auto-Paused", fmt.Sprintf("Warming governor paused sending.\nReason: %s", reason))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
