package notify

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risksure/outreach-cli/pkg/resend"
)

type fakeMailer struct {
	sent []resend.SendRequest
	err  error
}

func (f *fakeMailer) Send(_ context.Context, req resend.SendRequest) (*resend.SendResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, req)
	return &resend.SendResponse{ID: "msg-1"}, nil
}

func TestSend(t *testing.T) {
	mailer := &fakeMailer{}
	n := New(mailer, "ops@risksure.ai")

	n.Send(context.Background(), "Subject", "Body")

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"ops@risksure.ai"}, mailer.sent[0].To)
	assert.Equal(t, "Subject", mailer.sent[0].Subject)
	assert.Equal(t, "Body", mailer.sent[0].Text)
	assert.Equal(t, defaultFrom, mailer.sent[0].From)
}

func TestSend_EmptyRecipientIsNoop(t *testing.T) {
	mailer := &fakeMailer{}
	n := New(mailer, "")

	n.Send(context.Background(), "Subject", "Body")

	assert.Empty(t, mailer.sent)
}

func TestSend_FailureIsSwallowed(t *testing.T) {
	mailer := &fakeMailer{err: eris.New("rate limited")}
	n := New(mailer, "ops@risksure.ai")

	// Must not panic or surface the error.
	n.Send(context.Background(), "Subject", "Body")
	assert.Empty(t, mailer.sent)
}

func TestWithFrom(t *testing.T) {
	mailer := &fakeMailer{}
	n := New(mailer, "ops@risksure.ai", WithFrom("Custom <custom@risksure.ai>"))

	n.Send(context.Background(), "Subject", "Body")

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Custom <custom@risksure.ai>", mailer.sent[0].From)
}

func TestAlertHelpers(t *testing.T) {
	mailer := &fakeMailer{}
	n := New(mailer, "ops@risksure.ai")
	ctx := context.Background()

	n.EmailOpened(ctx, "dave@acme.com")
	n.LinkClicked(ctx, "dave@acme.com", "https://risksure.ai/demo")
	n.DemoScheduled(ctx, "dave@acme.com", "Acme Builders")
	n.WarmingPaused(ctx, "bounce rate 9.0% exceeds 8%")

	require.Len(t, mailer.sent, 4)
	assert.Equal(t, "Email Opened", mailer.sent[0].Subject)
	assert.Equal(t, "HOT LEAD - Link Clicked!", mailer.sent[1].Subject)
	assert.Contains(t, mailer.sent[1].Text, "https://risksure.ai/demo")
	assert.Equal(t, "Demo Booked!", mailer.sent[2].Subject)
	assert.Contains(t, mailer.sent[2].Text, "Acme Builders")
	assert.Equal(t, "Sending Auto-Paused", mailer.sent[3].Subject)
	assert.Contains(t, mailer.sent[3].Text, "bounce rate")
}

func TestLinkClicked_UnknownFields(t *testing.T) {
	mailer := &fakeMailer{}
	n := New(mailer, "ops@risksure.ai")

	n.LinkClicked(context.Background(), "", "")

	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].Text, "unknown")
}
