package resend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Jason <jason@risksure.ai>", req.From)
		assert.Equal(t, []string{"pat@acmebuilders.com"}, req.To)
		assert.Len(t, req.Tags, 4)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SendResponse{ID: "msg-abc"})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.Send(context.Background(), SendRequest{
		From:    "Jason <jason@risksure.ai>",
		To:      []string{"pat@acmebuilders.com"},
		Subject: "Quick question",
		Text:    "hello",
		Tags: []Tag{
			{Name: "lead_id", Value: "lead-1"},
			{Name: "sequence_step", Value: "0"},
			{Name: "variant", Value: "A"},
			{Name: "tier", Value: "velocity"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-abc", resp.ID)
}

func TestSend_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"name":"validation_error","message":"Invalid to address"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Send(context.Background(), SendRequest{To: []string{"bad"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid to address")
}

func TestSenderPool_RoundRobin(t *testing.T) {
	t.Parallel()

	pool, err := NewSenderPool([]Sender{
		{Name: "Jason", Email: "jason@risksure.ai"},
		{Name: "Alex", Email: "alex@risksure.ai"},
	})
	require.NoError(t, err)

	first := pool.Next()
	pool.RecordSend(first.Email)
	second := pool.Next()
	assert.NotEqual(t, first.Email, second.Email)

	pool.RecordSend(second.Email)
	assert.Equal(t, first.Email, pool.Next().Email)
}

func TestSenderPool_SingleSender(t *testing.T) {
	t.Parallel()

	pool, err := NewSenderPool([]Sender{{Name: "Jason", Email: "jason@risksure.ai"}})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, "jason@risksure.ai", pool.Next().Email)
		pool.RecordSend("jason@risksure.ai")
	}
}

func TestSenderPool_Empty(t *testing.T) {
	t.Parallel()

	_, err := NewSenderPool(nil)
	require.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"type":"email.opened","data":{"email_id":"msg-1"}}`)
	sig := SignPayload("shh", payload)

	assert.True(t, VerifySignature("shh", payload, sig))
	assert.False(t, VerifySignature("shh", payload, sig+"00"))
	assert.False(t, VerifySignature("wrong", payload, sig))
	assert.False(t, VerifySignature("shh", []byte("tampered"), sig))
}

func TestWebhookData_TagValue(t *testing.T) {
	t.Parallel()

	d := WebhookData{Tags: []Tag{{Name: "lead_id", Value: "lead-9"}, {Name: "variant", Value: "B"}}}
	assert.Equal(t, "lead-9", d.TagValue("lead_id"))
	assert.Equal(t, "B", d.TagValue("variant"))
	assert.Empty(t, d.TagValue("tier"))
}
