package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *sdkClient {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(baseURL),
		),
	}
}

func TestCreateMessage(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":   "msg_001",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": `{"opener": "Saw the news about your expansion."}`},
			},
			"model":       "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":                150,
				"output_tokens":               40,
				"cache_creation_input_tokens": 1200,
				"cache_read_input_tokens":     0,
			},
		})
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	resp, err := c.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 256,
		System:    BuildCachedSystemBlocks("You write cold email openers."),
		Messages:  []Message{{Role: "user", Content: "Acme Builders, NSW"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_001", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Contains(t, resp.Content[0].Text, "expansion")
	assert.Equal(t, int64(150), resp.Usage.InputTokens)
	assert.Equal(t, int64(1200), resp.Usage.CacheCreationInputTokens)

	// The wire request carries the cache breakpoint on the system block.
	system, ok := gotBody["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	block := system[0].(map[string]any)
	cc, ok := block["cache_control"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ephemeral", cc["type"])
	assert.Equal(t, "1h", cc["ttl"])
}

func TestCreateMessage_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"type":  "error",
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	_, err := c.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}

func TestToSDKMessages_Roles(t *testing.T) {
	out := toSDKMessages([]Message{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, sdk.MessageParamRoleUser, out[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, out[1].Role)
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("research prompt")
	require.Len(t, blocks, 1)
	assert.Equal(t, "research prompt", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestEstimateCost(t *testing.T) {
	usage := TokenUsage{
		InputTokens:              1_000_000,
		OutputTokens:             100_000,
		CacheCreationInputTokens: 200_000,
		CacheReadInputTokens:     2_000_000,
	}

	// 3.00 input + 1.50 output + 0.75 cache write + 0.60 cache read
	assert.InDelta(t, 5.85, usage.EstimateCost("claude-sonnet-4-5"), 0.001)

	// Dated model ids match on family prefix.
	assert.InDelta(t, 5.85, usage.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)

	assert.Zero(t, usage.EstimateCost("some-unknown-model"))
}
