// Package zerobounce wraps the ZeroBounce email validation API.
package zerobounce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.zerobounce.net/v2"

// Verdict is the collapsed validation outcome.
type Verdict string

const (
	VerdictValid   Verdict = "valid"
	VerdictInvalid Verdict = "invalid"
	VerdictRisky   Verdict = "risky"
	VerdictUnknown Verdict = "unknown"
)

// Result holds a validation verdict plus the raw provider status.
type Result struct {
	Email   string  `json:"email"`
	Verdict Verdict `json:"verdict"`
	Status  string  `json:"status"` // raw provider status
}

// Deliverable reports whether the address is safe enough to mail. Risky
// (catch-all and unknown) addresses are accepted; the warming governor
// absorbs the occasional bounce.
func (r Result) Deliverable() bool {
	return r.Verdict == VerdictValid || r.Verdict == VerdictRisky
}

// Client validates email addresses.
type Client interface {
	Validate(ctx context.Context, email string) (*Result, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a ZeroBounce API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type validateResponse struct {
	Address string `json:"address"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

func (c *httpClient) Validate(ctx context.Context, email string) (*Result, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("email", email)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/validate?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "zerobounce: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "zerobounce: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "zerobounce: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("zerobounce: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result validateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "zerobounce: unmarshal response")
	}
	if result.Error != "" {
		return nil, eris.Errorf("zerobounce: api error: %s", result.Error)
	}

	return &Result{
		Email:   email,
		Verdict: verdictForStatus(result.Status),
		Status:  result.Status,
	}, nil
}

// verdictForStatus collapses the provider's seven statuses to four verdicts.
func verdictForStatus(status string) Verdict {
	switch status {
	case "valid":
		return VerdictValid
	case "invalid", "spamtrap", "abuse", "do_not_mail":
		return VerdictInvalid
	case "catch-all", "unknown":
		return VerdictRisky
	default:
		return VerdictUnknown
	}
}
