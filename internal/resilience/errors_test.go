package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network timeout", timeoutErr{}, true},
		{"connection reset errno", syscall.ECONNRESET, true},
		{"connection refused errno", syscall.ECONNREFUSED, true},
		{"wrapped errno", fmt.Errorf("dial: %w", syscall.ECONNABORTED), true},
		{"reset by peer text", errors.New("read tcp 1.2.3.4: connection reset by peer"), true},
		{"dns failure text", errors.New("lookup api.example.com: no such host"), true},
		{"tls timeout text", errors.New("net/http: TLS handshake timeout"), true},
		{"provider throttling", errors.New("429: rate limit exceeded"), true},
		{"provider overloaded", errors.New("api error: Overloaded"), true},
		{"bad api key", errors.New("401: invalid api key"), false},
		{"validation error", errors.New("missing required field"), false},
		{"context canceled", context.Canceled, false},
		{"open breaker", ErrCircuitOpen, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
