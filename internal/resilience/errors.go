package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Substrings that identify retry-safe failures in errors wrapped by HTTP
// clients, where the original net error is no longer in the chain.
var transientFragments = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
	"rate limit",
	"overloaded",
}

// IsTransient reports whether an error is safe to retry: network timeouts,
// dropped connections, DNS blips, and provider throttling.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range transientFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
