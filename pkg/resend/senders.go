package resend

import (
	"fmt"
	"sync"
)

// Sender is one configured sending identity.
type Sender struct {
	Name  string
	Email string
}

// From formats the sender for the From header.
func (s Sender) From() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// SenderPool rotates outgoing mail across multiple warmed inboxes, always
// picking the identity with the fewest recorded sends.
type SenderPool struct {
	mu      sync.Mutex
	senders []Sender
	counts  map[string]int
}

// NewSenderPool creates a pool. At least one sender is required.
func NewSenderPool(senders []Sender) (*SenderPool, error) {
	if len(senders) == 0 {
		return nil, fmt.Errorf("resend: sender pool needs at least one sender")
	}
	return &SenderPool{
		senders: senders,
		counts:  make(map[string]int, len(senders)),
	}, nil
}

// Next returns the least-used sender without consuming a slot.
func (p *SenderPool) Next() Sender {
	p.mu.Lock()
	defer p.mu.Unlock()

	best := p.senders[0]
	for _, s := range p.senders[1:] {
		if p.counts[s.Email] < p.counts[best.Email] {
			best = s
		}
	}
	return best
}

// RecordSend counts a confirmed send against a sender, moving it to the back
// of the rotation.
func (p *SenderPool) RecordSend(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[email]++
}
