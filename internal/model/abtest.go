package model

import "fmt"

// ABEventType enumerates the events counted per A/B variant.
type ABEventType string

const (
	ABEventSent    ABEventType = "sent"
	ABEventOpened  ABEventType = "opened"
	ABEventClicked ABEventType = "clicked"
	ABEventReplied ABEventType = "replied"
)

// VariantStats holds the counters for one side of a test.
type VariantStats struct {
	Subject string `json:"subject"`
	Sent    int    `json:"sent"`
	Opened  int    `json:"opened"`
	Clicked int    `json:"clicked"`
	Replied int    `json:"replied"`
}

// OpenRate returns opened/sent in percent, 0 when nothing was sent.
func (v VariantStats) OpenRate() float64 {
	if v.Sent == 0 {
		return 0
	}
	return float64(v.Opened) / float64(v.Sent) * 100
}

// ABTestResult aggregates per (tier, step) experiment performance, keyed by
// a composite test name like "velocity_step0".
type ABTestResult struct {
	ID           string       `json:"id"`
	TestName     string       `json:"test_name"`
	Tier         Tier         `json:"tier"`
	SequenceStep int          `json:"sequence_step"`
	VariantA     VariantStats `json:"variant_a"`
	VariantB     VariantStats `json:"variant_b"`
	StartDate    string       `json:"start_date"` // YYYY-MM-DD
}

// ABTestName builds the composite key for a (tier, step) experiment.
func ABTestName(tier Tier, step int) string {
	return fmt.Sprintf("%s_step%d", tier, step)
}
