// Package sequence holds the per-lead outreach cadence rules: step delay
// tables, sequence lengths, and send-eligibility checks.
package sequence

import (
	"time"

	"github.com/risksure/outreach-cli/internal/model"
)

// stepDelays maps a step number to its cumulative delay in days from step 0.
// Steps 0-4 are the initial sequence; 5-7 are the long-interval nurture steps.
var stepDelays = map[int]int{
	0: 0,
	1: 4,
	2: 9,
	3: 15,
	4: 22,
	5: 45,
	6: 60,
	7: 90,
}

// fallbackDelayDays applies when a step past the table is requested.
const fallbackDelayDays = 21

// initialSteps is the length of the initial sequence for every tier.
const initialSteps = 5

// nurtureSteps is the total step count including the nurture tail.
const nurtureSteps = 8

// MaxSteps returns the number of initial-sequence steps for a tier. All
// tiers currently run the same five-step cadence; the tier parameter keeps
// the call sites honest if that ever diverges.
func MaxSteps(tier model.Tier) int {
	return initialSteps
}

// NurtureMaxSteps returns the step count after which a nurture lead is done.
func NurtureMaxSteps() int {
	return nurtureSteps
}

// DelayDays returns the cumulative delay for a step, in days from step 0.
func DelayDays(step int) (int, bool) {
	d, ok := stepDelays[step]
	return d, ok
}

// NextSendDelay computes how long after sending sentStep the following email
// becomes due: the gap between the cumulative delays of the two steps.
func NextSendDelay(sentStep int) time.Duration {
	next, ok := stepDelays[sentStep+1]
	if !ok {
		return time.Duration(fallbackDelayDays) * 24 * time.Hour
	}
	cur := stepDelays[sentStep]
	return time.Duration(next-cur) * 24 * time.Hour
}

// sendableStatuses are the states eligible for the initial send loop.
var sendableStatuses = map[model.LeadStatus]bool{
	model.StatusReady:     true,
	model.StatusContacted: true,
	model.StatusOpened:    true,
	model.StatusClicked:   true,
}

// SkipReason explains why an otherwise-selected lead gets no email this run.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipTerminalStatus   SkipReason = "terminal status"
	SkipNotDue           SkipReason = "next email not due"
	SkipNoContactName    SkipReason = "no contact name"
	SkipInitialExhausted SkipReason = "initial sequence complete"
	SkipNurtureExhausted SkipReason = "nurture sequence complete"
)

// EligibleForSend evaluates the full send-eligibility predicate for the
// initial loop. It returns SkipNone when the lead should receive the email
// at its current step; SkipInitialExhausted signals a transition to nurture
// instead of a send.
func EligibleForSend(lead *model.Lead, now time.Time) SkipReason {
	if lead.Status.IsTerminal() || lead.Status == model.StatusNurture {
		return SkipTerminalStatus
	}
	if !sendableStatuses[lead.Status] {
		return SkipTerminalStatus
	}
	if lead.NextEmailAt != nil && lead.NextEmailAt.After(now) {
		return SkipNotDue
	}
	if !lead.HasContactName() {
		return SkipNoContactName
	}
	if lead.CurrentSequenceStep >= MaxSteps(lead.Tier) {
		return SkipInitialExhausted
	}
	return SkipNone
}

// EligibleForNurture evaluates eligibility for the nurture loop.
// SkipNurtureExhausted signals a transition to closed_lost.
func EligibleForNurture(lead *model.Lead, now time.Time) SkipReason {
	if lead.Status != model.StatusNurture {
		return SkipTerminalStatus
	}
	if lead.NextEmailAt != nil && lead.NextEmailAt.After(now) {
		return SkipNotDue
	}
	if !lead.HasContactName() {
		return SkipNoContactName
	}
	if lead.CurrentSequenceStep >= NurtureMaxSteps() {
		return SkipNurtureExhausted
	}
	return SkipNone
}

// CanMarkOpened reports whether an open event may upgrade the lead's status.
// Upgrades are monotonic: a stale webhook must not regress a lead that has
// since replied or booked.
func CanMarkOpened(status model.LeadStatus) bool {
	return status == model.StatusContacted || status == model.StatusReady
}

// CanMarkClicked reports whether a click event may upgrade the lead's status.
func CanMarkClicked(status model.LeadStatus) bool {
	return status == model.StatusContacted || status == model.StatusReady || status == model.StatusOpened
}
