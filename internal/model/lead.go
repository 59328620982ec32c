package model

import (
	"strings"
	"time"
)

// LeadStatus represents the lifecycle state of a lead.
type LeadStatus string

const (
	StatusNew           LeadStatus = "new"
	StatusValidating    LeadStatus = "validating"
	StatusEnriching     LeadStatus = "enriching"
	StatusReady         LeadStatus = "ready"
	StatusContacted     LeadStatus = "contacted"
	StatusOpened        LeadStatus = "opened"
	StatusClicked       LeadStatus = "clicked"
	StatusReplied       LeadStatus = "replied"
	StatusDemoScheduled LeadStatus = "demo_scheduled"
	StatusDemoComplete  LeadStatus = "demo_complete"
	StatusTrial         LeadStatus = "trial"
	StatusClosedWon     LeadStatus = "closed_won"
	StatusClosedLost    LeadStatus = "closed_lost"
	StatusNurture       LeadStatus = "nurture"
	StatusUnsubscribed  LeadStatus = "unsubscribed"
	StatusBounced       LeadStatus = "bounced"
	StatusInvalidEmail  LeadStatus = "invalid_email"
)

// terminalStatuses are states from which a lead must never receive another
// automated send.
var terminalStatuses = map[LeadStatus]bool{
	StatusReplied:       true,
	StatusDemoScheduled: true,
	StatusDemoComplete:  true,
	StatusTrial:         true,
	StatusClosedWon:     true,
	StatusClosedLost:    true,
	StatusUnsubscribed:  true,
	StatusBounced:       true,
	StatusInvalidEmail:  true,
}

// IsTerminal reports whether the status excludes the lead from all future
// automated sends.
func (s LeadStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// Tier classifies a prospect by size; it drives message content and
// sequence length.
type Tier string

const (
	TierVelocity   Tier = "velocity"   // <=75 subbies
	TierCompliance Tier = "compliance" // 76-250 subbies
	TierBusiness   Tier = "business"   // >250 subbies
)

// TierForSubbies maps an estimated subcontractor count to a tier.
func TierForSubbies(subbies int) Tier {
	switch {
	case subbies > 250:
		return TierBusiness
	case subbies > 75:
		return TierCompliance
	default:
		return TierVelocity
	}
}

// Variant identifies one of the two A/B message versions. Assigned once per
// lead and held constant across its sequence.
type Variant string

const (
	VariantA Variant = "A"
	VariantB Variant = "B"
)

// ValidationResult is the 4-way classification of an email address.
type ValidationResult string

const (
	ValidationValid   ValidationResult = "valid"
	ValidationInvalid ValidationResult = "invalid"
	ValidationRisky   ValidationResult = "risky"
	ValidationUnknown ValidationResult = "unknown"
)

// LeadSource records where a lead came from.
type LeadSource string

const (
	SourceApollo    LeadSource = "apollo"
	SourceCSVImport LeadSource = "csv_import"
	SourceWebScrape LeadSource = "web_scrape"
	SourceManual    LeadSource = "manual"
	SourceReferral  LeadSource = "referral"
	SourceInbound   LeadSource = "inbound"
)

// Lead is a prospect under outreach.
type Lead struct {
	ID string `json:"id"`

	// Company
	CompanyName string `json:"company_name"`
	Website     string `json:"website,omitempty"`
	State       string `json:"state,omitempty"`

	// Contact
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactTitle string `json:"contact_title,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`

	// Qualification
	Source           LeadSource `json:"source"`
	Tier             Tier       `json:"tier"`
	EstimatedSubbies int        `json:"estimated_subbies,omitempty"`
	EstimatedRevenue string     `json:"estimated_revenue,omitempty"`

	// Validation
	EmailValidated        bool             `json:"email_validated"`
	EmailValidationResult ValidationResult `json:"email_validation_result,omitempty"`

	// Enrichment
	Enrichment         *EnrichmentData `json:"enrichment,omitempty"`
	EnrichmentScore    int             `json:"enrichment_score,omitempty"`
	PersonalizedOpener string          `json:"personalized_opener,omitempty"`
	PainPoints         []string        `json:"pain_points,omitempty"`
	EnrichmentError    string          `json:"enrichment_error,omitempty"`

	// Sequence
	Status              LeadStatus `json:"status"`
	CurrentSequenceStep int        `json:"current_sequence_step"`
	SequenceVariant     Variant    `json:"sequence_variant,omitempty"`
	LastEmailSentAt     *time.Time `json:"last_email_sent_at,omitempty"`
	NextEmailAt         *time.Time `json:"next_email_at,omitempty"`

	// Engagement
	LastOpenedAt      *time.Time `json:"last_opened_at,omitempty"`
	LastClickedAt     *time.Time `json:"last_clicked_at,omitempty"`
	DemoScheduledAt   *time.Time `json:"demo_scheduled_at,omitempty"`
	DemoBookingURL    string     `json:"demo_booking_url,omitempty"`
	UnsubscribedAt    *time.Time `json:"unsubscribed_at,omitempty"`
	UnsubscribeReason string     `json:"unsubscribe_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an address for use as a dedup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasContactName reports whether the lead carries enough contact data to
// personalize an email.
func (l *Lead) HasContactName() bool {
	return strings.TrimSpace(l.ContactName) != ""
}
