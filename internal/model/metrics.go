package model

// Metric enumerates the daily counters. Each maps to a column on the
// daily_metrics row, so increments stay typed end to end.
type Metric string

const (
	MetricLeadsImported    Metric = "leads_imported"
	MetricLeadsValidated   Metric = "leads_validated"
	MetricLeadsInvalid     Metric = "leads_invalid"
	MetricLeadsEnriched    Metric = "leads_enriched"
	MetricEnrichmentErrors Metric = "enrichment_errors"
	MetricEmailsSent       Metric = "emails_sent"
	MetricEmailsDelivered  Metric = "emails_delivered"
	MetricEmailsOpened     Metric = "emails_opened"
	MetricEmailsClicked    Metric = "emails_clicked"
	MetricEmailsBounced    Metric = "emails_bounced"
	MetricReplies          Metric = "replies"
	MetricDemosBooked      Metric = "demos_booked"
	MetricUnsubscribes     Metric = "unsubscribes"
	MetricVariantASent     Metric = "variant_a_sent"
	MetricVariantAOpened   Metric = "variant_a_opened"
	MetricVariantBSent     Metric = "variant_b_sent"
	MetricVariantBOpened   Metric = "variant_b_opened"
	MetricVelocitySent     Metric = "velocity_sent"
	MetricComplianceSent   Metric = "compliance_sent"
	MetricBusinessSent     Metric = "business_sent"
)

// AllMetrics lists every counter, in column order.
var AllMetrics = []Metric{
	MetricLeadsImported, MetricLeadsValidated, MetricLeadsInvalid,
	MetricLeadsEnriched, MetricEnrichmentErrors,
	MetricEmailsSent, MetricEmailsDelivered, MetricEmailsOpened,
	MetricEmailsClicked, MetricEmailsBounced,
	MetricReplies, MetricDemosBooked, MetricUnsubscribes,
	MetricVariantASent, MetricVariantAOpened, MetricVariantBSent, MetricVariantBOpened,
	MetricVelocitySent, MetricComplianceSent, MetricBusinessSent,
}

// Valid reports whether m names a known counter column.
func (m Metric) Valid() bool {
	for _, known := range AllMetrics {
		if m == known {
			return true
		}
	}
	return false
}

// VariantSentMetric returns the per-variant sent counter for v.
func VariantSentMetric(v Variant) Metric {
	if v == VariantB {
		return MetricVariantBSent
	}
	return MetricVariantASent
}

// VariantOpenedMetric returns the per-variant opened counter for v.
func VariantOpenedMetric(v Variant) Metric {
	if v == VariantB {
		return MetricVariantBOpened
	}
	return MetricVariantAOpened
}

// TierSentMetric returns the per-tier sent counter for t.
func TierSentMetric(t Tier) Metric {
	switch t {
	case TierCompliance:
		return MetricComplianceSent
	case TierBusiness:
		return MetricBusinessSent
	default:
		return MetricVelocitySent
	}
}

// DailyMetrics is one day's aggregate counters, keyed by YYYY-MM-DD date.
type DailyMetrics struct {
	Date   string         `json:"date"`
	Counts map[Metric]int `json:"counts"`
}
