package model

// ComplianceMaturity describes how developed a company's subcontractor
// compliance process appears to be. Lower maturity means a better prospect.
type ComplianceMaturity string

const (
	MaturityNone     ComplianceMaturity = "none"
	MaturityBasic    ComplianceMaturity = "basic"
	MaturityAdvanced ComplianceMaturity = "advanced"
)

// ResearchConfidence grades how much source material backed the research.
type ResearchConfidence string

const (
	ConfidenceLow    ResearchConfidence = "low"
	ConfidenceMedium ResearchConfidence = "medium"
	ConfidenceHigh   ResearchConfidence = "high"
)

// EnrichmentData is the structured research result for a company. The
// version field allows the shape to evolve without breaking stored rows.
type EnrichmentData struct {
	Version                 int                `json:"version"`
	CompanySummary          string             `json:"company_summary"`
	EstimatedProjects       int                `json:"estimated_projects"`
	EstimatedSubcontractors int                `json:"estimated_subcontractors"`
	EstimatedRevenue        string             `json:"estimated_revenue"` // "$5M-$20M", "$20M-$100M", "$100M+"
	ComplianceMaturity      ComplianceMaturity `json:"compliance_maturity"`
	PainPointSignals        []string           `json:"pain_point_signals,omitempty"`
	DecisionMakers          []string           `json:"decision_makers,omitempty"`
	RecentNews              []string           `json:"recent_news,omitempty"`
	Confidence              ResearchConfidence `json:"confidence"`
}

// EnrichmentDataVersion is the current schema version written by the enricher.
const EnrichmentDataVersion = 1
