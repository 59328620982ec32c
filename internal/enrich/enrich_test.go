package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risksure/outreach-cli/internal/model"
	"github.com/risksure/outreach-cli/pkg/anthropic"
	"github.com/risksure/outreach-cli/pkg/jina"
)

func TestQualifyTier(t *testing.T) {
	tests := []struct {
		name    string
		subbies int
		revenue string
		want    model.Tier
	}{
		{"small", 40, "$5M-$20M", model.TierVelocity},
		{"boundary 75 stays velocity", 75, "", model.TierVelocity},
		{"boundary 76 compliance", 76, "", model.TierCompliance},
		{"boundary 250 stays compliance", 250, "", model.TierCompliance},
		{"boundary 251 business", 251, "", model.TierBusiness},
		{"revenue bumps to compliance", 40, "$20M-$100M", model.TierCompliance},
		{"revenue bumps to business", 40, "$100M+", model.TierBusiness},
		{"subbie count beats lower revenue", 300, "$5M-$20M", model.TierBusiness},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QualifyTier(tt.subbies, tt.revenue))
		})
	}
}

func TestScoreResearch(t *testing.T) {
	tests := []struct {
		name string
		data model.EnrichmentData
		want int
	}{
		{
			name: "ideal prospect maxes at 100",
			data: model.EnrichmentData{
				EstimatedSubcontractors: 120,
				PainPointSignals:        []string{"a", "b", "c", "d"},
				ComplianceMaturity:      model.MaturityNone,
				DecisionMakers:          []string{"Pat Doyle"},
			},
			want: 100,
		},
		{
			name: "tiny company partial subbie score",
			data: model.EnrichmentData{EstimatedSubcontractors: 5},
			want: 15,
		},
		{
			name: "oversized company partial subbie score",
			data: model.EnrichmentData{EstimatedSubcontractors: 800},
			want: 15,
		},
		{
			name: "basic maturity scores less than none",
			data: model.EnrichmentData{
				EstimatedSubcontractors: 100,
				ComplianceMaturity:      model.MaturityBasic,
			},
			want: 40,
		},
		{
			name: "advanced maturity scores nothing",
			data: model.EnrichmentData{
				EstimatedSubcontractors: 100,
				ComplianceMaturity:      model.MaturityAdvanced,
			},
			want: 30,
		},
		{
			name: "pain points capped at three",
			data: model.EnrichmentData{
				PainPointSignals: []string{"a", "b", "c", "d", "e", "f"},
			},
			want: 30,
		},
		{
			name: "nothing known",
			data: model.EnrichmentData{},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreResearch(&tt.data))
		})
	}
}

// fakeAI returns scripted responses in order and records each request.
type fakeAI struct {
	anthropic.Client
	responses []string
	requests  []anthropic.MessageRequest
	calls     int
}

func (f *fakeAI) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.requests = append(f.requests, req)
	text := f.responses[f.calls%len(f.responses)]
	f.calls++
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}, nil
}

// fakeScraper serves canned content.
type fakeScraper struct {
	jina.Client
}

func (f *fakeScraper) Read(_ context.Context, targetURL string) (*jina.ReadResponse, error) {
	return &jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{URL: targetURL, Content: "Acme Builders delivers commercial projects across NSW."},
	}, nil
}

func (f *fakeScraper) Search(_ context.Context, _ string) (*jina.SearchResponse, error) {
	return &jina.SearchResponse{
		Code: 200,
		Data: []jina.SearchResult{{Title: "Acme wins hospital contract", Content: "Major project announced."}},
	}, nil
}

func TestEnrich_HappyPath(t *testing.T) {
	ai := &fakeAI{responses: []string{
		`{"company_summary": "Mid-size commercial builder in NSW.", "estimated_projects": 12,
		  "estimated_subcontractors": 120, "estimated_revenue": "$20M-$100M",
		  "compliance_maturity": "basic", "pain_point_signals": ["manual COC checks", "growing subbie base"],
		  "decision_makers": ["Pat Doyle"], "recent_news": ["hospital contract"], "confidence": "medium"}`,
		`{"opener": "Congrats on the Western Sydney hospital win - onboarding that many new subbies must be keeping your team busy."}`,
	}}

	r := NewResearcher(ai, &fakeScraper{})
	result, err := r.Enrich(context.Background(), model.Lead{
		ID:          "lead-1",
		CompanyName: "Acme Builders",
		Website:     "https://acmebuilders.com",
		ContactName: "Pat Doyle",
		State:       "NSW",
	})
	require.NoError(t, err)

	assert.Equal(t, model.TierCompliance, result.Tier)
	assert.Equal(t, 120, result.EstimatedSubbies)
	assert.Equal(t, "$20M-$100M", result.EstimatedRevenue)
	assert.Equal(t, 80, result.Score) // 30 subbies + 20 pain + 10 basic + 20 decision makers
	assert.Contains(t, result.PersonalizedOpener, "hospital win")
	assert.Equal(t, model.EnrichmentDataVersion, result.Data.Version)
	assert.Equal(t, []string{"manual COC checks", "growing subbie base"}, result.PainPoints)
	assert.Equal(t, 2, ai.calls)

	// Research gets the larger token budget, opener generation the smaller.
	require.Len(t, ai.requests, 2)
	assert.Equal(t, int64(1024), ai.requests[0].MaxTokens)
	assert.Equal(t, int64(256), ai.requests[1].MaxTokens)
}

func TestEnrich_DefaultsSubbiesWhenResearchOmits(t *testing.T) {
	ai := &fakeAI{responses: []string{
		`{"company_summary": "Unknown builder.", "estimated_subcontractors": 0,
		  "estimated_revenue": "", "compliance_maturity": "none", "confidence": "low"}`,
		`{"opener": "Noticed you operate across regional builds."}`,
	}}

	r := NewResearcher(ai, &fakeScraper{})
	result, err := r.Enrich(context.Background(), model.Lead{ID: "lead-2", CompanyName: "Ghost Constructions", ContactName: "Sam"})
	require.NoError(t, err)

	assert.Equal(t, 50, result.EstimatedSubbies)
	assert.Equal(t, model.TierVelocity, result.Tier)
}

func TestEnrich_SurroundingProseAroundJSON(t *testing.T) {
	ai := &fakeAI{responses: []string{
		`Here is the analysis you asked for: {"company_summary": "s", "estimated_subcontractors": 30,
		  "estimated_revenue": "$5M-$20M", "compliance_maturity": "basic", "confidence": "low"} hope it helps`,
		`{"opener": "Saw your team doubled this year."}`,
	}}

	r := NewResearcher(ai, &fakeScraper{})
	result, err := r.Enrich(context.Background(), model.Lead{ID: "lead-3", CompanyName: "Brick Co", ContactName: "Lee"})
	require.NoError(t, err)
	assert.Equal(t, 30, result.EstimatedSubbies)
}
