// Package enrich researches a lead's company with web scraping plus Claude
// and produces the tier, score, and personalized opener the send loop needs.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/risksure/outreach-cli/internal/model"
	"github.com/risksure/outreach-cli/internal/resilience"
	"github.com/risksure/outreach-cli/pkg/anthropic"
	"github.com/risksure/outreach-cli/pkg/jina"
)

const (
	// Content truncation limits before prompting.
	maxWebsiteChars = 15000
	maxSearchChars  = 10000

	defaultModel = "claude-sonnet-4-5"
)

// Result is everything a successful enrichment writes back to the lead.
type Result struct {
	Data               *model.EnrichmentData
	Score              int
	Tier               model.Tier
	EstimatedSubbies   int
	EstimatedRevenue   string
	PersonalizedOpener string
	PainPoints         []string
}

// Researcher runs the scrape -> research -> qualify -> opener pipeline for
// one lead at a time.
type Researcher struct {
	ai      anthropic.Client
	scraper jina.Client
	model   string
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// ResearcherOption configures a Researcher.
type ResearcherOption func(*Researcher)

// WithModel overrides the Claude model.
func WithModel(model string) ResearcherOption {
	return func(r *Researcher) { r.model = model }
}

// WithRetryConfig overrides the retry policy for Claude calls.
func WithRetryConfig(cfg resilience.RetryConfig) ResearcherOption {
	return func(r *Researcher) { r.retry = cfg }
}

// WithBreaker overrides the circuit breaker guarding Claude calls.
func WithBreaker(cb *resilience.CircuitBreaker) ResearcherOption {
	return func(r *Researcher) { r.breaker = cb }
}

func NewResearcher(ai anthropic.Client, scraper jina.Client, opts ...ResearcherOption) *Researcher {
	r := &Researcher{
		ai:      ai,
		scraper: scraper,
		model:   defaultModel,
		retry:   resilience.DefaultRetryConfig(),
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.retry.OnRetry == nil {
		r.retry.OnRetry = resilience.RetryLogger("anthropic", "create message")
	}
	return r
}

const researchPrompt = `You are researching an Australian construction company for sales outreach.

Analyze the provided information and estimate:
1. Company summary (1-2 sentences)
2. Number of active projects
3. Number of subcontractors they likely work with
4. Estimated annual revenue bracket
5. Their compliance maturity level (none/basic/advanced)
6. Pain points related to subcontractor management and insurance compliance
7. Key decision makers
8. Recent news or notable projects

Revenue brackets: "$5M-$20M", "$20M-$100M", "$100M+"
Subcontractor estimates: use company size, project count, and industry norms.

If information is limited, make reasonable estimates based on company type and mark confidence as "low".

Respond with ONLY valid JSON, no other text:
{"company_summary": "string", "estimated_projects": 0, "estimated_subcontractors": 0, "estimated_revenue": "string", "compliance_maturity": "none|basic|advanced", "pain_point_signals": ["string"], "decision_makers": ["string"], "recent_news": ["string"], "confidence": "low|medium|high"}`

const openerPrompt = `You write personalized openers for cold outreach emails.

Product context: RiskSure.AI automates Certificate of Currency verification for Australian construction companies. AI verifies insurance certificates in 30 seconds, it is free for subcontractors, and it produces an audit-ready compliance trail.

Write ONLY a 1-2 sentence opener that:
1. References something specific about their company (project, growth, location)
2. Connects to a compliance or subcontractor management pain point
3. Feels personal and relevant, like you actually researched them

Do NOT mention RiskSure or the product yet. Just the hook.
Keep it under 50 words. No greeting, no sign-off.

Respond with ONLY valid JSON, no other text:
{"opener": "string"}`

var tierValueProps = map[model.Tier]string{
	model.TierVelocity:   "save hours every week on manual certificate checking",
	model.TierCompliance: "scale your compliance process without adding headcount",
	model.TierBusiness:   "get portfolio-wide visibility and executive compliance reporting",
}

// Enrich researches one lead. Scrape and search failures degrade gracefully;
// a Claude failure (after retries) fails the enrichment.
func (r *Researcher) Enrich(ctx context.Context, lead model.Lead) (*Result, error) {
	log := zap.L().With(zap.String("lead_id", lead.ID), zap.String("company", lead.CompanyName))

	websiteContent := ""
	if lead.Website != "" {
		if resp, err := r.scraper.Read(ctx, lead.Website); err != nil {
			log.Debug("website scrape failed", zap.Error(err))
		} else {
			websiteContent = resp.Data.Content
		}
	}

	searchContent := ""
	state := lead.State
	if state == "" {
		state = "Australia"
	}
	query := fmt.Sprintf("%s construction %s projects subcontractors", lead.CompanyName, state)
	if resp, err := r.scraper.Search(ctx, query); err != nil {
		log.Debug("company search failed", zap.Error(err))
	} else {
		var parts []string
		for _, res := range resp.Data {
			parts = append(parts, res.Title+"\n"+res.Description+"\n"+res.Content)
		}
		searchContent = strings.Join(parts, "\n---\n")
	}

	research, err := r.research(ctx, lead, truncate(websiteContent, maxWebsiteChars), truncate(searchContent, maxSearchChars))
	if err != nil {
		return nil, err
	}

	subbies := research.EstimatedSubcontractors
	if subbies <= 0 {
		subbies = 50
	}
	tier := QualifyTier(subbies, research.EstimatedRevenue)

	opener, err := r.opener(ctx, lead, research, tier)
	if err != nil {
		return nil, err
	}

	return &Result{
		Data:               research,
		Score:              ScoreResearch(research),
		Tier:               tier,
		EstimatedSubbies:   subbies,
		EstimatedRevenue:   research.EstimatedRevenue,
		PersonalizedOpener: opener,
		PainPoints:         research.PainPointSignals,
	}, nil
}

func (r *Researcher) research(ctx context.Context, lead model.Lead, websiteContent, searchContent string) (*model.EnrichmentData, error) {
	userMsg := fmt.Sprintf(
		"Company: %s\nWebsite: %s\nState: %s\n\nWebsite Content:\n%s\n\nSearch Results:\n%s",
		lead.CompanyName, orUnknown(lead.Website), orUnknown(lead.State),
		orUnknown(websiteContent), orUnknown(searchContent),
	)

	var data model.EnrichmentData
	if err := r.structured(ctx, "research", researchPrompt, userMsg, 1024, &data); err != nil {
		return nil, eris.Wrap(err, "enrich: company research")
	}
	data.Version = model.EnrichmentDataVersion
	return &data, nil
}

func (r *Researcher) opener(ctx context.Context, lead model.Lead, research *model.EnrichmentData, tier model.Tier) (string, error) {
	findings, err := json.MarshalIndent(research, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "enrich: marshal findings")
	}

	contact := lead.ContactName
	if lead.ContactTitle != "" {
		contact += ", " + lead.ContactTitle
	}
	userMsg := fmt.Sprintf(
		"Contact: %s\nCompany: %s\n\nResearch findings:\n%s\n\nValue prop for this prospect: %s",
		contact, lead.CompanyName, findings, tierValueProps[tier],
	)

	var out struct {
		Opener string `json:"opener"`
	}
	if err := r.structured(ctx, "opener", openerPrompt, userMsg, 256, &out); err != nil {
		return "", eris.Wrap(err, "enrich: opener generation")
	}
	if out.Opener == "" {
		return "", eris.New("enrich: empty opener")
	}
	return out.Opener, nil
}

// structured sends one prompt through the circuit breaker with retries and
// parses the JSON object out of the reply. System prompts are identical
// across a batch of leads, so they carry a cache breakpoint.
func (r *Researcher) structured(ctx context.Context, phase, systemPrompt, userMsg string, maxTokens int, out any) error {
	resp, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return r.ai.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     r.model,
				MaxTokens: int64(maxTokens),
				System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
				Messages:  []anthropic.Message{{Role: "user", Content: userMsg}},
			})
		})
	})
	if err != nil {
		return err
	}
	resp.Usage.LogCost(r.model, phase)

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return eris.New("empty model response")
	}

	jsonStart := strings.Index(text, "{")
	jsonEnd := strings.LastIndex(text, "}")
	if jsonStart < 0 || jsonEnd <= jsonStart {
		return eris.Errorf("no JSON in response: %s", text)
	}
	if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), out); err != nil {
		return eris.Wrap(err, "parse response JSON")
	}
	return nil
}

// QualifyTier maps research estimates to an outreach tier. Revenue brackets
// can bump a company past what its subbie count alone suggests.
func QualifyTier(estimatedSubbies int, estimatedRevenue string) model.Tier {
	switch {
	case estimatedSubbies > 250 || estimatedRevenue == "$100M+":
		return model.TierBusiness
	case estimatedSubbies > 75 || estimatedRevenue == "$20M-$100M":
		return model.TierCompliance
	default:
		return model.TierVelocity
	}
}

// ScoreResearch grades prospect quality 0-100 from research estimates.
// Companies in the 20-500 subbie band with visible pain, weak compliance
// tooling, and identified decision makers score highest.
func ScoreResearch(data *model.EnrichmentData) int {
	score := 0

	switch {
	case data.EstimatedSubcontractors >= 20 && data.EstimatedSubcontractors <= 500:
		score += 30
	case data.EstimatedSubcontractors > 0:
		score += 15
	}

	painScore := len(data.PainPointSignals) * 10
	if painScore > 30 {
		painScore = 30
	}
	score += painScore

	switch data.ComplianceMaturity {
	case "none":
		score += 20
	case "basic":
		score += 10
	}

	if len(data.DecisionMakers) > 0 {
		score += 20
	}

	return score
}

func truncate(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "Not available"
	}
	return s
}
