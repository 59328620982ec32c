// Package template resolves (tier, step, variant) to outreach email content
// and substitutes {{name}} variables. Resolution is pure; a missing
// combination is a programming error, not bad input.
package template

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/risksure/outreach-cli/internal/model"
)

// Params carries the per-lead substitution variables. Zero values fall back
// to sensible defaults during rendering.
type Params struct {
	ContactName        string
	CompanyName        string
	PersonalizedOpener string
	UnsubscribeURL     string
	CalendlyURL        string
	EstimatedSubbies   int
	State              string
	SenderName         string
	SenderTitle        string
	SenderPhone        string
	DemoVideoURL       string
}

// Email is a fully rendered outgoing message. HTML is empty for the first
// touch, which goes out plain-text for better inbox placement.
type Email struct {
	Subject string
	Text    string
	HTML    string
}

// Defaults used when optional params are absent.
const (
	defaultState        = "NSW"
	defaultSenderName   = "Jason"
	defaultSenderTitle  = "Founder"
	defaultSenderPhone  = "0412 345 678"
	defaultDemoVideoURL = "https://risksure.ai/demo"
	defaultCalendlyURL  = "https://calendly.com/risksure/demo"
	defaultSubbies      = 50
)

// Resolve renders the email for a tier, step and variant. It returns an
// error only for combinations outside the sequence tables, which indicates
// a scheduling bug upstream.
func Resolve(tier model.Tier, step int, variant model.Variant, p Params) (*Email, error) {
	if variant != model.VariantA && variant != model.VariantB {
		return nil, eris.Errorf("template: unknown variant %q", variant)
	}

	subjectsByVariant, ok := subjects[step]
	if !ok {
		return nil, eris.Errorf("template: no subject for step %d", step)
	}
	body, err := bodyFor(tier, step)
	if err != nil {
		return nil, err
	}

	vars := p.vars()
	email := &Email{
		Subject: substitute(subjectsByVariant[variant], vars),
		Text:    substitute(body, vars),
	}
	if step > 0 {
		email.HTML = renderHTML(email.Text, substitute("{{unsubscribeUrl}}", vars))
	}
	return email, nil
}

// Subjects returns the A and B subject lines for a step without rendering,
// for A/B bookkeeping. Company name is the only variable subjects use.
func Subjects(step int, companyName, contactName string) (subjectA, subjectB string, err error) {
	byVariant, ok := subjects[step]
	if !ok {
		return "", "", eris.Errorf("template: no subject for step %d", step)
	}
	vars := map[string]string{"companyName": companyName, "contactName": contactName}
	return substitute(byVariant[model.VariantA], vars), substitute(byVariant[model.VariantB], vars), nil
}

// SubjectTemplates returns the raw unrendered A and B subject lines for a
// step, for experiment bookkeeping.
func SubjectTemplates(step int) (subjectA, subjectB string, err error) {
	byVariant, ok := subjects[step]
	if !ok {
		return "", "", eris.Errorf("template: no subject for step %d", step)
	}
	return byVariant[model.VariantA], byVariant[model.VariantB], nil
}

func bodyFor(tier model.Tier, step int) (string, error) {
	if step == 2 {
		body, ok := step2Bodies[tier]
		if !ok {
			return "", eris.Errorf("template: no step 2 body for tier %q", tier)
		}
		return body, nil
	}
	body, ok := bodies[step]
	if !ok {
		return "", eris.Errorf("template: no body for step %d", step)
	}
	return body, nil
}

func (p Params) vars() map[string]string {
	subbies := p.EstimatedSubbies
	if subbies <= 0 {
		subbies = defaultSubbies
	}
	return map[string]string{
		"contactName":        p.ContactName,
		"companyName":        p.CompanyName,
		"personalizedOpener": p.PersonalizedOpener,
		"unsubscribeUrl":     p.UnsubscribeURL,
		"calendlyUrl":        orDefault(p.CalendlyURL, defaultCalendlyURL),
		"estimatedSubbies":   strconv.Itoa(subbies),
		"state":              orDefault(p.State, defaultState),
		"senderName":         orDefault(p.SenderName, defaultSenderName),
		"senderTitle":        orDefault(p.SenderTitle, defaultSenderTitle),
		"senderPhone":        orDefault(p.SenderPhone, defaultSenderPhone),
		"demoVideoUrl":       orDefault(p.DemoVideoURL, defaultDemoVideoURL),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func substitute(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// renderHTML wraps the plain-text body in minimal markup with the
// unsubscribe footer the later sequence steps carry.
func renderHTML(text, unsubscribeURL string) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:Arial,Helvetica,sans-serif;font-size:15px;line-height:1.5;color:#1a1a1a;max-width:600px">`)
	for _, para := range strings.Split(text, "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	if unsubscribeURL != "" {
		fmt.Fprintf(&b,
			`<p style="font-size:12px;color:#8a8a8a;margin-top:24px"><a href="%s" style="color:#8a8a8a">Unsubscribe</a> from these emails.</p>`,
			html.EscapeString(unsubscribeURL))
	}
	b.WriteString("</div>")
	return b.String()
}
