package template

import "github.com/risksure/outreach-cli/internal/model"

// Sequence copy. Steps 0-4 are the initial sequence, 5-7 the long-interval
// nurture touches. Step 2 is the only tier-specific body.

var subjects = map[int]map[model.Variant]string{
	0: {
		model.VariantA: "Quick question about {{companyName}}'s COC process",
		model.VariantB: "{{contactName}} - subbie insurance compliance",
	},
	1: {
		model.VariantA: "Re: Quick question about {{companyName}}'s COC process",
		model.VariantB: "The workflow shift (+ Procore sync)",
	},
	2: {
		model.VariantA: "{{contactName}} - the compliance maths",
		model.VariantB: "Beyond time savings - the liability angle",
	},
	3: {
		model.VariantA: "Early adopter opportunity",
		model.VariantB: "What {{state}} builders are switching to",
	},
	4: {
		model.VariantA: "Closing the loop",
		model.VariantB: "Last note from me",
	},
	5: {
		model.VariantA: "Checking back in on {{companyName}}'s certificate admin",
		model.VariantB: "Still chasing subbie certificates?",
	},
	6: {
		model.VariantA: "What changed since we last spoke",
		model.VariantB: "{{contactName}} - one quick update",
	},
	7: {
		model.VariantA: "Leaving this with you",
		model.VariantB: "Final check-in from RiskSure",
	},
}

var bodies = map[int]string{
	0: `{{personalizedOpener}}

When a new subbie comes on, someone on your team gets their COC, opens the PDF, checks the coverage and expiry, matches it to your requirements, logs it somewhere, and follows up if something's off.

Multiply that by {{estimatedSubbies}} subbies and 3-4 certs each. That's a lot of admin hours - and a lot of liability if something slips through.

We built something that changes that:
- Each subbie gets their own portal (free for them, no account required - just a link)
- They upload their docs in 60 seconds
- Our AI verifies everything against your requirements in 30 seconds
- Your team just reviews what we flag

You get a timestamped audit trail of every verification - useful if WorkSafe ever asks.

Happy to show you how it works if you're interested: {{calendlyUrl}}

{{senderName}}
{{senderTitle}} | RiskSure.AI
{{senderPhone}}

If this isn't relevant for {{companyName}}, just let me know.`,

	1: `{{contactName}},

Following up on my last note.

The short version: subbies upload their own docs through a free portal (no login, just a secure link), we verify everything in about 30 seconds, and your team just reviews the exceptions.

No chasing. No spreadsheets. No manual checking.

Already using Procore? We sync directly - your subbie compliance status shows up right in your project.

Here's a 2-minute video showing how it works: {{demoVideoUrl}}

Or grab a time for a live walkthrough: {{calendlyUrl}}

{{senderName}}

If this isn't relevant, just reply and I'll stop following up.`,

	3: `{{contactName}},

One more thought and I'll leave you alone.

We're a new player in this space - purpose-built for Australian construction compliance. No legacy from overseas markets, no charging subbies hundreds of dollars to upload a certificate.

Here's how it works: your team adds a subbie, they get a portal link, they upload in 60 seconds (free for them, no login required), and our AI verifies against your requirements in 30 seconds. You just review the exceptions.

If you'd be open to being one of our early adopters, use code FOUNDER50 for 50% off your first 6 months. You'd also get direct input into what we build next.

Interested? {{calendlyUrl}}

Either way, appreciate your time.

{{senderName}}
{{senderTitle}} | RiskSure.AI
{{senderPhone}}`,

	4: `{{contactName}},

I've reached out a few times about how {{companyName}} handles subbie insurance compliance - haven't heard back, so I'll assume the timing isn't right.

If things change - whether it's an upcoming audit, a close call with an uninsured subbie, or just wanting to free up admin time - the door's open: {{calendlyUrl}}

The FOUNDER50 code (50% off first 6 months) stays valid if you want to revisit later.

All the best with the projects.

{{senderName}}
{{senderPhone}}`,

	5: `{{contactName}},

It's been a while since I reached out about {{companyName}}'s subbie certificate process, so I wanted to check back in.

Since then we've shipped expiry alerts, bulk requirement updates, and a compliance dashboard that shows every project's status at a glance.

If the admin load has crept up again, it might be worth a fresh look: {{calendlyUrl}}

{{senderName}}
{{senderPhone}}`,

	6: `{{contactName}},

One quick update from our side: WorkSafe audits in {{state}} have been leaning harder on contractor insurance records this year, and a few builders have come to us straight after one.

If an audit is anywhere on your horizon, a timestamped verification trail for every certificate is the easiest way to walk in prepared.

Happy to show you what that looks like: {{calendlyUrl}}

{{senderName}}
{{senderPhone}}`,

	7: `{{contactName}},

This is my last note - I'll leave {{companyName}} off the list after this.

If subbie compliance ever becomes the thing eating your week, you know where to find us: {{calendlyUrl}}

All the best.

{{senderName}}
{{senderPhone}}`,
}

var step2Bodies = map[model.Tier]string{
	model.TierVelocity: `{{contactName}},

Two angles to consider:

The time angle: with {{estimatedSubbies}} subbies, you're probably processing 200-300 certificates a year. At 20-30 minutes each (download, open, check, log, follow up) - that's 100+ hours of admin work annually.

The liability angle: with Industrial Manslaughter laws now active in {{state}}, you're personally liable if an uninsured subbie causes an incident on your site. The Pafburn ruling confirmed you can't contract that away - head contractors carry the risk.

We've built something that handles both - automates the admin AND gives you a timestamped audit trail proving you verified every certificate. If WorkSafe walks in, you show them a system, not a spreadsheet.

Worth a 15-minute look? {{calendlyUrl}}

{{senderName}}
{{senderPhone}}`,

	model.TierCompliance: `{{contactName}},

Two angles to consider:

The time angle: with {{estimatedSubbies}} subbies across multiple projects, you're probably processing 600-1000 certificates a year. That's a lot of hours spent on admin work that doesn't need a human.

The liability angle: Industrial Manslaughter laws are now active in {{state}} - up to $20M in fines and personal imprisonment for officers. The Pafburn High Court ruling confirmed head contractors can't delegate this liability to subbies.

We've built something that handles both:
- Automates collection and verification (AI checks in 30 seconds)
- Creates a timestamped audit trail for every verification
- Flags exceptions for your team to review

Your compliance team spends time on actual risk management, not document admin.

Worth a look? {{calendlyUrl}}

{{senderName}}
{{senderPhone}}`,

	model.TierBusiness: `{{contactName}},

At {{companyName}}'s scale, you've got thousands of certificates across your portfolio. That's either a full-time job for someone, or gaps are forming.

With Industrial Manslaughter laws now active nationally and the Pafburn ruling confirming non-delegable duty, those gaps represent serious liability - not just admin inconvenience.

We work with builders managing 300+ subbies where:
- The compliance team has complete visibility across every project
- Every verification is timestamped (audit-ready)
- Subbies actually upload on time (because our portal is free and takes 60 seconds)
- The team focuses on risk management, not document chasing

If you'd like to see how this works at enterprise scale: {{calendlyUrl}}

{{senderName}}
{{senderPhone}}`,
}
