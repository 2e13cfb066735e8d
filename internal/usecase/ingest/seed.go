package ingest

import (
	"strings"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/domain/metadata"
)

const riskSeedTag = "seed:risk_taxonomy"

type riskDef struct {
	id          string
	displayName string
	description string
	indicators  []string
	severity    []string
	mitigation  []string
}

// riskTaxonomy is the built-in contract risk knowledge base.
var riskTaxonomy = []riskDef{
	{
		id:          "indemnification",
		displayName: "Indemnification",
		description: "Clauses requiring one party to compensate the other for losses.",
		indicators:  []string{"indemnify", "hold harmless", "defend against", "liable for all claims"},
		severity:    []string{"Uncapped liability", "Covering third-party claims", "Broad definition of 'Losses'"},
		mitigation:  []string{"Cap the indemnification amount", "Limit to direct damages only", "Exclude gross negligence/willful misconduct"},
	},
	{
		id:          "liability",
		displayName: "Limitation of Liability",
		description: "Clauses limiting the amount one party has to pay if they are sued.",
		indicators:  []string{"aggregate liability", "consequential damages", "lost profits", "maximum liability"},
		severity:    []string{"No cap on liability", "Cap is too high (e.g., > 2x contract value)", "Exclusion of indirect damages missing"},
		mitigation:  []string{"Ensure mutual limitation", "Set a reasonable cap (e.g., 12 months fees)", "Explicitly exclude consequential damages"},
	},
	{
		id:          "termination",
		displayName: "Termination",
		description: "Conditions under which the contract can be ended.",
		indicators:  []string{"terminate for convenience", "material breach", "notice period", "automatic renewal"},
		severity:    []string{"No termination for convenience", "Long notice periods", "Automatic renewal without easy opt-out"},
		mitigation:  []string{"Negotiate right to terminate for convenience", "Shorten notice periods", "Require written notice for renewal"},
	},
	{
		id:          "confidentiality",
		displayName: "Confidentiality",
		description: "Obligations to keep shared information secret.",
		indicators:  []string{"confidential information", "trade secrets", "non-disclosure", "proprietary data"},
		severity:    []string{"Definition too broad", "Perpetual obligation", "No exceptions for legal requirements"},
		mitigation:  []string{"Define specific categories of confidential info", "Set a time limit (e.g., 3-5 years)", "Standard exceptions (public domain, court order)"},
	},
	{
		id:          "jurisdiction",
		displayName: "Jurisdiction & Governing Law",
		description: "Which laws apply and where disputes will be settled.",
		indicators:  []string{"governed by the laws of", "exclusive jurisdiction", "venue", "arbitration"},
		severity:    []string{"Foreign jurisdiction", "Unfavorable governing law", "Mandatory arbitration in remote location"},
		mitigation:  []string{"Neutral jurisdiction", "Home court advantage if possible", "Allow for mediation before arbitration"},
	},
	{
		id:          "payment",
		displayName: "Payment Terms",
		description: "When and how payments are made.",
		indicators:  []string{"net 30", "net 60", "late fees", "interest", "invoicing"},
		severity:    []string{"Long payment terms (> 45 days)", "High late fees", "Right to withhold payment"},
		mitigation:  []string{"Standard Net 30 terms", "Cap late fees", "Dispute resolution mechanism for invoices"},
	},
	{
		id:          "ip_rights",
		displayName: "Intellectual Property",
		description: "Ownership of work product and pre-existing IP.",
		indicators:  []string{"work made for hire", "assigns all rights", "perpetual license", "moral rights"},
		severity:    []string{"Transfer of background IP", "No license back for vendor", "Broad 'work made for hire' clauses"},
		mitigation:  []string{"Clearly distinguish background IP vs. deliverables", "Grant license instead of assignment where appropriate", "Retain rights to generic tools/methods"},
	},
	{
		id:          "non_compete",
		displayName: "Non-Compete",
		description: "Restrictions on working with competitors.",
		indicators:  []string{"non-compete", "exclusivity", "restrictive covenant", "similar business"},
		severity:    []string{"Broad geographic scope", "Long duration", "Prevents doing business with other clients"},
		mitigation:  []string{"Remove if possible", "Narrow scope to specific direct competitors", "Limit duration to contract term"},
	},
	{
		id:          "general",
		displayName: "General Risk",
		description: "Other potential risks or ambiguous clauses.",
	},
}

// riskSeedItems renders the taxonomy as ingestable items. The canonical text
// concatenates name, description, indicators, and mitigation so all of them
// contribute to the embedding.
func riskSeedItems() []Item {
	items := make([]Item, 0, len(riskTaxonomy))
	for _, def := range riskTaxonomy {
		var b strings.Builder
		b.WriteString(def.displayName + ": " + def.description)
		if len(def.indicators) > 0 {
			b.WriteString(" Indicators: " + strings.Join(def.indicators, ", ") + ".")
		}
		if len(def.mitigation) > 0 {
			b.WriteString(" Mitigation: " + strings.Join(def.mitigation, " "))
		}

		items = append(items, Item{
			ID:     def.id,
			Corpus: domain.CorpusRiskDefinitions,
			Text:   b.String(),
			Meta: metadata.Map{
				"display_name":        metadata.String(def.displayName),
				"category":            metadata.String(def.id),
				"key_indicators":      metadata.StringList(def.indicators...),
				"severity_factors":    metadata.StringList(def.severity...),
				"mitigation_strategy": metadata.StringList(def.mitigation...),
			},
			SourceTag: riskSeedTag,
		})
	}
	return items
}
