package analysis

import (
	"strings"

	"github.com/kindred-ai/matchengine/internal/index"
	"github.com/kindred-ai/matchengine/internal/repository/record"
)

const analysisSystemPrompt = `You are an expert Contract Auditor and Legal Risk Analyst. Your role is to:
1. Analyze the provided contract text for potential risks and liabilities.
2. Identify specific clauses that are problematic or non-standard.
3. Categorize risks using standard legal taxonomy (Indemnification, Liability, etc.).
4. Provide a severity score (1-10) for each risk.
5. Suggest specific improvements or rewrites to mitigate the risks.

You have access to a knowledge base of common contract risks and mitigation strategies. Use this context to inform your analysis.

Always respond with valid JSON in this exact format:
{
    "summary": "Brief executive summary of the contract's overall risk profile.",
    "overall_risk_score": "integer 1-100",
    "risks": [
        {
            "type": "string - one of: indemnification, termination, liability, confidentiality, jurisdiction, payment, ip_rights, non_compete, general",
            "severity": "integer 1-10",
            "location": "string - quote the specific text triggering the risk",
            "explanation": "string - why this is a risk",
            "suggested_fix": "string - brief description of how to fix it",
            "rewrite_suggestion": "string - actual proposed text to replace the risky clause (optional but recommended)"
        }
    ],
    "missing_clauses": ["list of standard protective clauses that are missing"],
    "key_dates": ["list of important dates/deadlines found"]
}`

const rewriteSystemPrompt = `You are an expert Legal Drafter. Your goal is to rewrite contract clauses to be more favorable to the user while remaining reasonable and legally sound.

Output ONLY the rewritten clause text. Do not include explanations or markdown formatting unless requested.`

// buildAnalysisUserPrompt combines the RAG context and the contract under a
// fixed instruction frame.
func buildAnalysisUserPrompt(contractText, ragContext string) string {
	var b strings.Builder
	b.WriteString("Analyze this contract text using the risk knowledge provided.\n\n")
	b.WriteString(ragContext)
	b.WriteString("\n\n---\n\n## CONTRACT TEXT TO ANALYZE\n\n")
	b.WriteString(contractText)
	b.WriteString("\n\n---\n\nProvide your complete analysis in the JSON format specified.")
	return b.String()
}

func buildRewriteUserPrompt(clauseText, riskType, context string) string {
	var b strings.Builder
	b.WriteString("Rewrite the following contract clause to mitigate risks related to ")
	b.WriteString(riskType)
	b.WriteString(".\n\nOriginal Clause:\n\"")
	b.WriteString(clauseText)
	b.WriteString("\"\n\nContext/Guidance:\n")
	b.WriteString(context)
	b.WriteString("\n\nRewritten Clause:")
	return b.String()
}

// buildRAGContext renders retrieved risk definitions and past analyzed
// examples as a markdown knowledge base for the prompt.
func buildRAGContext(risks []index.Hit, examples []record.SimilarHit) string {
	var b strings.Builder
	b.WriteString("## Risk Knowledge Base\n")

	for _, h := range risks {
		meta := h.Record.Metadata()
		name, _ := meta.GetString("display_name")
		if name == "" {
			name = h.Record.ID()
		}
		b.WriteString("\n### " + name + "\n")
		b.WriteString(h.Record.Text() + "\n")
		if factors, ok := meta.GetList("severity_factors"); ok && len(factors) > 0 {
			b.WriteString("**Severity Factors:** " + strings.Join(factors, ", ") + "\n")
		}
		if steps, ok := meta.GetList("mitigation_strategy"); ok && len(steps) > 0 {
			b.WriteString("**Mitigation Strategy:**\n")
			for _, step := range steps {
				b.WriteString("  - " + step + "\n")
			}
		}
	}

	if len(examples) > 0 {
		b.WriteString("\n## Similar Past Analyses\n")
		for _, ex := range examples {
			b.WriteString("\n**Contract Preview:** " + ex.Record.Text() + "...\n")
			if found, ok := ex.Record.Metadata().GetList("risks_found"); ok && len(found) > 0 {
				b.WriteString("**Risks Found:** " + strings.Join(found, ", ") + "\n")
			}
		}
	}

	return b.String()
}
