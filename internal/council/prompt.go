package council

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/tokens"
)

const synthesizerSystemPrompt = `You are the council's synthesis expert. You combine diverse viewpoints into one coherent, honest conclusion.
Favor the perspectives with higher weight, keep points of consensus, and state any unresolved disagreement explicitly instead of hiding it.`

// systemPrompt returns the member's configured persona, or a minimal one
// built from its name and role.
func systemPrompt(m domain.CouncilMember) string {
	if m.SystemPrompt != "" {
		return m.SystemPrompt
	}
	if m.Role != "" {
		return fmt.Sprintf("You are %s, a member of the council acting as %s.", m.Name, m.Role)
	}
	return fmt.Sprintf("You are %s, a member of the council.", m.Name)
}

// promptBuilder renders prompts and keeps quoted material inside token
// budgets.
type promptBuilder struct {
	counter       tokens.Counter
	passageBudget int // total across passages
	excerptBudget int
}

func (b promptBuilder) clip(selector, text string, budget int) string {
	if b.counter == nil || budget <= 0 {
		return text
	}
	out, _ := b.counter.Truncate(selector, text, budget)
	return out
}

func (b promptBuilder) initial(m domain.CouncilMember, query string, rc *domain.RetrievedContext) string {
	var sb strings.Builder
	if m.Role != "" {
		fmt.Fprintf(&sb, "Your role on the council: %s.\n\n", m.Role)
	}
	if !rc.Empty() {
		sb.WriteString("Relevant passages from the knowledge base:\n")
		var perPassage int
		if b.passageBudget > 0 {
			perPassage = max(1, b.passageBudget/len(rc.Passages))
		}
		for i, p := range rc.Passages {
			label := p.Source
			if p.Title != "" {
				label = p.Title + " (" + p.Source + ")"
			}
			fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, label, b.clip(m.ReasoningSelector, p.Text, perPassage))
		}
		sb.WriteString("Ground your answer in these passages where they apply and cite them by number.\n\n")
	}
	fmt.Fprintf(&sb, "Question: %s\n\n", query)
	sb.WriteString("Answer the question from your perspective. Finish with exactly these two lines:\n")
	sb.WriteString("CONFIDENCE: <a number between 0 and 1>\n")
	sb.WriteString("REASONING: <one or two sentences on how you reached your answer>\n")
	return sb.String()
}

func (b promptBuilder) review(reviewer domain.CouncilMember, query string, target domain.MemberResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original question: %q\n\n", query)
	fmt.Fprintf(&sb, "%s answered:\n%s\n\n", target.MemberName, b.clip(reviewer.ReasoningSelector, target.Response, b.excerptBudget))
	fmt.Fprintf(&sb, "As %s, evaluate this answer. Judge its correctness and how far you agree with it.\n", reviewer.Name)
	sb.WriteString("Reply in this format:\n")
	sb.WriteString("AGREEMENT: <a number between 0 and 1, where 1 means full agreement>\n")
	sb.WriteString("COMMENTS: <strengths, weaknesses, and anything you would change>\n")
	return sb.String()
}

func (b promptBuilder) synthesis(selector, query string, weighted []weightedResponse, reviews []domain.PeerReview) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original question: %q\n\n", query)
	sb.WriteString("Council answers, highest weight first:\n\n")
	for _, w := range weighted {
		fmt.Fprintf(&sb, "--- %s (weight %.2f, confidence %.2f)\n%s\n\n",
			w.Response.MemberName, w.Weight, w.Response.Confidence,
			b.clip(selector, w.Response.Response, b.excerptBudget))
	}
	if len(reviews) > 0 {
		sb.WriteString("Peer review agreement (reviewer -> reviewee):\n")
		for _, r := range reviews {
			fmt.Fprintf(&sb, "- %s -> %s: %.2f\n", r.ReviewerID, r.RevieweeID, r.Agreement)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Synthesize these answers into one balanced response. Favor higher-weighted answers, ")
	sb.WriteString("keep the points the council agrees on, and flag any disagreement that remains unresolved.\n")
	return sb.String()
}
