package news

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warroom-labs/warroom/internal/llm"
	"github.com/warroom-labs/warroom/internal/models"
)

// Analyzer runs the gated LLM passes over a news signal.
type Analyzer struct {
	gateway *llm.Gateway
	grok    *llm.GrokClient
}

// NewAnalyzer wires the gateway and the optional Grok second opinion.
func NewAnalyzer(gateway *llm.Gateway, grok *llm.GrokClient) *Analyzer {
	return &Analyzer{gateway: gateway, grok: grok}
}

type analysisPayload struct {
	Coherence            string  `json:"coherence"`
	HiddenRisks          string  `json:"hidden_risks"`
	RecommendedAction    string  `json:"recommended_action"`
	Reasoning            string  `json:"reasoning"`
	EnhancedConfidence   float64 `json:"enhanced_confidence"`
	ConfidenceAdjustment float64 `json:"confidence_adjustment"`
}

// Analyze runs the tiers the gate allows and returns the parsed analyses.
// Failures degrade: a failed tier is skipped, never fatal.
func (a *Analyzer) Analyze(ctx context.Context, sig *models.NewsSignal, gate Gate, triggerKind string, now time.Time) []models.LLMAnalysis {
	var out []models.LLMAnalysis
	if gate.Fast {
		if analysis := a.runTier(ctx, llm.TierFast, sig, triggerKind, now); analysis != nil {
			out = append(out, *analysis)
		}
	}
	if gate.Reasoning {
		if analysis := a.runTier(ctx, llm.TierReasoning, sig, triggerKind, now); analysis != nil {
			a.checkDisagreement(ctx, sig, analysis)
			out = append(out, *analysis)
		}
	}
	return out
}

func (a *Analyzer) runTier(ctx context.Context, tier string, sig *models.NewsSignal, triggerKind string, now time.Time) *models.LLMAnalysis {
	resp, err := a.gateway.Generate(ctx, tier, "news", buildAnalysisPrompt(sig, tier, now))
	if err != nil {
		log.Warn().Err(err).Str("tier", tier).Msg("news analysis failed")
		return nil
	}

	analysis := &models.LLMAnalysis{
		NewsSignalID: sig.ID,
		Tier:         tier,
		ModelID:      resp.ModelID,
		TriggerKind:  triggerKind,
		TokensIn:     resp.TokensIn,
		TokensOut:    resp.TokensOut,
	}
	var payload analysisPayload
	if !llm.ParseInto(resp.Text, &payload) {
		log.Warn().Str("tier", tier).Msg("news analysis response unparseable")
		analysis.Coherence = llm.ParseFailed
		analysis.Reasoning = truncateText(resp.Text, 1000)
		return analysis
	}
	analysis.Coherence = payload.Coherence
	analysis.HiddenRisks = payload.HiddenRisks
	analysis.RecommendedAction = payload.RecommendedAction
	analysis.Reasoning = payload.Reasoning
	analysis.EnhancedConfidence = payload.EnhancedConfidence
	analysis.ConfidenceAdjustment = payload.ConfidenceAdjustment
	return analysis
}

// checkDisagreement asks Grok whether it concurs with the reasoning read.
// Best-effort; silence means no flag.
func (a *Analyzer) checkDisagreement(ctx context.Context, sig *models.NewsSignal, analysis *models.LLMAnalysis) {
	if !a.grok.Available() {
		return
	}
	user := fmt.Sprintf(
		"Market read: %s (news score %.1f, %d breaking items).\nAssessment: %s\nRecommended action: %s\n\nDo you agree with this assessment? Answer with JSON {\"agree\": true|false, \"reason\": \"...\"}.",
		sig.CrisisDescription, sig.NewsScore, sig.BreakingCount,
		truncateText(analysis.Reasoning, 800), analysis.RecommendedAction)
	text, _, _, err := a.grok.Complete(ctx, "You are a skeptical markets analyst. Be brief.", user)
	if err != nil {
		log.Debug().Err(err).Msg("grok disagreement check failed")
		return
	}
	var verdict struct {
		Agree bool `json:"agree"`
	}
	if llm.ParseInto(text, &verdict) && !verdict.Agree {
		analysis.Disagreement = true
		log.Info().Msg("grok disagrees with reasoning-tier read")
	}
}

func buildAnalysisPrompt(sig *models.NewsSignal, tier string, now time.Time) string {
	var b strings.Builder
	b.WriteString(llm.MarketSessionBlock(now))
	b.WriteString("\n\nYou are the news-analysis desk of an automated trading watch system.\n")
	fmt.Fprintf(&b, "Current signal: score %.2f, category %s, %d articles (%d breaking), sentiment %s.\n\n",
		sig.NewsScore, sig.CrisisDescription, sig.ArticleCount, sig.BreakingCount, sig.SentimentSummary)

	b.WriteString("Headlines:\n")
	limit := 15
	if tier == llm.TierReasoning {
		limit = 30
	}
	for i, a := range sig.Articles {
		if i >= limit {
			break
		}
		fmt.Fprintf(&b, "- [%s/%s] %s (%s)\n", a.Sentiment, a.Urgency, a.Title, a.Source)
	}

	b.WriteString("\nRespond with only a JSON object:\n")
	b.WriteString(`{"coherence": "do these stories form one narrative or noise",` + "\n")
	b.WriteString(` "hidden_risks": "second-order risks the headlines imply",` + "\n")
	b.WriteString(` "recommended_action": "one sentence",` + "\n")
	b.WriteString(` "reasoning": "your chain of analysis",` + "\n")
	b.WriteString(` "enhanced_confidence": 0-100,` + "\n")
	b.WriteString(` "confidence_adjustment": -50 to +50}` + "\n")
	return b.String()
}
