package security

import (
	"strings"
)

// AgentVerdict is the outcome of analyzing a client user-agent string.
type AgentVerdict struct {
	IsBot        bool      `json:"is_bot"`
	IsSuspicious bool      `json:"is_suspicious"`
	RiskLevel    RiskLevel `json:"risk_level"`
	Reasons      []string  `json:"reasons,omitempty"`
}

// User-agent length heuristics. Real browser strings sit well inside these.
const (
	minAgentLength = 10
	maxAgentLength = 512
)

// browserTokens are substrings present in every mainstream browser UA.
var browserTokens = []string{
	"mozilla", "chrome", "safari", "firefox", "edge", "edg/", "opera", "opr/",
}

// AnalyzeUserAgent classifies a user-agent string. Bot signatures, abnormal
// length, and the absence of any known browser token each contribute
// independently to the risk level.
func (v *Validator) AnalyzeUserAgent(userAgent string) AgentVerdict {
	verdict := AgentVerdict{RiskLevel: RiskLow}

	if strings.TrimSpace(userAgent) == "" {
		verdict.IsSuspicious = true
		verdict.RiskLevel = RiskMedium
		verdict.Reasons = append(verdict.Reasons, "user agent is missing")
		return verdict
	}

	for _, p := range v.catalog.Match(userAgent, FamilyBotAgent) {
		verdict.IsBot = true
		verdict.RiskLevel = maxRisk(verdict.RiskLevel, p.Severity)
		verdict.Reasons = append(verdict.Reasons, "matched bot signature "+p.Name)
	}

	if len(userAgent) < minAgentLength {
		verdict.IsSuspicious = true
		verdict.RiskLevel = maxRisk(verdict.RiskLevel, RiskMedium)
		verdict.Reasons = append(verdict.Reasons, "user agent is unusually short")
	}
	if len(userAgent) > maxAgentLength {
		verdict.IsSuspicious = true
		verdict.RiskLevel = maxRisk(verdict.RiskLevel, RiskMedium)
		verdict.Reasons = append(verdict.Reasons, "user agent is unusually long")
	}

	lower := strings.ToLower(userAgent)
	hasBrowserToken := false
	for _, token := range browserTokens {
		if strings.Contains(lower, token) {
			hasBrowserToken = true
			break
		}
	}
	if !hasBrowserToken {
		verdict.IsSuspicious = true
		verdict.RiskLevel = maxRisk(verdict.RiskLevel, RiskMedium)
		verdict.Reasons = append(verdict.Reasons, "no known browser token present")
	}

	// Multiple independent signals compound the risk.
	if verdict.IsBot && verdict.IsSuspicious {
		verdict.RiskLevel = maxRisk(verdict.RiskLevel, RiskHigh)
	}

	return verdict
}
