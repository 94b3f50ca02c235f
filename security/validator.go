package security

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// RiskLevel is the ordered severity classification of validated input.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the lowercase name of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of validating a piece of untrusted input.
//
// SanitizedInput is set if and only if IsValid is true. RiskLevel is the
// maximum severity among all findings, defaulting to low when none exist.
type Verdict struct {
	IsValid        bool      `json:"is_valid"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Issues         []string  `json:"issues,omitempty"`
	SanitizedInput string    `json:"sanitized_input,omitempty"`
}

// DefaultMaxInputLength bounds accepted input size.
const DefaultMaxInputLength = 10000

// Validator screens untrusted text against the threat pattern catalog plus
// structural checks. It is stateless and safe for concurrent use.
type Validator struct {
	catalog   *Catalog
	maxLength int
}

// NewValidator creates a validator over the given catalog.
// A nil catalog uses the default patterns; maxLength <= 0 uses the default bound.
func NewValidator(catalog *Catalog, maxLength int) *Validator {
	if catalog == nil {
		catalog = NewCatalog()
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxInputLength
	}
	return &Validator{catalog: catalog, maxLength: maxLength}
}

// Validate screens text and returns a risk-leveled verdict.
//
// Four matcher families run against the raw input (SQL injection, XSS, spam,
// suspicious file extensions). An additional pass URL-decodes and HTML-entity
// decodes the input once and re-runs the SQL/XSS matchers against the decoded
// form, which defeats single-layer obfuscation.
//
// Severity policy: SQL injection forces critical; XSS forces high unless
// already critical; spam and decoded-payload findings raise the level to at
// least medium. Clean input is low and comes back with a sanitized copy.
func (v *Validator) Validate(text, fieldLabel string) Verdict {
	if fieldLabel == "" {
		fieldLabel = "input"
	}

	if strings.TrimSpace(text) == "" {
		return Verdict{
			IsValid:   false,
			RiskLevel: RiskMedium,
			Issues:    []string{fmt.Sprintf("%s must be a non-empty string", fieldLabel)},
		}
	}

	var issues []string
	level := RiskLow

	if len(text) > v.maxLength {
		issues = append(issues, fmt.Sprintf("%s exceeds maximum length of %d characters", fieldLabel, v.maxLength))
		level = maxRisk(level, RiskMedium)
	}

	for _, p := range v.catalog.Match(text, FamilySQLInjection) {
		issues = append(issues, fmt.Sprintf("%s contains a SQL injection pattern (%s)", fieldLabel, p.Name))
		level = maxRisk(level, RiskCritical)
	}

	for _, p := range v.catalog.Match(text, FamilyXSS) {
		issues = append(issues, fmt.Sprintf("%s contains a cross-site scripting pattern (%s)", fieldLabel, p.Name))
		level = maxRisk(level, RiskHigh)
	}

	for _, p := range v.catalog.Match(text, FamilySpam) {
		issues = append(issues, fmt.Sprintf("%s contains a spam pattern (%s)", fieldLabel, p.Name))
		level = maxRisk(level, RiskMedium)
	}

	for _, p := range v.catalog.Match(text, FamilyFileExtension) {
		issues = append(issues, fmt.Sprintf("%s references a suspicious file type (%s)", fieldLabel, p.Name))
		level = maxRisk(level, RiskMedium)
	}

	// Decode once and re-check: attackers routinely hide payloads behind a
	// single layer of URL or entity encoding.
	for _, decoded := range decodeOnce(text) {
		for _, p := range v.catalog.Match(decoded, FamilySQLInjection, FamilyXSS) {
			issues = append(issues, fmt.Sprintf("%s contains an encoded payload (%s)", fieldLabel, p.Name))
			level = maxRisk(level, RiskMedium)
		}
	}

	if len(issues) > 0 {
		return Verdict{
			IsValid:   false,
			RiskLevel: level,
			Issues:    issues,
		}
	}

	return Verdict{
		IsValid:        true,
		RiskLevel:      RiskLow,
		SanitizedInput: Sanitize(text),
	}
}

// decodeOnce returns single-layer decodings of the input that differ from it.
func decodeOnce(text string) []string {
	var out []string

	if unescaped, err := url.QueryUnescape(text); err == nil && unescaped != text {
		out = append(out, unescaped)
	}

	if unescaped := html.UnescapeString(text); unescaped != text {
		out = append(out, unescaped)
	}

	return out
}

var (
	// markupTags matches spans that look like tags: an optional slash then a
	// tag name. Bare comparison operators ("a < b") are left alone.
	markupTags = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	spaceRuns  = regexp.MustCompile(`[ \t]{2,}`)
)

// Sanitize strips markup and control characters and normalizes whitespace.
// The result is stable: Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(text string) string {
	text = markupTags.ReplaceAllString(text, "")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	text = spaceRuns.ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(text)
}

func maxRisk(a, b RiskLevel) RiskLevel {
	if b > a {
		return b
	}
	return a
}
