package security

import (
	"regexp"
)

// Family classifies the kind of threat a pattern detects.
type Family string

const (
	// FamilySQLInjection covers SQL injection payloads.
	FamilySQLInjection Family = "sql_injection"

	// FamilyXSS covers cross-site-scripting payloads.
	FamilyXSS Family = "xss"

	// FamilySpam covers solicitation and spam phrases.
	FamilySpam Family = "spam"

	// FamilyFileExtension covers suspicious executable file references.
	FamilyFileExtension Family = "file_extension"

	// FamilyBotAgent covers automated client user-agent signatures.
	FamilyBotAgent Family = "bot_agent"
)

// Pattern is a single named threat matcher.
type Pattern struct {
	// Name is a human-readable identifier for the pattern.
	Name string

	// Family classifies the threat this pattern detects.
	Family Family

	// Regex is the compiled regular expression.
	Regex *regexp.Regexp

	// Description explains what this pattern detects.
	Description string

	// Severity is the risk level a match contributes.
	Severity RiskLevel
}

// Catalog holds an immutable collection of threat patterns.
type Catalog struct {
	patterns []*Pattern
}

// NewCatalog creates a catalog with the default threat patterns.
func NewCatalog() *Catalog {
	return &Catalog{patterns: defaultPatterns()}
}

// Patterns returns all patterns in the catalog.
func (c *Catalog) Patterns() []*Pattern {
	return c.patterns
}

// ByFamily returns patterns filtered by family.
func (c *Catalog) ByFamily(family Family) []*Pattern {
	var result []*Pattern
	for _, p := range c.patterns {
		if p.Family == family {
			result = append(result, p)
		}
	}
	return result
}

// Match runs every pattern of the given families against the text and
// returns the patterns that matched, in catalog order.
func (c *Catalog) Match(text string, families ...Family) []*Pattern {
	want := make(map[Family]bool, len(families))
	for _, f := range families {
		want[f] = true
	}

	var hits []*Pattern
	for _, p := range c.patterns {
		if len(families) > 0 && !want[p.Family] {
			continue
		}
		if p.Regex.MatchString(text) {
			hits = append(hits, p)
		}
	}
	return hits
}

// defaultPatterns returns the built-in threat patterns.
// These patterns are designed to balance detection accuracy with performance.
func defaultPatterns() []*Pattern {
	return []*Pattern{
		// SQL injection
		{
			Name:        "sql_keywords",
			Family:      FamilySQLInjection,
			Regex:       regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|UNION|ALTER|TRUNCATE|EXEC|EXECUTE)\b.*\b(FROM|INTO|TABLE|DATABASE|WHERE|SET|VALUES)\b`),
			Description: "Detects SQL statement keywords in combination",
			Severity:    RiskCritical,
		},
		{
			Name:        "select_star",
			Family:      FamilySQLInjection,
			Regex:       regexp.MustCompile(`(?i)\bSELECT\s+\*\s+FROM\b`),
			Description: "Detects SELECT * FROM extraction attempts",
			Severity:    RiskCritical,
		},
		{
			Name:        "union_select",
			Family:      FamilySQLInjection,
			Regex:       regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`),
			Description: "Detects UNION SELECT statements used to extract data",
			Severity:    RiskCritical,
		},
		{
			Name:        "or_true_condition",
			Family:      FamilySQLInjection,
			Regex:       regexp.MustCompile(`(?i)\bOR\s+['"]?\d+['"]?\s*=\s*['"]?\d+['"]?`),
			Description: "Detects OR with always-true comparison (OR 1=1)",
			Severity:    RiskCritical,
		},
		{
			Name:        "stacked_statement",
			Family:      FamilySQLInjection,
			Regex:       regexp.MustCompile(`(?i);\s*(DROP|DELETE|UPDATE|INSERT|EXEC|EXECUTE)\b`),
			Description: "Detects stacked SQL statement after a semicolon",
			Severity:    RiskCritical,
		},
		{
			Name:        "comment_terminator",
			Family:      FamilySQLInjection,
			Regex:       regexp.MustCompile(`(?i)['"]\s*(--|#|/\*)`),
			Description: "Detects quote termination followed by a SQL comment",
			Severity:    RiskCritical,
		},
		{
			Name:        "time_based_probe",
			Family:      FamilySQLInjection,
			Regex:       regexp.MustCompile(`(?i)\b(SLEEP|PG_SLEEP|BENCHMARK|WAITFOR)\s*\(`),
			Description: "Detects time-based blind injection probes",
			Severity:    RiskCritical,
		},
		{
			Name:        "information_schema",
			Family:      FamilySQLInjection,
			Regex:       regexp.MustCompile(`(?i)\bINFORMATION_SCHEMA\b`),
			Description: "Detects database enumeration via INFORMATION_SCHEMA",
			Severity:    RiskCritical,
		},

		// Cross-site scripting
		{
			Name:        "script_tag",
			Family:      FamilyXSS,
			Regex:       regexp.MustCompile(`(?i)<\s*script[^>]*>`),
			Description: "Detects opening script tags",
			Severity:    RiskHigh,
		},
		{
			Name:        "javascript_uri",
			Family:      FamilyXSS,
			Regex:       regexp.MustCompile(`(?i)javascript\s*:`),
			Description: "Detects javascript: URI payloads",
			Severity:    RiskHigh,
		},
		{
			Name:        "event_handler",
			Family:      FamilyXSS,
			Regex:       regexp.MustCompile(`(?i)\bon(load|error|click|mouseover|focus|blur|submit)\s*=`),
			Description: "Detects inline event handler attributes",
			Severity:    RiskHigh,
		},
		{
			Name:        "iframe_tag",
			Family:      FamilyXSS,
			Regex:       regexp.MustCompile(`(?i)<\s*iframe[^>]*>`),
			Description: "Detects iframe injection",
			Severity:    RiskHigh,
		},
		{
			Name:        "object_embed_tag",
			Family:      FamilyXSS,
			Regex:       regexp.MustCompile(`(?i)<\s*(object|embed|applet)[^>]*>`),
			Description: "Detects plugin/object element injection",
			Severity:    RiskHigh,
		},
		{
			Name:        "img_onerror",
			Family:      FamilyXSS,
			Regex:       regexp.MustCompile(`(?i)<\s*img[^>]+onerror`),
			Description: "Detects image tags with error handlers",
			Severity:    RiskHigh,
		},
		{
			Name:        "data_uri_html",
			Family:      FamilyXSS,
			Regex:       regexp.MustCompile(`(?i)data\s*:\s*text/html`),
			Description: "Detects data: URIs carrying HTML",
			Severity:    RiskHigh,
		},

		// Spam and solicitation
		{
			Name:        "click_here",
			Family:      FamilySpam,
			Regex:       regexp.MustCompile(`(?i)\bclick\s+here\b`),
			Description: "Detects call-to-action spam phrasing",
			Severity:    RiskMedium,
		},
		{
			Name:        "act_now",
			Family:      FamilySpam,
			Regex:       regexp.MustCompile(`(?i)\b(act|buy|order|call)\s+now\b`),
			Description: "Detects urgency spam phrasing",
			Severity:    RiskMedium,
		},
		{
			Name:        "free_money",
			Family:      FamilySpam,
			Regex:       regexp.MustCompile(`(?i)\b(free\s+(money|gift|prize)|100%\s*free|no\s+cost)\b`),
			Description: "Detects free-money style solicitation",
			Severity:    RiskMedium,
		},
		{
			Name:        "guaranteed_winner",
			Family:      FamilySpam,
			Regex:       regexp.MustCompile(`(?i)\b(guaranteed|winner|congratulations.{0,20}won|lottery)\b`),
			Description: "Detects prize-notification spam phrasing",
			Severity:    RiskMedium,
		},
		{
			Name:        "crypto_solicitation",
			Family:      FamilySpam,
			Regex:       regexp.MustCompile(`(?i)\b(double\s+your\s+(bitcoin|crypto|investment)|crypto\s+giveaway)\b`),
			Description: "Detects cryptocurrency solicitation",
			Severity:    RiskMedium,
		},
		{
			Name:        "repeated_urls",
			Family:      FamilySpam,
			Regex:       regexp.MustCompile(`(?i)(https?://\S+\s*){3,}`),
			Description: "Detects bursts of repeated links",
			Severity:    RiskMedium,
		},

		// Suspicious file extensions
		{
			Name:        "executable_extension",
			Family:      FamilyFileExtension,
			Regex:       regexp.MustCompile(`(?i)\.(exe|bat|cmd|scr|pif|com|msi)\b`),
			Description: "Detects Windows executable file references",
			Severity:    RiskMedium,
		},
		{
			Name:        "script_extension",
			Family:      FamilyFileExtension,
			Regex:       regexp.MustCompile(`(?i)\.(vbs|jse?|wsf|ps1|sh)\b`),
			Description: "Detects script file references",
			Severity:    RiskMedium,
		},

		// Bot user agents
		{
			Name:        "generic_bot",
			Family:      FamilyBotAgent,
			Regex:       regexp.MustCompile(`(?i)\b(bot|crawler|spider|scraper)\b`),
			Description: "Detects self-identified crawlers",
			Severity:    RiskMedium,
		},
		{
			Name:        "http_tooling",
			Family:      FamilyBotAgent,
			Regex:       regexp.MustCompile(`(?i)\b(curl|wget|python-requests|python-urllib|go-http-client|libwww|okhttp|httpclient)\b`),
			Description: "Detects command line and library HTTP clients",
			Severity:    RiskMedium,
		},
		{
			Name:        "headless_browser",
			Family:      FamilyBotAgent,
			Regex:       regexp.MustCompile(`(?i)(headless|phantomjs|selenium|puppeteer|playwright)`),
			Description: "Detects headless browser automation",
			Severity:    RiskMedium,
		},
	}
}
