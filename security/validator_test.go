package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_CleanInput(t *testing.T) {
	v := NewValidator(nil, 0)

	verdict := v.Validate("Draft a business plan for a small bakery in Cork.", "message")

	assert.True(t, verdict.IsValid)
	assert.Equal(t, RiskLow, verdict.RiskLevel)
	assert.Empty(t, verdict.Issues)
	assert.NotEmpty(t, verdict.SanitizedInput)
}

// TestValidate_Idempotence checks that sanitization only normalizes
// whitespace/control characters on clean input and that the sanitized form
// validates clean again.
func TestValidate_Idempotence(t *testing.T) {
	v := NewValidator(nil, 0)

	inputs := []string{
		"Plan a marketing campaign\tfor Q3.",
		"  Compare   supplier pricing\nacross three vendors.  ",
		"What margins are typical for retail coffee?",
	}

	for _, input := range inputs {
		first := v.Validate(input, "message")
		require.True(t, first.IsValid, "input %q should be valid", input)
		assert.Equal(t, Sanitize(input), first.SanitizedInput)

		second := v.Validate(first.SanitizedInput, "message")
		require.True(t, second.IsValid)
		assert.Equal(t, first.SanitizedInput, second.SanitizedInput)
	}
}

func TestValidate_EmptyInput(t *testing.T) {
	v := NewValidator(nil, 0)

	for _, input := range []string{"", "   ", "\n\t"} {
		verdict := v.Validate(input, "message")
		assert.False(t, verdict.IsValid)
		assert.Equal(t, RiskMedium, verdict.RiskLevel)
		assert.Empty(t, verdict.SanitizedInput)
	}
}

func TestValidate_LengthBound(t *testing.T) {
	v := NewValidator(nil, 50)

	verdict := v.Validate(strings.Repeat("a", 51), "message")

	assert.False(t, verdict.IsValid)
	assert.Equal(t, RiskMedium, verdict.RiskLevel)
	require.Len(t, verdict.Issues, 1)
	assert.Contains(t, verdict.Issues[0], "maximum length")
}

// TestValidate_SeverityOrdering verifies the level is the maximum across all
// findings: a spam phrase plus a SQL keyword must still be critical.
func TestValidate_SeverityOrdering(t *testing.T) {
	v := NewValidator(nil, 0)

	verdict := v.Validate("click here now SELECT * FROM users", "message")

	assert.False(t, verdict.IsValid)
	assert.Equal(t, RiskCritical, verdict.RiskLevel)
	assert.Empty(t, verdict.SanitizedInput)
	assert.GreaterOrEqual(t, len(verdict.Issues), 2)
}

func TestValidate_XSSIsHigh(t *testing.T) {
	v := NewValidator(nil, 0)

	verdict := v.Validate(`Check out <script>alert(document.cookie)</script>`, "message")

	assert.False(t, verdict.IsValid)
	assert.Equal(t, RiskHigh, verdict.RiskLevel)
}

func TestValidate_SpamIsMedium(t *testing.T) {
	v := NewValidator(nil, 0)

	verdict := v.Validate("Click here for a great offer", "message")

	assert.False(t, verdict.IsValid)
	assert.Equal(t, RiskMedium, verdict.RiskLevel)
}

// TestValidate_EncodedPayloads ensures the single-layer decode pass catches
// URL-encoded and entity-encoded payloads that the raw matchers miss.
func TestValidate_EncodedPayloads(t *testing.T) {
	v := NewValidator(nil, 0)

	tests := []struct {
		name  string
		input string
	}{
		{"url encoded script", "%3Cscript%3Ealert(1)%3C%2Fscript%3E"},
		{"entity encoded script", "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{"url encoded union", "x%27%20UNION%20SELECT%20password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.input, "message")
			assert.False(t, verdict.IsValid)
			assert.GreaterOrEqual(t, int(verdict.RiskLevel), int(RiskMedium))

			found := false
			for _, issue := range verdict.Issues {
				if strings.Contains(issue, "encoded payload") {
					found = true
				}
			}
			assert.True(t, found, "expected an encoded payload finding, got %v", verdict.Issues)
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"markup stripped", "hello <b>world</b>", "hello world"},
		{"comparison operators preserved", "a < b and c > d", "a < b and c > d"},
		{"closing tag stripped without opener", "price</td> list", "price list"},
		{"control characters dropped", "plan\x00 ahead\x07", "plan ahead"},
		{"whitespace collapsed", "a  \t b\n c", "a b c"},
		{"trimmed", "  trimmed  ", "trimmed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Sanitize(got), "sanitize must be stable")
		})
	}
}
