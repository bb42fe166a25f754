package pipeline

import (
	"regexp"
	"strings"
)

// DefaultInputMaxLength is used when no override is configured.
const DefaultInputMaxLength = 2048

// injectionPatterns is stage A: known prompt-injection phrasings are
// stripped outright, case-insensitively, before the text ever reaches a
// prompt template.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?previous instructions`),
	regexp.MustCompile(`(?i)new instruction(s)?`),
	regexp.MustCompile(`(?i)system prompt`),
	regexp.MustCompile(`(?i)reveal .*?(password|key|secret|api_key|token)`),
	regexp.MustCompile(`(?i)pretend you are`),
	regexp.MustCompile(`(?i)act as if`),
	regexp.MustCompile(`(?i)roleplaying as`),
	regexp.MustCompile(`(?i)disregard the above`),
	regexp.MustCompile(`(?i)forget everything`),
	regexp.MustCompile(`(?i)override:`),
	regexp.MustCompile(`(?i)admin mode`),
	regexp.MustCompile(`(?i)developer mode`),
}

// dangerousChars is stage B: characters with special meaning in HTML,
// shells, or downstream templates are dropped rather than escaped, except
// for '&' which is HTML-entity escaped so legitimate ampersands survive.
var dangerousChars = regexp.MustCompile(`[<>{}\[\];|` + "`" + `'"]`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// bareAmpersand matches an '&' not already heading the one entity this
// sanitizer ever produces, so escaping is a single non-repeatable step:
// re-running it over already-escaped text leaves "&amp;" untouched instead
// of doubling it to "&amp;amp;".
var bareAmpersand = regexp.MustCompile(`&(?:amp;)?`)

// Sanitizer applies the gateway's two-stage prompt-injection defense to
// raw request text. It is pure and safe for concurrent use.
type Sanitizer struct {
	MaxLength int
}

// NewSanitizer builds a Sanitizer; maxLength <= 0 falls back to
// DefaultInputMaxLength.
func NewSanitizer(maxLength int) *Sanitizer {
	if maxLength <= 0 {
		maxLength = DefaultInputMaxLength
	}
	return &Sanitizer{MaxLength: maxLength}
}

// Sanitize strips known injection phrasings, removes dangerous characters,
// escapes remaining ampersands, collapses whitespace, and truncates to
// MaxLength. It is idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}

	for _, pattern := range injectionPatterns {
		text = pattern.ReplaceAllString(text, "")
	}

	text = dangerousChars.ReplaceAllString(text, "")
	text = bareAmpersand.ReplaceAllString(text, "&amp;")
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if len(text) > s.MaxLength {
		text = text[:s.MaxLength]
	}
	return text
}

// SanitizeOption strips dangerous characters from a string value found in
// a request's options map. Options are not subject to the injection-phrase
// or length-truncation rules, only the character-safety pass.
func (s *Sanitizer) SanitizeOption(value string) string {
	value = dangerousChars.ReplaceAllString(value, "")
	value = bareAmpersand.ReplaceAllString(value, "&amp;")
	return strings.TrimSpace(value)
}

// SanitizeOptions returns a copy of a request's options map with every
// string value sanitized and non-string values copied unchanged; the input
// map is not modified. A nil map returns nil.
func (s *Sanitizer) SanitizeOptions(options map[string]interface{}) map[string]interface{} {
	if options == nil {
		return nil
	}
	cleaned := make(map[string]interface{}, len(options))
	for k, v := range options {
		if str, ok := v.(string); ok {
			cleaned[k] = s.SanitizeOption(str)
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}
