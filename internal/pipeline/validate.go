package pipeline

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/aegislabs/promptgate/internal/core"
)

var errMalformedSentiment = errors.New("pipeline: could not parse sentiment response")

// verbatimRegurgitationThreshold is the input length above which an exact
// substring match between the request text and the response is treated as
// leakage rather than coincidence.
const verbatimRegurgitationThreshold = 250

var forbiddenPatterns = []*regexp.Regexp{
	// system-prompt leakage
	regexp.MustCompile(`(?i)system prompt:`),
	regexp.MustCompile(`(?i)my instructions are`),
	regexp.MustCompile(`(?i)you are an ai assistant`),
	regexp.MustCompile(`(?i)as an ai, my purpose is`),
	regexp.MustCompile(`(?i)according to my instructions`),
	regexp.MustCompile(`(?i)i have been programmed to`),
	// internal reasoning leakage
	regexp.MustCompile(`(?i)thinking step by step`),
	regexp.MustCompile(`(?i)chain of thought:`),
	regexp.MustCompile(`(?i)internal thoughts:`),
	// debug/dev artifacts
	regexp.MustCompile(`(?i)debug mode`),
	regexp.MustCompile(`(?i)TODO:`),
	regexp.MustCompile(`(?i)FIXME:`),
	regexp.MustCompile(`(?i)console\.log`),
	regexp.MustCompile(`(?i)print\(`),
	// injection echoes
	regexp.MustCompile(`(?i)ignore previous instructions`),
	regexp.MustCompile(`(?i)new instructions:`),
	regexp.MustCompile(`(?i)admin mode`),
	// jailbreak echoes
	regexp.MustCompile(`(?i)pretend you are`),
	regexp.MustCompile(`(?i)simulation mode`),
	regexp.MustCompile(`(?i)hypothetical scenario`),
}

var refusalPhrases = []string{
	"i cannot fulfill this request",
	"i am unable to",
	"i'm sorry, but as an ai model",
	"as a large language model",
	"i am not able to provide assistance with that",
	"my apologies, but i cannot",
}

// SentimentResult is the parsed shape of a sentiment operation's response.
type SentimentResult struct {
	Sentiment   string  `json:"sentiment"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// ValidationInput carries the context a validator needs beyond the raw
// response text: the operation being validated, the original (sanitized)
// request text for regurgitation checks, and the system instruction used
// for leakage checks.
type ValidationInput struct {
	Operation         string
	Response          string
	RequestText       string
	SystemInstruction string
}

// Validated is the structured outcome of a successful validation pass.
type Validated struct {
	Text      string
	Sentiment *SentimentResult
	List      []string
}

// Validate checks response against the forbidden-pattern, leakage,
// refusal, and per-operation shape rules. It is pure: it never mutates its
// input and produces the same verdict for the same input every time.
func Validate(in ValidationInput) (*Validated, error) {
	response := strings.TrimSpace(in.Response)

	if response == "" {
		if in.Operation == "summarize" || in.Operation == "qa" {
			return nil, core.NewGatewayError("pipeline.Validate", core.KindValidation,
				"empty response not allowed for "+in.Operation, nil, nil)
		}
		return &Validated{Text: response}, nil
	}

	lower := strings.ToLower(response)

	if in.SystemInstruction != "" && strings.Contains(lower, strings.ToLower(in.SystemInstruction)) {
		return nil, validationErr("response contains system instruction leakage", nil)
	}

	if len(in.RequestText) > verbatimRegurgitationThreshold && strings.Contains(lower, strings.ToLower(in.RequestText)) {
		return nil, validationErr("response contains verbatim input regurgitation", nil)
	}

	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return nil, validationErr("response contains AI refusal phrase", map[string]interface{}{"phrase": phrase})
		}
	}

	for _, pattern := range forbiddenPatterns {
		if match := pattern.FindString(response); match != "" {
			return nil, validationErr("response contains forbidden pattern", map[string]interface{}{
				"pattern": pattern.String(),
				"matched": match,
			})
		}
	}

	switch in.Operation {
	case "summarize":
		if len(response) < 10 {
			return nil, validationErr("summary response is too short to be useful", nil)
		}
		return &Validated{Text: response}, nil

	case "qa":
		if len(response) < 5 {
			return nil, validationErr("qa response is too short to be meaningful", nil)
		}
		return &Validated{Text: response}, nil

	case "sentiment":
		if len(response) < 5 {
			return nil, validationErr("sentiment response is too short", nil)
		}
		result, err := parseSentiment(response)
		if err != nil {
			return nil, validationErr("sentiment response could not be parsed", map[string]interface{}{"error": err.Error()})
		}
		return &Validated{Text: response, Sentiment: result}, nil

	case "key_points":
		if len(response) < 5 {
			return nil, validationErr("key points response is too short", nil)
		}
		return &Validated{Text: response, List: splitLines(response)}, nil

	case "questions":
		if !strings.Contains(response, "?") && len(response) < 10 {
			return nil, validationErr("questions response should contain actual questions", nil)
		}
		return &Validated{Text: response, List: splitLines(response)}, nil

	default:
		return nil, validationErr("unknown operation", map[string]interface{}{"operation": in.Operation})
	}
}

func validationErr(message string, context map[string]interface{}) error {
	return core.NewGatewayError("pipeline.Validate", core.KindValidation, message, context, nil)
}

func parseSentiment(response string) (*SentimentResult, error) {
	var result SentimentResult
	if err := json.Unmarshal([]byte(response), &result); err == nil && result.Sentiment != "" {
		return &result, nil
	}

	// Fall back to a loose textual parse: the model did not return JSON but
	// mentioned a polarity word plainly.
	lower := strings.ToLower(response)
	switch {
	case strings.Contains(lower, "positive"):
		result.Sentiment = "positive"
	case strings.Contains(lower, "negative"):
		result.Sentiment = "negative"
	case strings.Contains(lower, "neutral"):
		result.Sentiment = "neutral"
	default:
		return nil, errMalformedSentiment
	}
	result.Confidence = 0.5
	result.Explanation = response
	return &result, nil
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
