package pipeline

import (
	"strings"
	"testing"
)

func TestAssemblePromptIncludesAllThreeSections(t *testing.T) {
	assembled, err := AssemblePrompt("summarize", "some text", "")
	if err != nil {
		t.Fatal(err)
	}
	if assembled.SystemPrompt == "" {
		t.Fatal("expected a non-empty system instruction")
	}
	if !strings.Contains(assembled.UserPrompt, delimiterStart) || !strings.Contains(assembled.UserPrompt, delimiterEnd) {
		t.Fatal("expected user text to be wrapped in delimiters")
	}
	if !strings.Contains(assembled.UserPrompt, "some text") {
		t.Fatal("expected user text to be present in the assembled prompt")
	}
}

func TestAssemblePromptEscapesUserText(t *testing.T) {
	assembled, err := AssemblePrompt("summarize", "<b>bold</b>", "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(assembled.UserPrompt, "<b>") {
		t.Fatal("expected HTML entities to be escaped in the assembled prompt")
	}
}

func TestAssemblePromptIncludesQuestionForQA(t *testing.T) {
	assembled, err := AssemblePrompt("qa", "context text", "What is the capital?")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(assembled.UserPrompt, "What is the capital?") {
		t.Fatal("expected qa prompt to include the question")
	}
}

func TestAssemblePromptUnknownOperation(t *testing.T) {
	if _, err := AssemblePrompt("unknown", "text", ""); err == nil {
		t.Fatal("expected an error for an unknown operation")
	}
}
