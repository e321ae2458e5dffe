package rag

import (
	"strings"
	"testing"
)

func TestRenderPromptSubstitutesVerbatim(t *testing.T) {
	context := "Paris is the capital of France."
	question := "What is the capital of France?"

	prompt := renderPrompt(context, question)

	want := "\nAnswer the question based only on the following context:\n\n" +
		"Paris is the capital of France.\n\n---\n\n" +
		"Answer the question based on the above context: What is the capital of France?\n"
	if prompt != want {
		t.Fatalf("rendered prompt mismatch:\n got: %q\nwant: %q", prompt, want)
	}
	if !strings.Contains(prompt, context) {
		t.Fatalf("prompt does not contain context verbatim")
	}
	if !strings.Contains(prompt, question) {
		t.Fatalf("prompt does not contain question verbatim")
	}
	if !strings.Contains(prompt, "---") {
		t.Fatalf("prompt missing template separator")
	}
}

func TestBuildContextJoinsInRankingOrder(t *testing.T) {
	chunks := []Chunk{
		{Content: "first"},
		{Content: "second"},
		{Content: "third"},
	}
	got := buildContext(chunks)
	want := "first\n\n---\n\nsecond\n\n---\n\nthird"
	if got != want {
		t.Fatalf("context mismatch: got %q want %q", got, want)
	}
}

func TestBuildContextEmpty(t *testing.T) {
	if got := buildContext(nil); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}
