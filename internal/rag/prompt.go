package rag

import "strings"

// promptTemplate is the exact prompt sent to the model; tests rely on it
// byte for byte, so edit with care.
const promptTemplate = `
Answer the question based only on the following context:

{context}

---

Answer the question based on the above context: {question}
`

// contextSeparator joins retrieved chunks, in ranking order, into the
// {context} block.
const contextSeparator = "\n\n---\n\n"

// renderPrompt substitutes the retrieved context and the question into
// the fixed template.
func renderPrompt(contextText, question string) string {
	r := strings.NewReplacer("{context}", contextText, "{question}", question)
	return r.Replace(promptTemplate)
}

// buildContext concatenates chunk contents in ranking order.
func buildContext(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = ch.Content
	}
	return strings.Join(parts, contextSeparator)
}
