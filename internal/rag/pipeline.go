package rag

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/ragserve/models"
)

var (
	// ErrRetrieval marks similarity-search failures.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrGeneration marks hosted-model failures.
	ErrGeneration = errors.New("generation failed")
)

// ChunkRetriever is the retrieval half of the pipeline.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error)
}

// Generator is the answer-generation half of the pipeline.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Pipeline orchestrates retrieval, prompt assembly and generation. It
// never touches persisted query records.
type Pipeline struct {
	Retriever ChunkRetriever
	Generator Generator
	TopK      int
	Logger    *log.Logger
}

// Answer runs one retrieval-augmented generation pass for queryText.
// There are no retries: a failing search or model call is terminal for
// this invocation.
func (p *Pipeline) Answer(ctx context.Context, queryText string) (models.QueryResponse, error) {
	topK := p.TopK
	if topK <= 0 {
		topK = 3
	}

	chunks, err := p.Retriever.Retrieve(ctx, queryText, topK)
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	prompt := renderPrompt(buildContext(chunks), queryText)
	if p.Logger != nil {
		p.Logger.Printf("prompt assembled for %d chunks (%d chars)", len(chunks), len(prompt))
	}

	responseText, err := p.Generator.Generate(ctx, prompt)
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	// sources[i] lines up with the i-th ranked chunk; nil entries are kept
	// so positions stay aligned.
	sources := make([]*string, len(chunks))
	for i, ch := range chunks {
		sources[i] = ch.SourceID
	}

	return models.QueryResponse{
		QueryText:    queryText,
		ResponseText: responseText,
		Sources:      sources,
	}, nil
}
