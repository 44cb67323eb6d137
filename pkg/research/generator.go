package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikeboe/deep-research/pkg/research/tools"
)

// Generator is the structured text-generation capability. schema is a JSON
// schema the answer must follow; the answer is decoded into out.
type Generator interface {
	Generate(ctx context.Context, system, prompt, schema string, out any) error
}

// Searcher is the search/crawl capability.
type Searcher = tools.Searcher

// Trimmer bounds text to a token budget.
type Trimmer interface {
	Trim(text string, budget int) string
}

// generate calls gen and guarantees the returned error matches ErrGeneration.
func generate(ctx context.Context, gen Generator, system, prompt, schema string, out any) error {
	err := gen.Generate(ctx, system, prompt, schema, out)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrGeneration) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrGeneration, err)
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
