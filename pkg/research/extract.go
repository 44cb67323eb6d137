package research

import (
	"context"
	"fmt"
	"time"

	"github.com/mikeboe/deep-research/pkg/research/tools"
)

// Extraction is what one batch of search results yields.
type Extraction struct {
	Learnings         []string `json:"learnings"`
	FollowUpQuestions []string `json:"followUpQuestions"`
}

// Extractor distils learnings and follow-up questions from crawled documents.
type Extractor struct {
	Generator   Generator
	Trimmer     Trimmer
	TokenBudget int
	Timeout     time.Duration
}

// Extract runs one bounded generation call over docs. Every document is
// trimmed to TokenBudget first; the call fails once Timeout elapses.
func (x *Extractor) Extract(ctx context.Context, query string, docs []tools.Document, numLearnings, numFollowUps int) (Extraction, error) {
	contents := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Content == "" {
			continue
		}
		contents = append(contents, x.Trimmer.Trim(d.Content, x.TokenBudget))
	}

	if x.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.Timeout)
		defer cancel()
	}

	var out Extraction
	err := generate(ctx, x.Generator, systemPrompt(), extractionPrompt(query, contents, numLearnings), extractionSchema(numLearnings, numFollowUps), &out)
	if err != nil {
		return Extraction{}, fmt.Errorf("extracting learnings for %q: %w", query, err)
	}

	out.Learnings = truncate(out.Learnings, numLearnings)
	out.FollowUpQuestions = truncate(out.FollowUpQuestions, numFollowUps)
	return out, nil
}
