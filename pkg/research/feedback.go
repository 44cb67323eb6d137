package research

import (
	"context"
	"fmt"
)

// GenerateFeedback asks the model for up to numQuestions follow-up questions
// that clarify the research direction of query.
func GenerateFeedback(ctx context.Context, gen Generator, query string, numQuestions int) ([]string, error) {
	if numQuestions < 0 {
		return nil, fmt.Errorf("numQuestions must be >= 0, got %d", numQuestions)
	}
	if numQuestions == 0 {
		return []string{}, nil
	}

	var resp struct {
		Questions []string `json:"questions"`
	}
	if err := generate(ctx, gen, systemPrompt()+feedbackInstruction, feedbackPrompt(query, numQuestions), feedbackSchema(numQuestions), &resp); err != nil {
		return nil, fmt.Errorf("feedback generation: %w", err)
	}

	questions := resp.Questions
	if questions == nil {
		questions = []string{}
	}
	return truncate(questions, numQuestions), nil
}
