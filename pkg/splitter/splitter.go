package splitter

import (
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/textsplitter"
)

// MinChunkSize is the shortest prefix Trim ever returns for oversized input.
const MinChunkSize = 140

// TextSplitter wraps the langchaingo text splitter
type TextSplitter struct {
	splitter textsplitter.TextSplitter
}

// NewRecursiveCharacterTextSplitter creates a new recursive character text splitter
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return &TextSplitter{splitter: ts}
}

// SplitText splits text into chunks
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.splitter.SplitText(text)
}

// Trimmer cuts text down to a token budget, preferring to cut on natural
// boundaries (paragraphs, lines, words) over a hard cut.
type Trimmer struct {
	CountTokens func(text string) int
}

// NewTrimmer counts tokens with the tokenizer of the given model.
func NewTrimmer(model string) *Trimmer {
	return &Trimmer{
		CountTokens: func(text string) int {
			return llms.CountTokens(model, text)
		},
	}
}

// Trim returns a prefix of text that fits in budget tokens. Roughly three
// characters are dropped per overflowing token on each pass.
func (t *Trimmer) Trim(text string, budget int) string {
	if text == "" {
		return ""
	}

	length := t.CountTokens(text)
	if length <= budget {
		return text
	}

	runes := []rune(text)
	overflow := length - budget
	chunkSize := len(runes) - overflow*3
	if chunkSize < MinChunkSize {
		return string(runes[:min(MinChunkSize, len(runes))])
	}

	var trimmed string
	if chunks, err := NewRecursiveCharacterTextSplitter(chunkSize, 0).SplitText(text); err == nil && len(chunks) > 0 {
		trimmed = chunks[0]
	}

	// The splitter can hand back the whole text (or nothing) when it finds no
	// usable separator; fall back to a hard cut.
	if trimmed == "" || utf8.RuneCountInString(trimmed) >= len(runes) {
		return t.Trim(string(runes[:chunkSize]), budget)
	}

	return t.Trim(trimmed, budget)
}
