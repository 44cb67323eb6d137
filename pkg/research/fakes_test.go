package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mikeboe/deep-research/pkg/research/tools"
)

const (
	callFeedback = "feedback"
	callQueries  = "queries"
	callExtract  = "extract"
	callReport   = "report"
)

// callKind tells the generation calls apart by their schema.
func callKind(schema string) string {
	switch {
	case strings.Contains(schema, `"reportMarkdown"`):
		return callReport
	case strings.Contains(schema, `"followUpQuestions"`):
		return callExtract
	case strings.Contains(schema, `"queries"`):
		return callQueries
	case strings.Contains(schema, `"questions"`):
		return callFeedback
	}
	return "unknown"
}

type genFunc func(ctx context.Context, prompt string) (any, error)

// fakeGenerator answers each kind of call with a scripted function and
// records the prompts it saw.
type fakeGenerator struct {
	mu       sync.Mutex
	handlers map[string]genFunc
	prompts  map[string][]string
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{handlers: map[string]genFunc{}, prompts: map[string][]string{}}
}

func (f *fakeGenerator) on(kind string, fn genFunc) *fakeGenerator {
	f.handlers[kind] = fn
	return f
}

func (f *fakeGenerator) Generate(ctx context.Context, system, prompt, schema string, out any) error {
	kind := callKind(schema)

	f.mu.Lock()
	f.prompts[kind] = append(f.prompts[kind], prompt)
	fn := f.handlers[kind]
	f.mu.Unlock()

	if fn == nil {
		return fmt.Errorf("unexpected %s call", kind)
	}
	v, err := fn(ctx, prompt)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeGenerator) calls(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts[kind])
}

func (f *fakeGenerator) promptsFor(kind string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts[kind]...)
}

// queriesFrom answers query expansion with n queries derived from a prefix.
func queriesFrom(prefix string, n int) genFunc {
	return func(ctx context.Context, prompt string) (any, error) {
		qs := make([]SerpQuery, n)
		for i := range qs {
			qs[i] = SerpQuery{Query: fmt.Sprintf("%s %d", prefix, i+1), ResearchGoal: "goal " + prefix}
		}
		return map[string]any{"queries": qs}, nil
	}
}

// extractionOf returns learnings named after the query in the prompt.
func extractionOf(learnings, followUps int) genFunc {
	return func(ctx context.Context, prompt string) (any, error) {
		q := between(prompt, "<query>", "</query>")
		ls := make([]string, learnings)
		for i := range ls {
			ls[i] = fmt.Sprintf("learning %d about %s", i+1, q)
		}
		fs := make([]string, followUps)
		for i := range fs {
			fs[i] = fmt.Sprintf("follow-up %d on %s", i+1, q)
		}
		return Extraction{Learnings: ls, FollowUpQuestions: fs}, nil
	}
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	s = s[i+len(start):]
	if j := strings.Index(s, end); j >= 0 {
		return s[:j]
	}
	return s
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	opts    []tools.SearchOptions
	search  func(ctx context.Context, query string) ([]tools.Document, error)
}

func (f *fakeSearcher) Search(ctx context.Context, query string, opts tools.SearchOptions) ([]tools.Document, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	return f.search(ctx, query)
}

func (f *fakeSearcher) options() []tools.SearchOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tools.SearchOptions(nil), f.opts...)
}

func (f *fakeSearcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// docsPerQuery returns n documents with content for every query.
func docsPerQuery(n int) func(ctx context.Context, query string) ([]tools.Document, error) {
	return func(ctx context.Context, query string) ([]tools.Document, error) {
		docs := make([]tools.Document, n)
		for i := range docs {
			slug := strings.ReplaceAll(query, " ", "-")
			docs[i] = tools.Document{
				URL:     fmt.Sprintf("https://example.com/%s/%d", slug, i+1),
				Content: "content of " + query,
			}
		}
		return docs, nil
	}
}

type nopTrimmer struct{}

func (nopTrimmer) Trim(text string, budget int) string { return text }

// eventLog collects progress events.
type eventLog struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (l *eventLog) record(ev ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofKind(kind EventKind) []ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ProgressEvent
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
