package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/tools"
)

// stubGenerator answers every pipeline call from the schema it is given.
type stubGenerator struct {
	feedbackErr error
	reportErr   error
	questions   []string
	learnings   int
}

func (g *stubGenerator) Generate(ctx context.Context, system, prompt, schema string, out any) error {
	var v any
	switch {
	case strings.Contains(schema, `"reportMarkdown"`):
		if g.reportErr != nil {
			return g.reportErr
		}
		v = map[string]string{"reportMarkdown": "## Findings\n\nThe canal opened in 1869."}
	case strings.Contains(schema, `"followUpQuestions"`):
		q := prompt[strings.Index(prompt, "<query>")+len("<query>") : strings.Index(prompt, "</query>")]
		ls := make([]string, g.learnings)
		for i := range ls {
			ls[i] = fmt.Sprintf("learning %d about %s", i+1, q)
		}
		v = map[string]any{"learnings": ls, "followUpQuestions": []string{"what next?"}}
	case strings.Contains(schema, `"queries"`):
		v = map[string]any{"queries": []research.SerpQuery{
			{Query: "suez canal construction", ResearchGoal: "construction"},
			{Query: "suez canal nationalisation", ResearchGoal: "politics"},
			{Query: "suez canal tolls", ResearchGoal: "economics"},
		}}
	case strings.Contains(schema, `"questions"`):
		if g.feedbackErr != nil {
			return g.feedbackErr
		}
		v = map[string]any{"questions": g.questions}
	default:
		return errors.New("unexpected schema")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

type stubSearcher struct {
	docs int
}

func (s *stubSearcher) Search(ctx context.Context, query string, opts tools.SearchOptions) ([]tools.Document, error) {
	docs := make([]tools.Document, s.docs)
	for i := range docs {
		docs[i] = tools.Document{
			URL:     fmt.Sprintf("https://example.com/%s/%d", strings.ReplaceAll(query, " ", "-"), i+1),
			Content: "about " + query,
		}
	}
	return docs, nil
}

type passTrimmer struct{}

func (passTrimmer) Trim(text string, budget int) string { return text }

// memStore is an in-memory RunStore.
type memStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]database.Run
	logs []database.LogEntry
}

func newMemStore() *memStore {
	return &memStore{runs: map[uuid.UUID]database.Run{}}
}

func (m *memStore) CreateRun(ctx context.Context, run database.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.Status = database.RunRunning
	m.runs[run.ID] = run
	return nil
}

func (m *memStore) FinishRun(ctx context.Context, id uuid.UUID, status, report string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return errors.New("no such run")
	}
	run.Status = status
	if report != "" {
		run.Report = &report
	}
	m.runs[id] = run
	return nil
}

func (m *memStore) GetRun(ctx context.Context, id uuid.UUID) (*database.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, database.ErrRunNotFound
	}
	return &run, nil
}

func (m *memStore) InsertLog(ctx context.Context, entry database.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memStore) RunLogs(ctx context.Context, runID uuid.UUID) ([]database.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.LogEntry
	for _, l := range m.logs {
		if l.RunID == runID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) run(id uuid.UUID) database.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.OpenAIApiKey = "sk-test"
	cfg.FirecrawlApiKey = "fc-test"
	return cfg
}

func newTestService(gen *stubGenerator, store RunStore) *Service {
	s := NewService(testConfig(), store, &stubSearcher{docs: 2}, passTrimmer{})
	s.NewGenerator = func(ctx context.Context, modelID string) (research.Generator, error) {
		return gen, nil
	}
	s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return s
}
