package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/deep-research/pkg/research/tools"
)

// ResearchEngine recursively expands a query into SERP queries, crawls the
// results, extracts learnings and follows up on them until the depth budget
// is spent.
type ResearchEngine struct {
	Generator Generator
	Searcher  Searcher
	Extractor *Extractor
	Options   Options
	Logger    *slog.Logger
}

func NewEngine(gen Generator, searcher Searcher, trimmer Trimmer, opts Options) *ResearchEngine {
	opts = opts.withDefaults()
	return &ResearchEngine{
		Generator: gen,
		Searcher:  searcher,
		Extractor: &Extractor{
			Generator:   gen,
			Trimmer:     trimmer,
			TokenBudget: opts.DocumentTokenBudget,
			Timeout:     opts.ExtractionTimeout,
		},
		Options: opts,
		Logger:  slog.Default(),
	}
}

// Research explores req.Query within req.Budget and returns the prior
// learnings and URLs merged with everything discovered. Failures of single
// queries are reported through progress and never abort the run; failures of
// the root query expansion and cancellation of ctx do.
func (e *ResearchEngine) Research(ctx context.Context, req ResearchRequest, progress Progress) (State, error) {
	if err := req.Budget.Validate(); err != nil {
		return State{}, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return State{}, fmt.Errorf("research query is empty")
	}

	e.Logger.Info("Starting research", "query", req.Query, "breadth", req.Budget.Breadth, "depth", req.Budget.Depth)

	known := NewState(req.Learnings, req.VisitedURLs)
	delta, err := e.explore(ctx, req.Query, req.Budget, known, serialize(progress))
	if err != nil {
		return State{}, err
	}

	known.Merge(delta)
	e.Logger.Info("Research complete", "learnings", len(known.Learnings), "urls", len(known.VisitedURLs))
	return known, nil
}

// explore runs one node of the research tree and returns only what this node
// and its descendants discovered.
func (e *ResearchEngine) explore(ctx context.Context, query string, budget Budget, known State, emit Progress) (State, error) {
	queries, err := e.expand(ctx, query, budget, known.Learnings, emit)
	if err != nil {
		return State{}, err
	}

	deltas := make([]State, len(queries))
	if e.Options.Concurrency <= 1 || len(queries) <= 1 {
		for i, q := range queries {
			if err := ctx.Err(); err != nil {
				return State{}, err
			}
			deltas[i] = e.processQuery(ctx, q, budget, known, emit)
		}
	} else {
		// processQuery never fails, so no sibling is ever cancelled by the group.
		var g errgroup.Group
		g.SetLimit(e.Options.Concurrency)
		for i, q := range queries {
			g.Go(func() error {
				deltas[i] = e.processQuery(ctx, q, budget, known, emit)
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	var merged State
	for i, d := range deltas {
		if d.Empty() {
			e.Logger.Debug("Query contributed nothing", "query", queries[i].Query, "depth", budget.Depth)
			continue
		}
		merged.Merge(d)
	}
	return merged, nil
}

// expand asks the model for at most budget.Breadth distinct SERP queries.
func (e *ResearchEngine) expand(ctx context.Context, query string, budget Budget, learnings []string, emit Progress) ([]SerpQuery, error) {
	n := budget.Breadth
	emit(ProgressEvent{
		Kind:    EventExpansionStarted,
		Message: fmt.Sprintf("Generating up to %d SERP queries\n%s", n, query),
		Query:   query,
		Depth:   budget.Depth,
	})

	var resp struct {
		Queries []SerpQuery `json:"queries"`
	}
	if err := generate(ctx, e.Generator, systemPrompt(), serpQueriesPrompt(query, n, learnings), serpQueriesSchema(n), &resp); err != nil {
		return nil, fmt.Errorf("query expansion: %w", err)
	}

	queries := distinctQueries(resp.Queries, n)
	list := make([]string, len(queries))
	for i, q := range queries {
		list[i] = q.Query
	}
	e.Logger.Info("Generated queries", "queries", list, "depth", budget.Depth)

	emit(ProgressEvent{
		Kind:    EventQueriesCreated,
		Message: fmt.Sprintf("Created %d SERP queries\n%s", len(queries), strings.Join(list, ", ")),
		Query:   query,
		Queries: queries,
		Count:   len(queries),
		Depth:   budget.Depth,
	})
	return queries, nil
}

// processQuery isolates one branch: any failure becomes an error event and an
// empty contribution.
func (e *ResearchEngine) processQuery(ctx context.Context, q SerpQuery, budget Budget, known State, emit Progress) State {
	delta, err := e.runQuery(ctx, q, budget, known, emit)
	if err != nil {
		e.Logger.Error("Error running query", "query", q.Query, "error", err)
		emit(ProgressEvent{
			Kind:    EventError,
			Message: fmt.Sprintf("Error running %q: %v", q.Query, err),
			Query:   q.Query,
			Depth:   budget.Depth,
			Err:     err,
		})
		return State{}
	}
	return delta
}

func (e *ResearchEngine) runQuery(ctx context.Context, q SerpQuery, budget Budget, known State, emit Progress) (State, error) {
	emit(ProgressEvent{
		Kind:    EventSearching,
		Message: "Researching\n" + q.Query,
		Query:   q.Query,
		Depth:   budget.Depth,
	})

	docs, err := e.search(ctx, q.Query)
	if err != nil {
		return State{}, err
	}

	emit(ProgressEvent{
		Kind:    EventResultsFound,
		Message: fmt.Sprintf("Found %d results\n%s", len(docs), q.Query),
		Query:   q.Query,
		Count:   len(docs),
		Depth:   budget.Depth,
	})

	docs = tools.WithContent(docs)
	if len(docs) == 0 {
		e.Logger.Info("No readable content for query", "query", q.Query)
		return State{}, nil
	}

	n := budget.Child().Breadth
	extracted, err := e.Extractor.Extract(ctx, q.Query, docs, n, n)
	if err != nil {
		return State{}, err
	}

	emit(ProgressEvent{
		Kind:    EventLearningsGenerated,
		Message: fmt.Sprintf("Generated %d learnings\n%s", len(extracted.Learnings), q.Query),
		Query:   q.Query,
		Count:   len(extracted.Learnings),
		Depth:   budget.Depth,
	})

	var delta State
	delta.AddLearnings(extracted.Learnings...)
	delta.AddURLs(tools.URLs(docs)...)

	if budget.Depth <= 1 {
		return delta, nil
	}

	next := known.Clone()
	next.Merge(delta)
	child, err := e.explore(ctx, followUpQuery(q, extracted.FollowUpQuestions), budget.Child(), next, emit)
	if err != nil {
		return State{}, fmt.Errorf("researching follow-ups: %w", err)
	}
	delta.Merge(child)
	return delta, nil
}

func (e *ResearchEngine) search(ctx context.Context, query string) ([]tools.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Options.SearchTimeout)
	defer cancel()

	docs, err := e.Searcher.Search(ctx, query, tools.SearchOptions{
		Timeout: e.Options.SearchTimeout,
		Limit:   e.Options.SearchLimit,
		Format:  tools.FormatMarkdown,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearch, err)
	}
	return truncate(docs, e.Options.SearchLimit), nil
}

// distinctQueries drops empty and repeated queries and keeps at most n.
func distinctQueries(in []SerpQuery, n int) []SerpQuery {
	seen := make(map[string]struct{}, len(in))
	out := make([]SerpQuery, 0, min(len(in), n))
	for _, q := range in {
		q.Query = strings.TrimSpace(q.Query)
		key := strings.ToLower(q.Query)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if len(out) == n {
			break
		}
	}
	return out
}

// serialize makes progress safe to call from sibling goroutines while keeping
// every caller's own events in order.
func serialize(progress Progress) Progress {
	if progress == nil {
		return func(ProgressEvent) {}
	}
	var mu sync.Mutex
	return func(ev ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		progress(ev)
	}
}
