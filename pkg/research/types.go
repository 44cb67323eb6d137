package research

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrGeneration marks failures of the language model (provider error, timeout, malformed output).
	ErrGeneration = errors.New("generation failed")
	// ErrSearch marks failures of the search/crawl provider.
	ErrSearch = errors.New("search failed")
	// ErrInvalidBudget is returned when breadth or depth is not a positive integer.
	ErrInvalidBudget = errors.New("invalid research budget")
)

// Options holds the tunable constants of a research run.
type Options struct {
	SearchTimeout       time.Duration
	SearchLimit         int
	ExtractionTimeout   time.Duration
	DocumentTokenBudget int
	ReportTokenBudget   int
	// Concurrency bounds how many sibling queries of one level run at once. 1 means sequential.
	Concurrency int
}

// DefaultOptions returns the reference constants: 15s search, 5 results, 60s extraction,
// 25k tokens per document and 150k tokens for the report input.
func DefaultOptions() Options {
	return Options{
		SearchTimeout:       15 * time.Second,
		SearchLimit:         5,
		ExtractionTimeout:   60 * time.Second,
		DocumentTokenBudget: 25_000,
		ReportTokenBudget:   150_000,
		Concurrency:         1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = d.SearchTimeout
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = d.SearchLimit
	}
	if o.ExtractionTimeout <= 0 {
		o.ExtractionTimeout = d.ExtractionTimeout
	}
	if o.DocumentTokenBudget <= 0 {
		o.DocumentTokenBudget = d.DocumentTokenBudget
	}
	if o.ReportTokenBudget <= 0 {
		o.ReportTokenBudget = d.ReportTokenBudget
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	return o
}

// SerpQuery is a single search query produced by query expansion.
type SerpQuery struct {
	Query        string `json:"query"`
	ResearchGoal string `json:"researchGoal"`
}

// Budget bounds the research tree.
type Budget struct {
	Breadth int `json:"breadth"`
	Depth   int `json:"depth"`
}

// Validate rejects non-positive breadth or depth.
func (b Budget) Validate() error {
	if b.Breadth < 1 {
		return fmt.Errorf("%w: breadth must be >= 1, got %d", ErrInvalidBudget, b.Breadth)
	}
	if b.Depth < 1 {
		return fmt.Errorf("%w: depth must be >= 1, got %d", ErrInvalidBudget, b.Depth)
	}
	return nil
}

// Child returns the budget of the next recursion level. Breadth is halved
// (rounded up) and never drops below 1.
func (b Budget) Child() Budget {
	return Budget{Breadth: max(1, ceilHalf(b.Breadth)), Depth: b.Depth - 1}
}

func ceilHalf(n int) int {
	return (n + 1) / 2
}

// State accumulates learnings and visited URLs. Both lists behave as sets:
// values are compared by exact string equality, first insertion wins, nothing is removed.
type State struct {
	Learnings   []string `json:"learnings"`
	VisitedURLs []string `json:"visitedUrls"`

	seenLearnings map[string]struct{}
	seenURLs      map[string]struct{}
}

// NewState builds a State from prior values, collapsing duplicates.
func NewState(learnings, urls []string) State {
	var s State
	s.AddLearnings(learnings...)
	s.AddURLs(urls...)
	return s
}

func (s *State) AddLearnings(learnings ...string) {
	if s.seenLearnings == nil {
		s.seenLearnings = make(map[string]struct{}, len(s.Learnings))
		for _, l := range s.Learnings {
			s.seenLearnings[l] = struct{}{}
		}
	}
	for _, l := range learnings {
		if _, ok := s.seenLearnings[l]; ok {
			continue
		}
		s.seenLearnings[l] = struct{}{}
		s.Learnings = append(s.Learnings, l)
	}
}

func (s *State) AddURLs(urls ...string) {
	if s.seenURLs == nil {
		s.seenURLs = make(map[string]struct{}, len(s.VisitedURLs))
		for _, u := range s.VisitedURLs {
			s.seenURLs[u] = struct{}{}
		}
	}
	for _, u := range urls {
		if _, ok := s.seenURLs[u]; ok {
			continue
		}
		s.seenURLs[u] = struct{}{}
		s.VisitedURLs = append(s.VisitedURLs, u)
	}
}

// Merge unions other into s.
func (s *State) Merge(other State) {
	s.AddLearnings(other.Learnings...)
	s.AddURLs(other.VisitedURLs...)
}

// Clone returns an independent copy of s.
func (s State) Clone() State {
	return NewState(s.Learnings, s.VisitedURLs)
}

// Empty reports whether the state holds neither learnings nor URLs.
func (s State) Empty() bool {
	return len(s.Learnings) == 0 && len(s.VisitedURLs) == 0
}

// EventKind tags a ProgressEvent.
type EventKind string

const (
	EventExpansionStarted   EventKind = "query-expansion-started"
	EventQueriesCreated     EventKind = "queries-created"
	EventSearching          EventKind = "searching"
	EventResultsFound       EventKind = "results-found"
	EventLearningsGenerated EventKind = "learnings-generated"
	EventError              EventKind = "error"
)

// ProgressEvent describes one step of the research engine.
type ProgressEvent struct {
	Kind    EventKind
	Message string
	// Query is the SERP query the event refers to, or the expanded prompt for expansion events.
	Query   string
	Queries []SerpQuery
	Count   int
	// Depth is the remaining depth of the invocation that emitted the event.
	Depth int
	Err   error
}

// Progress receives engine events in production order.
type Progress func(ProgressEvent)

// ResearchRequest is the input of Engine.Research.
type ResearchRequest struct {
	Query       string
	Budget      Budget
	Learnings   []string
	VisitedURLs []string
}

// ReportRequest is the input of ReportWriter.Write.
type ReportRequest struct {
	Prompt      string
	Learnings   []string
	VisitedURLs []string
}
