package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/tools"
)

// Defaults of a research request.
const (
	DefaultBreadth      = 3
	DefaultDepth        = 2
	DefaultNumQuestions = 3
)

// ErrNoRunStore is returned by run lookups when no database is configured.
var ErrNoRunStore = errors.New("run store not configured")

// RunStore records runs and their logs.
type RunStore interface {
	LogSink
	CreateRun(ctx context.Context, run database.Run) error
	FinishRun(ctx context.Context, id uuid.UUID, status, report string) error
	GetRun(ctx context.Context, id uuid.UUID) (*database.Run, error)
	RunLogs(ctx context.Context, runID uuid.UUID) ([]database.LogEntry, error)
}

// GeneratorFactory builds the generator of a model id.
type GeneratorFactory func(ctx context.Context, modelID string) (research.Generator, error)

type Service struct {
	Cfg          *config.Config
	Store        RunStore // nil disables run records
	Searcher     research.Searcher
	Trimmer      research.Trimmer
	NewGenerator GeneratorFactory
	Logger       *slog.Logger
}

func NewService(cfg *config.Config, store RunStore, searcher research.Searcher, trimmer research.Trimmer) *Service {
	return &Service{
		Cfg:          cfg,
		Store:        store,
		Searcher:     searcher,
		Trimmer:      trimmer,
		NewGenerator: LLMGeneratorFactory(cfg),
		Logger:       slog.Default(),
	}
}

// LLMGeneratorFactory builds generators backed by the configured providers.
func LLMGeneratorFactory(cfg *config.Config) GeneratorFactory {
	return func(ctx context.Context, modelID string) (research.Generator, error) {
		llm, err := clients.NewLLM(ctx, modelID, cfg.Credentials())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		return clients.NewGenerator(llm, cfg.GenerationRetries), nil
	}
}

// NewSearcher builds the search provider selected by cfg.
func NewSearcher(cfg *config.Config) (research.Searcher, error) {
	switch cfg.SearchProvider {
	case config.SearchProviderFirecrawl:
		return tools.NewFirecrawl(cfg.FirecrawlApiKey, cfg.FirecrawlBaseURL), nil
	case config.SearchProviderBrave:
		return tools.NewBrave(cfg.BraveApiKey), nil
	case config.SearchProviderArxiv:
		return tools.NewArxiv(), nil
	}
	return nil, fmt.Errorf("%w: unknown search provider %q", config.ErrConfiguration, cfg.SearchProvider)
}

// ResearchOptions maps the configuration onto engine options.
func ResearchOptions(cfg *config.Config) research.Options {
	return research.Options{
		SearchTimeout:       cfg.SearchTimeout,
		SearchLimit:         cfg.SearchLimit,
		ExtractionTimeout:   cfg.ExtractionTimeout,
		DocumentTokenBudget: cfg.DocumentTokenBudget,
		ReportTokenBudget:   cfg.ReportTokenBudget,
		Concurrency:         cfg.Concurrency,
	}
}

// ResearchInput is a validated research request.
type ResearchInput struct {
	RunID   uuid.UUID
	Query   string
	Breadth int
	Depth   int
	ModelID string
}

func (s *Service) modelID(id string) string {
	if id == "" {
		return s.Cfg.DefaultModel
	}
	return id
}

// Feedback returns up to numQuestions clarifying questions for query.
func (s *Service) Feedback(ctx context.Context, query string, numQuestions int, modelID string) ([]string, error) {
	gen, err := s.NewGenerator(ctx, s.modelID(modelID))
	if err != nil {
		return nil, err
	}
	return research.GenerateFeedback(ctx, gen, query, numQuestions)
}

// Run executes the full pipeline and streams its frames: progress frames
// followed by exactly one result or error frame. The pipeline always runs to
// completion; frames are dropped once the consumer stops iterating.
func (s *Service) Run(ctx context.Context, in ResearchInput) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		frames := make(chan Frame, 16)
		go func() {
			defer close(frames)
			s.run(ctx, in, func(f Frame) { frames <- f })
		}()

		open := true
		for f := range frames {
			if open && !yield(f) {
				open = false
			}
		}
	}
}

func (s *Service) run(ctx context.Context, in ResearchInput, send func(Frame)) {
	if in.RunID == uuid.Nil {
		in.RunID = uuid.New()
	}
	in.ModelID = s.modelID(in.ModelID)

	if s.Cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Cfg.MaxDuration)
		defer cancel()
	}

	var sink LogSink
	recorded := s.recordRun(ctx, in)
	if recorded {
		sink = s.Store
	}
	logger := runLogger(s.Logger, sink, in.RunID)

	state, questions, report, err := s.pipeline(ctx, in, logger, send)
	if err != nil {
		logger.Error("Research failed", "error", err)
		if recorded {
			s.finishRun(in.RunID, database.RunFailed, "", logger)
		}
		send(newErrorFrame("Research failed: " + err.Error()))
		return
	}

	logger.Info("Research finished", "learnings", len(state.Learnings), "sources", len(state.VisitedURLs))
	if recorded {
		s.finishRun(in.RunID, database.RunCompleted, report, logger)
	}
	send(newResultFrame(questions, state, report))
}

func (s *Service) pipeline(ctx context.Context, in ResearchInput, logger *slog.Logger, send func(Frame)) (research.State, []string, string, error) {
	if strings.TrimSpace(in.Query) == "" {
		return research.State{}, nil, "", errors.New("query is required")
	}

	gen, err := s.NewGenerator(ctx, in.ModelID)
	if err != nil {
		return research.State{}, nil, "", err
	}

	logger.Info("Generating feedback questions", "query", in.Query, "model", in.ModelID)
	questions, err := research.GenerateFeedback(ctx, gen, in.Query, DefaultNumQuestions)
	if err != nil {
		return research.State{}, nil, "", err
	}
	send(newProgressFrame(StepQuery, "Generated feedback questions", nil))

	engine := research.NewEngine(gen, s.Searcher, s.Trimmer, ResearchOptions(s.Cfg))
	engine.Logger = logger
	state, err := engine.Research(ctx, research.ResearchRequest{
		Query:  in.Query,
		Budget: research.Budget{Breadth: in.Breadth, Depth: in.Depth},
	}, func(ev research.ProgressEvent) {
		send(engineFrame(ev))
	})
	if err != nil {
		return research.State{}, nil, "", err
	}

	send(newProgressFrame(StepReport, "Writing final report", nil))
	writer := &research.ReportWriter{
		Generator:   gen,
		Trimmer:     s.Trimmer,
		TokenBudget: engine.Options.ReportTokenBudget,
		Logger:      logger,
	}
	report, err := writer.Write(ctx, research.ReportRequest{
		Prompt:      in.Query,
		Learnings:   state.Learnings,
		VisitedURLs: state.VisitedURLs,
	})
	if err != nil {
		return research.State{}, nil, "", err
	}
	return state, questions, report, nil
}

// recordRun reports whether the run row exists, which log records reference.
func (s *Service) recordRun(ctx context.Context, in ResearchInput) bool {
	if s.Store == nil {
		return false
	}
	err := s.Store.CreateRun(ctx, database.Run{
		ID:      in.RunID,
		Query:   in.Query,
		Model:   in.ModelID,
		Breadth: in.Breadth,
		Depth:   in.Depth,
	})
	if err != nil {
		s.Logger.Warn("Failed to record run", "run_id", in.RunID, "error", err)
		return false
	}
	return true
}

func (s *Service) finishRun(id uuid.UUID, status, report string, logger *slog.Logger) {
	if err := s.Store.FinishRun(context.Background(), id, status, report); err != nil {
		logger.Warn("Failed to update run", "status", status, "error", err)
	}
}

// RunLogs returns the persisted log records of a run. Unknown runs yield
// database.ErrRunNotFound.
func (s *Service) RunLogs(ctx context.Context, id uuid.UUID) ([]database.LogEntry, error) {
	if s.Store == nil {
		return nil, ErrNoRunStore
	}
	if _, err := s.Store.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.RunLogs(ctx, id)
}
