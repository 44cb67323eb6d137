package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/server"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

var (
	query        string
	breadth      int
	depth        int
	modelID      string
	output       string
	skipFollowUp bool
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based deep research agent",
		Long:  `deep-research expands a question into search queries, reads the results, follows up on what it learned and writes a Markdown report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})
			slog.SetDefault(slog.New(handler))

			if modelID == "" {
				modelID = cfg.DefaultModel
			}
			if err := cfg.Validate(modelID); err != nil {
				return err
			}

			reader := bufio.NewReader(os.Stdin)
			if !cmd.Flags().Changed("query") {
				query = prompt(reader, "What would you like to research? ")
			}
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("query cannot be empty")
			}
			if !cmd.Flags().Changed("breadth") {
				breadth = promptInt(reader, fmt.Sprintf("Enter research breadth (recommended 2-10, default %d): ", breadth), breadth)
			}
			if !cmd.Flags().Changed("depth") {
				depth = promptInt(reader, fmt.Sprintf("Enter research depth (recommended 1-5, default %d): ", depth), depth)
			}

			return run(cmd.Context(), cfg, reader)
		},
	}

	rootCmd.Flags().StringVarP(&query, "query", "q", "", "The research question")
	rootCmd.Flags().IntVarP(&breadth, "breadth", "b", server.DefaultBreadth, "Search queries per level")
	rootCmd.Flags().IntVarP(&depth, "depth", "d", server.DefaultDepth, "Recursion levels")
	rootCmd.Flags().StringVarP(&modelID, "model", "m", "", "Generation model (default from DEFAULT_MODEL)")
	rootCmd.Flags().StringVarP(&output, "output", "o", "report.md", "File the report is written to")
	rootCmd.Flags().BoolVar(&skipFollowUp, "no-follow-up", false, "Skip the clarifying questions")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, reader *bufio.Reader) error {
	gen, err := server.LLMGeneratorFactory(cfg)(ctx, modelID)
	if err != nil {
		return err
	}
	searcher, err := server.NewSearcher(cfg)
	if err != nil {
		return err
	}
	trimmer := splitter.NewTrimmer(cfg.TokenizerModel)

	combined := query
	if !skipFollowUp {
		questions, err := research.GenerateFeedback(ctx, gen, query, server.DefaultNumQuestions)
		if err != nil {
			return err
		}
		if len(questions) > 0 {
			fmt.Println("\nTo better understand your research needs, please answer these follow-up questions:")
			answers := make([]string, len(questions))
			for i, q := range questions {
				answers[i] = prompt(reader, "\n"+q+"\nYour answer: ")
			}
			combined = combineQuery(query, questions, answers)
		}
	}

	slog.Info("Starting research", "breadth", breadth, "depth", depth, "model", modelID)

	engine := research.NewEngine(gen, searcher, trimmer, server.ResearchOptions(cfg))
	state, err := engine.Research(ctx, research.ResearchRequest{
		Query:  combined,
		Budget: research.Budget{Breadth: breadth, Depth: depth},
	}, logProgress)
	if err != nil {
		return err
	}

	fmt.Printf("\n\nLearnings:\n\n%s\n", strings.Join(state.Learnings, "\n"))
	fmt.Printf("\n\nVisited URLs (%d):\n\n%s\n", len(state.VisitedURLs), strings.Join(state.VisitedURLs, "\n"))

	writer := &research.ReportWriter{
		Generator:   gen,
		Trimmer:     trimmer,
		TokenBudget: engine.Options.ReportTokenBudget,
		Logger:      slog.Default(),
	}
	report, err := writer.Write(ctx, research.ReportRequest{
		Prompt:      combined,
		Learnings:   state.Learnings,
		VisitedURLs: state.VisitedURLs,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("\n\nFinal Report:\n\n%s\n", report)
	fmt.Printf("\nReport has been saved to %s\n", output)
	return nil
}

func combineQuery(initial string, questions, answers []string) string {
	var b strings.Builder
	b.WriteString("Initial Query: ")
	b.WriteString(initial)
	b.WriteString("\nFollow-up Questions and Answers:\n")
	for i, q := range questions {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s", q, answers[i])
	}
	return b.String()
}

func logProgress(ev research.ProgressEvent) {
	switch ev.Kind {
	case research.EventError:
		slog.Warn(ev.Message, "depth", ev.Depth)
	case research.EventQueriesCreated, research.EventLearningsGenerated, research.EventResultsFound:
		slog.Info(firstLine(ev.Message), "query", ev.Query, "count", ev.Count, "depth", ev.Depth)
	default:
		slog.Debug(firstLine(ev.Message), "query", ev.Query, "depth", ev.Depth)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func promptInt(reader *bufio.Reader, label string, def int) int {
	input := prompt(reader, label)
	if input == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(input, "%d", &n); err != nil || n < 1 {
		return def
	}
	return n
}
