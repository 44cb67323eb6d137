package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const mcpInstructions = `Deep research server.
Use generate_feedback to get clarifying questions for a topic, then call
deep_research with the refined query. deep_research runs for several minutes.`

type FeedbackArgs struct {
	Query        string `json:"query" jsonschema:"The research topic"`
	NumQuestions int    `json:"numQuestions,omitempty" jsonschema:"Maximum number of questions (default 3)"`
	ModelID      string `json:"modelId,omitempty" jsonschema:"Model used for generation"`
}

type FeedbackResult struct {
	Questions []string `json:"questions"`
}

type DeepResearchArgs struct {
	Query   string `json:"query" jsonschema:"The research topic, optionally with answered follow-up questions"`
	Breadth int    `json:"breadth,omitempty" jsonschema:"Number of search queries per level (default 3)"`
	Depth   int    `json:"depth,omitempty" jsonschema:"Number of recursion levels (default 2)"`
	ModelID string `json:"modelId,omitempty" jsonschema:"Model used for generation"`
}

type DeepResearchResult struct {
	RunID             string   `json:"runId"`
	FeedbackQuestions []string `json:"feedbackQuestions"`
	Learnings         []string `json:"learnings"`
	VisitedURLs       []string `json:"visitedUrls"`
	Report            string   `json:"report"`
}

// NewMCPServer exposes the feedback and research operations as MCP tools.
func NewMCPServer(s *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "deep-research",
		Version: "1.0.0",
	}, &mcp.ServerOptions{
		Instructions: mcpInstructions,
		Logger:       s.Logger,
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_feedback",
		Description: "Generate follow-up questions that clarify the direction of a research topic.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args FeedbackArgs) (*mcp.CallToolResult, FeedbackResult, error) {
		if strings.TrimSpace(args.Query) == "" {
			return nil, FeedbackResult{}, errors.New("query is required")
		}
		n := args.NumQuestions
		if n <= 0 {
			n = DefaultNumQuestions
		}
		if err := s.Cfg.ValidateModel(args.ModelID); err != nil {
			return nil, FeedbackResult{}, err
		}
		questions, err := s.Feedback(ctx, args.Query, n, args.ModelID)
		if err != nil {
			return nil, FeedbackResult{}, err
		}
		return nil, FeedbackResult{Questions: questions}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "deep_research",
		Description: "Research a topic recursively on the web and return the learnings, the visited sources and a Markdown report.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args DeepResearchArgs) (*mcp.CallToolResult, DeepResearchResult, error) {
		in := ResearchInput{
			Query:   strings.TrimSpace(args.Query),
			Breadth: args.Breadth,
			Depth:   args.Depth,
			ModelID: args.ModelID,
		}
		if in.Query == "" {
			return nil, DeepResearchResult{}, errors.New("query is required")
		}
		if in.Breadth <= 0 {
			in.Breadth = DefaultBreadth
		}
		if in.Depth <= 0 {
			in.Depth = DefaultDepth
		}
		if err := s.Cfg.Validate(in.ModelID); err != nil {
			return nil, DeepResearchResult{}, err
		}
		return s.collect(ctx, in)
	})

	return server
}

// collect drains a run and keeps its terminal frame.
func (s *Service) collect(ctx context.Context, in ResearchInput) (*mcp.CallToolResult, DeepResearchResult, error) {
	if in.RunID == uuid.Nil {
		in.RunID = uuid.New()
	}
	var out DeepResearchResult
	var runErr error
	for frame := range s.Run(ctx, in) {
		switch f := frame.(type) {
		case ResultFrame:
			out = DeepResearchResult{
				RunID:             in.RunID.String(),
				FeedbackQuestions: f.FeedbackQuestions,
				Learnings:         f.Learnings,
				VisitedURLs:       f.VisitedURLs,
				Report:            f.Report,
			}
		case ErrorFrame:
			runErr = fmt.Errorf("run %s: %s", in.RunID, f.Message)
		}
	}
	if runErr != nil {
		return nil, DeepResearchResult{}, runErr
	}
	return nil, out, nil
}

// NewMCPHandler serves the MCP server over streamable HTTP.
func NewMCPHandler(s *Service) http.Handler {
	server := NewMCPServer(s)
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		&mcp.StreamableHTTPOptions{
			SessionTimeout: 30 * time.Minute,
		},
	)
}
