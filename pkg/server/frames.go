package server

import (
	"github.com/mikeboe/deep-research/pkg/research"
)

// Step types of progress frames.
const (
	StepQuery    = "query"
	StepResearch = "research"
	StepLearning = "learning"
	StepReport   = "report"
)

// Frame is one message of the research stream.
type Frame interface {
	FrameType() string
}

type Step struct {
	Type    string               `json:"type"`
	Content string               `json:"content"`
	Queries []research.SerpQuery `json:"queries,omitempty"`
}

type ProgressFrame struct {
	Type string `json:"type"`
	Step Step   `json:"step"`
}

type ResultFrame struct {
	Type              string   `json:"type"`
	FeedbackQuestions []string `json:"feedbackQuestions"`
	Learnings         []string `json:"learnings"`
	VisitedURLs       []string `json:"visitedUrls"`
	Report            string   `json:"report"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (ProgressFrame) FrameType() string { return "progress" }
func (ResultFrame) FrameType() string   { return "result" }
func (ErrorFrame) FrameType() string    { return "error" }

func newProgressFrame(stepType, content string, queries []research.SerpQuery) ProgressFrame {
	return ProgressFrame{Type: "progress", Step: Step{Type: stepType, Content: content, Queries: queries}}
}

func newErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: "error", Message: message}
}

func newResultFrame(questions []string, state research.State, report string) ResultFrame {
	return ResultFrame{
		Type:              "result",
		FeedbackQuestions: nonNil(questions),
		Learnings:         nonNil(state.Learnings),
		VisitedURLs:       nonNil(state.VisitedURLs),
		Report:            report,
	}
}

// engineFrame maps an engine event to its wire representation.
func engineFrame(ev research.ProgressEvent) ProgressFrame {
	switch ev.Kind {
	case research.EventExpansionStarted, research.EventQueriesCreated:
		return newProgressFrame(StepQuery, ev.Message, ev.Queries)
	case research.EventLearningsGenerated:
		return newProgressFrame(StepLearning, ev.Message, nil)
	default:
		return newProgressFrame(StepResearch, ev.Message, nil)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
