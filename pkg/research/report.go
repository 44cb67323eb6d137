package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const defaultReportTitle = "# Research Report"

// ReportWriter synthesises the final Markdown report.
type ReportWriter struct {
	Generator   Generator
	Trimmer     Trimmer
	TokenBudget int
	Logger      *slog.Logger
}

// Write produces a Markdown document: a top-level heading, the synthesised
// body, then a "## Sources" section with one bullet per visited URL.
func (w *ReportWriter) Write(ctx context.Context, req ReportRequest) (string, error) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Compiling final report", "learnings", len(req.Learnings), "sources", len(req.VisitedURLs))

	wrapped := make([]string, len(req.Learnings))
	for i, l := range req.Learnings {
		wrapped[i] = "<learning>\n" + l + "\n</learning>"
	}
	learnings := w.Trimmer.Trim(strings.Join(wrapped, "\n"), w.TokenBudget)

	var resp struct {
		ReportMarkdown string `json:"reportMarkdown"`
	}
	if err := generate(ctx, w.Generator, systemPrompt(), reportPrompt(req.Prompt, learnings), reportSchema(), &resp); err != nil {
		return "", fmt.Errorf("report synthesis: %w", err)
	}

	report := formatReport(resp.ReportMarkdown, req.VisitedURLs)
	logger.Info("Final report generated", "length", len(report))
	return report, nil
}

func formatReport(body string, urls []string) string {
	body = strings.TrimSpace(body)

	var b strings.Builder
	if !strings.HasPrefix(body, "# ") {
		b.WriteString(defaultReportTitle)
		b.WriteString("\n\n")
	}
	b.WriteString(body)
	b.WriteString("\n\n## Sources\n\n")
	for i, u := range urls {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(u)
	}
	return b.String()
}
