package research

import (
	"fmt"
	"strings"
	"time"
)

func systemPrompt() string {
	return fmt.Sprintf(`You are an expert researcher. Today is %s. Follow these instructions when responding:
- You may be asked about events after your knowledge cutoff; when the user presents news, assume it is correct.
- The user is an experienced analyst. Do not simplify; be as detailed as possible and make sure your response is correct.
- Be highly organized, accurate and thorough.
- Suggest solutions and angles the user may not have considered, including new technologies and contrarian ideas.
- Prefer strong evidence and good arguments over the authority of a source.
- Speculation and prediction are allowed but must be flagged as such.`, time.Now().UTC().Format("2006-01-02"))
}

const feedbackInstruction = `

When asked for follow-up questions, ask clarifying questions that determine the research direction.
Each question must be relevant to the query, go deep rather than wide, be concise, must not be answerable
with a plain yes or no, and must not overlap with the other questions.`

func feedbackPrompt(query string, numQuestions int) string {
	return fmt.Sprintf(`Given the following query from the user, ask some follow up questions to clarify the research direction. Return a maximum of %d questions, but feel free to return less if the original query is clear: <query>%s</query>`,
		numQuestions, query)
}

func feedbackSchema(numQuestions int) string {
	return responseFormat(fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "questions": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Follow up questions to clarify the research direction, max of %d"
    }
  },
  "required": ["questions"]
}`, numQuestions))
}

func serpQueriesPrompt(query string, numQueries int, learnings []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Given the following prompt from the user, generate a list of SERP queries to research the topic. Return a maximum of %d queries, but feel free to return less if the original prompt is clear. Make sure each query is unique and not similar to each other: <prompt>%s</prompt>`,
		numQueries, query)
	if len(learnings) > 0 {
		b.WriteString("\n\nHere are some learnings from previous research, use them to generate more specific queries: ")
		b.WriteString(strings.Join(learnings, "\n"))
	}
	return b.String()
}

func serpQueriesSchema(numQueries int) string {
	return responseFormat(fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "description": "List of SERP queries, max of %d",
      "items": {
        "type": "object",
        "properties": {
          "query": {"type": "string", "description": "The SERP query"},
          "researchGoal": {
            "type": "string",
            "description": "First describe the goal this query is meant to accomplish, then how to advance the research once results are found, naming further research directions as specifically as possible"
          }
        },
        "required": ["query", "researchGoal"]
      }
    }
  },
  "required": ["queries"]
}`, numQueries))
}

func extractionPrompt(query string, contents []string, numLearnings int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Given the following contents from a SERP search for the query <query>%s</query>, generate a list of learnings from the contents. Return a maximum of %d learnings, but feel free to return less if the contents are clear. Make sure each learning is unique and not similar to each other. The learnings should be concise and to the point, as detailed and information dense as possible. Make sure to include any entities like people, places, companies, products, things, etc in the learnings, as well as any exact metrics, numbers, or dates. The learnings will be used to research the topic further.`,
		query, numLearnings)
	b.WriteString("\n\n<contents>")
	for i, c := range contents {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("<content>\n")
		b.WriteString(c)
		b.WriteString("\n</content>")
	}
	b.WriteString("</contents>")
	return b.String()
}

func extractionSchema(numLearnings, numFollowUps int) string {
	return responseFormat(fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "learnings": {
      "type": "array",
      "items": {"type": "string"},
      "description": "List of learnings, max of %d"
    },
    "followUpQuestions": {
      "type": "array",
      "items": {"type": "string"},
      "description": "List of follow-up questions to research the topic further, max of %d"
    }
  },
  "required": ["learnings", "followUpQuestions"]
}`, numLearnings, numFollowUps))
}

func reportPrompt(prompt, learnings string) string {
	return fmt.Sprintf(`Given the following prompt from the user, write a final report on the topic using the learnings from research and format it in proper Markdown. Use Markdown syntax (headings, lists, horizontal rules, etc.) to structure the document. Aim for a detailed report of at least 3 pages.

<prompt>%s</prompt>

Here are all the learnings from previous research:

<learnings>
%s
</learnings>`, prompt, learnings)
}

func reportSchema() string {
	return responseFormat(`{
  "type": "object",
  "properties": {
    "reportMarkdown": {"type": "string", "description": "Final report on the topic in Markdown"}
  },
  "required": ["reportMarkdown"]
}`)
}

func responseFormat(schema string) string {
	return "Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:" + schema
}

// followUpQuery builds the prompt of a recursive call from the parent query's
// research goal and the follow-up questions its results produced.
func followUpQuery(q SerpQuery, followUps []string) string {
	var b strings.Builder
	b.WriteString("Previous research goal: ")
	b.WriteString(q.ResearchGoal)
	b.WriteString("\nFollow-up research directions: ")
	for _, f := range followUps {
		b.WriteString("\n")
		b.WriteString(f)
	}
	return strings.TrimSpace(b.String())
}
