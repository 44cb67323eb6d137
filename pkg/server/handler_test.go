package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(s).RegisterRoutes(r)
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// sseFrames decodes every "data:" event of a recorded stream.
func sseFrames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected line %q", line)
		var f map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f))
		frames = append(frames, f)
	}
	return frames
}

func TestHealth(t *testing.T) {
	r := newTestRouter(newTestService(&stubGenerator{}, nil))

	w := doJSON(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListModels(t *testing.T) {
	r := newTestRouter(newTestService(&stubGenerator{}, nil))

	w := doJSON(r, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Models []struct {
			ID string `json:"id"`
		} `json:"models"`
		Default string `json:"default"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "o3-mini", body.Default)
	assert.NotEmpty(t, body.Models)
}

func TestResearchStreamsFrames(t *testing.T) {
	gen := &stubGenerator{questions: []string{"Which era?"}, learnings: 2}
	r := newTestRouter(newTestService(gen, nil))

	w := doJSON(r, http.MethodPost, "/api/research", `{"query":"History of the Suez Canal","breadth":2,"depth":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	_, err := uuid.Parse(w.Header().Get("X-Run-Id"))
	assert.NoError(t, err)

	frames := sseFrames(t, w.Body.String())
	require.GreaterOrEqual(t, len(frames), 2)

	assert.Equal(t, "progress", frames[0]["type"])
	last := frames[len(frames)-1]
	assert.Equal(t, "result", last["type"])
	assert.Equal(t, []any{"Which era?"}, last["feedbackQuestions"])
	assert.Len(t, last["visitedUrls"], 4)
	assert.NotEmpty(t, last["report"])

	for _, f := range frames[:len(frames)-1] {
		assert.Equal(t, "progress", f["type"])
	}
}

func TestResearchStreamsErrorFrame(t *testing.T) {
	r := newTestRouter(newTestService(&stubGenerator{feedbackErr: errors.New("provider down")}, nil))

	w := doJSON(r, http.MethodPost, "/api/research", `{"query":"q"}`)
	require.Equal(t, http.StatusOK, w.Code)

	frames := sseFrames(t, w.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["type"])
	assert.Contains(t, frames[0]["message"], "provider down")
}

func TestResearchValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Service)
		body   string
		want   int
	}{
		{"Empty query", nil, `{"query":"  "}`, http.StatusBadRequest},
		{"Zero breadth", nil, `{"query":"q","breadth":0}`, http.StatusBadRequest},
		{"Negative depth", nil, `{"query":"q","depth":-1}`, http.StatusBadRequest},
		{"Malformed body", nil, `{"query":`, http.StatusBadRequest},
		{"Unknown model", nil, `{"query":"q","modelId":"gpt-9"}`, http.StatusBadRequest},
		{"Missing model key", func(s *Service) { s.Cfg.OpenAIApiKey = "" }, `{"query":"q"}`, http.StatusUnauthorized},
		{"Missing search key", func(s *Service) { s.Cfg.FirecrawlApiKey = "" }, `{"query":"q"}`, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(&stubGenerator{}, nil)
			if tt.mutate != nil {
				tt.mutate(s)
			}
			w := doJSON(newTestRouter(s), http.MethodPost, "/api/research", tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestResearchRequestDefaults(t *testing.T) {
	in, err := (&ResearchRequest{Query: " suez "}).Validate()
	require.NoError(t, err)
	assert.Equal(t, ResearchInput{Query: "suez", Breadth: DefaultBreadth, Depth: DefaultDepth}, in)
}

func TestFeedbackEndpoint(t *testing.T) {
	gen := &stubGenerator{questions: []string{"a?", "b?", "c?", "d?"}}
	r := newTestRouter(newTestService(gen, nil))

	w := doJSON(r, http.MethodPost, "/api/feedback", `{"query":"suez canal","numQuestions":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"questions":["a?","b?"]}`, w.Body.String())
}

func TestFeedbackEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		gen    *stubGenerator
		mutate func(*Service)
		body   string
		want   int
	}{
		{"Empty query", &stubGenerator{}, nil, `{"query":""}`, http.StatusBadRequest},
		{"Negative count", &stubGenerator{}, nil, `{"query":"q","numQuestions":-1}`, http.StatusBadRequest},
		{"Missing model key", &stubGenerator{}, func(s *Service) { s.Cfg.OpenAIApiKey = "" }, `{"query":"q"}`, http.StatusUnauthorized},
		{"Generation failure", &stubGenerator{feedbackErr: errors.New("quota")}, nil, `{"query":"q"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(tt.gen, nil)
			if tt.mutate != nil {
				tt.mutate(s)
			}
			w := doJSON(newTestRouter(s), http.MethodPost, "/api/feedback", tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestFeedbackFailureDetails(t *testing.T) {
	r := newTestRouter(newTestService(&stubGenerator{feedbackErr: errors.New("quota exceeded")}, nil))

	w := doJSON(r, http.MethodPost, "/api/feedback", `{"query":"q"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Failed to generate feedback", body["error"])
	assert.Contains(t, body["details"], "quota exceeded")
}

func TestRunLogsEndpoint(t *testing.T) {
	t.Run("Without store", func(t *testing.T) {
		r := newTestRouter(newTestService(&stubGenerator{}, nil))
		w := doJSON(r, http.MethodGet, "/api/research/"+uuid.NewString()+"/logs", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Invalid id", func(t *testing.T) {
		r := newTestRouter(newTestService(&stubGenerator{}, newMemStore()))
		w := doJSON(r, http.MethodGet, "/api/research/not-a-uuid/logs", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Unknown run", func(t *testing.T) {
		r := newTestRouter(newTestService(&stubGenerator{}, newMemStore()))
		w := doJSON(r, http.MethodGet, "/api/research/"+uuid.NewString()+"/logs", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "run not found")
	})

	t.Run("After a run", func(t *testing.T) {
		store := newMemStore()
		r := newTestRouter(newTestService(&stubGenerator{learnings: 1}, store))

		w := doJSON(r, http.MethodPost, "/api/research", `{"query":"q","breadth":1,"depth":1}`)
		require.Equal(t, http.StatusOK, w.Code)
		runID := w.Header().Get("X-Run-Id")

		w = doJSON(r, http.MethodGet, "/api/research/"+runID+"/logs", "")
		require.Equal(t, http.StatusOK, w.Code)

		var logs []struct {
			RunID   string `json:"run_id"`
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
		require.NotEmpty(t, logs)

		var messages []string
		for _, l := range logs {
			messages = append(messages, l.Message)
		}
		assert.Contains(t, messages, "Research finished")
	})
}
