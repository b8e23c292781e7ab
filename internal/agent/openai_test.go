package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojf/weatherbot/internal/logutil"
	"github.com/lojf/weatherbot/internal/tools"
)

type stubTool struct {
	mu    sync.Mutex
	calls []map[string]any
}

func (s *stubTool) Name() string        { return tools.WeatherToolName }
func (s *stubTool) Description() string { return "stub weather" }
func (s *stubTool) ParameterSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{"city": map[string]any{"type": "string"}}}
}
func (s *stubTool) Execute(_ context.Context, params map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, params)
	return "Weather in Paris: Clear sky.", nil
}

func completion(message string) string {
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
	"choices":[{"index":0,"finish_reason":"stop","message":` + message + `}],
	"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`
}

const toolCallMessage = `{"role":"assistant","content":null,"tool_calls":[
  {"id":"call_1","type":"function","function":{"name":"fetch_weather","arguments":"{\"city\":\"Paris\"}"}}]}`

// fakeOpenAI replays the given completions in order and records request bodies.
func fakeOpenAI(t *testing.T, responses ...string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var (
		mu     sync.Mutex
		bodies []map[string]any
		n      int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(b, &body)

		mu.Lock()
		bodies = append(bodies, body)
		i := n
		n++
		mu.Unlock()

		if i >= len(responses) {
			http.Error(w, `{"error":{"message":"unexpected call"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, responses[i])
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

func newTestRunner(srvURL string, reg *tools.Registry, maxTurns int) *OpenAIRunner {
	return NewOpenAIRunner(WeatherAgent(reg), OpenAIConfig{
		APIKey:   "test-key",
		BaseURL:  srvURL + "/v1/",
		Model:    "gpt-4o-mini",
		MaxTurns: maxTurns,
	}, logutil.Discard())
}

func TestOpenAIRunner_DirectAnswer(t *testing.T) {
	srv, bodies := fakeOpenAI(t, completion(`{"role":"assistant","content":"  Hello there!  "}`))
	r := newTestRunner(srv.URL, tools.NewRegistry(&stubTool{}), 3)

	res, err := r.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", res.FinalOutput)
	assert.Equal(t, 1, res.Turns)

	require.Len(t, *bodies, 1)
	req := (*bodies)[0]
	assert.Equal(t, "gpt-4o-mini", req["model"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, weatherInstructions, msgs[0].(map[string]any)["content"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	toolsSent := req["tools"].([]any)
	require.Len(t, toolsSent, 1)
	fn := toolsSent[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "fetch_weather", fn["name"])
}

func TestOpenAIRunner_ExecutesToolCalls(t *testing.T) {
	srv, bodies := fakeOpenAI(t,
		completion(toolCallMessage),
		completion(`{"role":"assistant","content":"It's clear in Paris."}`),
	)
	tool := &stubTool{}
	r := newTestRunner(srv.URL, tools.NewRegistry(tool), 3)

	res, err := r.Run(context.Background(), "weather in paris?")
	require.NoError(t, err)
	assert.Equal(t, "It's clear in Paris.", res.FinalOutput)
	assert.Equal(t, 2, res.Turns)

	require.Len(t, tool.calls, 1)
	assert.Equal(t, "Paris", tool.calls[0]["city"])

	require.Len(t, *bodies, 2)
	msgs := (*bodies)[1]["messages"].([]any)
	require.Len(t, msgs, 4)
	toolMsg := msgs[3].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
	assert.Equal(t, "Weather in Paris: Clear sky.", toolMsg["content"])
}

func TestOpenAIRunner_UnknownToolIsReportedToModel(t *testing.T) {
	srv, bodies := fakeOpenAI(t,
		completion(toolCallMessage),
		completion(`{"role":"assistant","content":"Sorry, I can't check that."}`),
	)
	r := newTestRunner(srv.URL, tools.NewRegistry(), 3)

	res, err := r.Run(context.Background(), "weather?")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I can't check that.", res.FinalOutput)

	msgs := (*bodies)[1]["messages"].([]any)
	assert.Equal(t, "Error: unknown tool fetch_weather", msgs[3].(map[string]any)["content"])
}

func TestOpenAIRunner_MaxTurns(t *testing.T) {
	srv, _ := fakeOpenAI(t, completion(toolCallMessage), completion(toolCallMessage))
	r := newTestRunner(srv.URL, tools.NewRegistry(&stubTool{}), 2)

	_, err := r.Run(context.Background(), "loop")
	assert.ErrorIs(t, err, ErrMaxTurns)
}

func TestOpenAIRunner_EmptyAnswer(t *testing.T) {
	srv, _ := fakeOpenAI(t, completion(`{"role":"assistant","content":""}`))
	r := newTestRunner(srv.URL, tools.NewRegistry(), 2)

	_, err := r.Run(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmptyOutput)
}

func TestOpenAIRunner_UpstreamError(t *testing.T) {
	srv, _ := fakeOpenAI(t)
	r := newTestRunner(srv.URL, tools.NewRegistry(), 2)

	_, err := r.Run(context.Background(), "hi")
	assert.Error(t, err)
}

func TestFuncRunner(t *testing.T) {
	var got string
	r := FuncRunner(func(_ context.Context, prompt string) (Result, error) {
		got = prompt
		return Result{FinalOutput: "ok", Turns: 1}, nil
	})

	res, err := r.Run(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", got)
	assert.Equal(t, "ok", res.FinalOutput)
}
