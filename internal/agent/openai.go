package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openAITimeout = 90 * time.Second

type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxTurns int
}

// OpenAIRunner runs a Definition on the chat-completions API, executing tool
// calls through the definition's registry until the model answers in text.
type OpenAIRunner struct {
	def      Definition
	client   openai.Client
	model    string
	maxTurns int
	log      *slog.Logger
}

var _ Runner = (*OpenAIRunner)(nil)

func NewOpenAIRunner(def Definition, cfg OpenAIConfig, logger *slog.Logger) *OpenAIRunner {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: openAITimeout}),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 6
	}
	return &OpenAIRunner{
		def:      def,
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		maxTurns: maxTurns,
		log:      logger,
	}
}

func (r *OpenAIRunner) Run(ctx context.Context, prompt string) (Result, error) {
	log := r.log.With("run_id", uuid.NewString(), "agent", r.def.Name)
	log.Info("run_start", "prompt_len", len(prompt))

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(r.def.Instructions),
			openai.UserMessage(prompt),
		},
		Tools: r.toolParams(),
	}

	for turn := 1; turn <= r.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			log.Warn("run_cancelled", "turn", turn, "error", err.Error())
			return Result{Turns: turn - 1}, err
		}

		start := time.Now()
		completion, err := r.client.Chat.Completions.New(ctx, params)
		if err != nil {
			log.Error("llm_call_error", "turn", turn, "error", err.Error())
			return Result{Turns: turn}, fmt.Errorf("chat completion (turn %d): %w", turn, err)
		}
		if len(completion.Choices) == 0 {
			return Result{Turns: turn}, fmt.Errorf("chat completion (turn %d): no choices", turn)
		}
		msg := completion.Choices[0].Message
		log.Debug("llm_call_done",
			"turn", turn,
			"duration_ms", time.Since(start).Milliseconds(),
			"tool_calls", len(msg.ToolCalls),
			"total_tokens", completion.Usage.TotalTokens,
		)

		if len(msg.ToolCalls) == 0 {
			out := strings.TrimSpace(msg.Content)
			if out == "" {
				return Result{Turns: turn}, ErrEmptyOutput
			}
			log.Info("run_done", "turns", turn, "output_len", len(out))
			return Result{FinalOutput: out, Turns: turn}, nil
		}

		params.Messages = append(params.Messages, msg.ToParam())
		for _, call := range msg.ToolCalls {
			out := r.callTool(ctx, log, call.Function.Name, call.Function.Arguments)
			params.Messages = append(params.Messages, openai.ToolMessage(out, call.ID))
		}
	}

	log.Warn("max_turns_reached", "max_turns", r.maxTurns)
	return Result{Turns: r.maxTurns}, ErrMaxTurns
}

func (r *OpenAIRunner) toolParams() []openai.ChatCompletionToolParam {
	if r.def.Tools == nil || r.def.Tools.Len() == 0 {
		return nil
	}
	all := r.def.Tools.All()
	out := make([]openai.ChatCompletionToolParam, 0, len(all))
	for _, t := range all {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name(),
				Description: openai.String(t.Description()),
				Parameters:  openai.FunctionParameters(t.ParameterSchema()),
			},
		})
	}
	return out
}

// callTool never fails the run: problems are reported back to the model as
// the tool's output.
func (r *OpenAIRunner) callTool(ctx context.Context, log *slog.Logger, name, args string) string {
	if r.def.Tools == nil {
		return "Error: unknown tool " + name
	}
	t, ok := r.def.Tools.Get(name)
	if !ok {
		log.Warn("tool_unknown", "tool", name)
		return "Error: unknown tool " + name
	}

	params := map[string]any{}
	if strings.TrimSpace(args) != "" {
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			log.Warn("tool_args_invalid", "tool", name, "error", err.Error())
			return fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
		}
	}

	start := time.Now()
	out, err := t.Execute(ctx, params)
	if err != nil {
		log.Warn("tool_error", "tool", name, "error", err.Error())
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "Error: tool call was cancelled."
		}
		return fmt.Sprintf("Error: %v", err)
	}
	log.Info("tool_done", "tool", name, "duration_ms", time.Since(start).Milliseconds(), "output_len", len(out))
	return out
}
