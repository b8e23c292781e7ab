package agent

import (
	"context"
	"errors"

	"github.com/lojf/weatherbot/internal/tools"
)

var (
	ErrMaxTurns    = errors.New("agent: turn limit reached before a final answer")
	ErrEmptyOutput = errors.New("agent: model returned an empty answer")
)

// Definition binds a name, instructions and tools. It has no behaviour of its
// own; a Runner executes it.
type Definition struct {
	Name         string
	Instructions string
	Tools        *tools.Registry
}

const weatherInstructions = "You are a helpful assistant that provides weather information. " +
	"When users ask about weather in a specific city, use the fetch_weather tool. " +
	"Be friendly and conversational in your responses."

// WeatherAgent is the assistant the webhook talks to.
func WeatherAgent(reg *tools.Registry) Definition {
	return Definition{
		Name:         "Weather Agent",
		Instructions: weatherInstructions,
		Tools:        reg,
	}
}

type Result struct {
	FinalOutput string
	Turns       int
}

// Runner executes an agent against a single user prompt.
type Runner interface {
	Run(ctx context.Context, prompt string) (Result, error)
}

// FuncRunner adapts a plain function to Runner.
type FuncRunner func(ctx context.Context, prompt string) (Result, error)

func (f FuncRunner) Run(ctx context.Context, prompt string) (Result, error) {
	return f(ctx, prompt)
}
