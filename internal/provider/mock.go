package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrScriptExhausted is returned when a scripted provider runs out of steps
// and has no default step configured.
var ErrScriptExhausted = errors.New("scripted provider: no step matched")

// ScenarioStep defines a single scripted response. Trigger is an optional
// substring that must appear in the request (system prompt or any message)
// for the step to match; an empty trigger matches anything. Fail simulates
// a backend outage for the matching request.
type ScenarioStep struct {
	Trigger   string         `yaml:"trigger,omitempty"`
	Text      string         `yaml:"text,omitempty"`
	ToolCalls []ScenarioCall `yaml:"tool_calls,omitempty"`
	Fail      bool           `yaml:"fail,omitempty"`
}

// ScenarioCall defines a tool call the scripted provider will emit.
type ScenarioCall struct {
	Name string                 `yaml:"name"`
	Args map[string]interface{} `yaml:"args"`
}

// Scenario is a named sequence of scripted responses loaded from YAML.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// LoadScenario loads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %q: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %q: %w", path, err)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", path)
	}
	return &s, nil
}

// ScriptedProvider implements Provider with canned responses. It serves
// demo mode and tests without real API calls. Triggered steps are matched
// first; untriggered steps are consumed in order as a fallback.
type ScriptedProvider struct {
	mu       sync.Mutex
	steps    []ScenarioStep
	consumed map[int]bool
	requests int
}

// NewScriptedProvider creates a scripted provider from explicit steps.
func NewScriptedProvider(steps ...ScenarioStep) *ScriptedProvider {
	return &ScriptedProvider{steps: steps, consumed: make(map[int]bool)}
}

// NewScriptedProviderFromScenario creates a scripted provider from a loaded
// scenario.
func NewScriptedProviderFromScenario(s *Scenario) *ScriptedProvider {
	return NewScriptedProvider(s.Steps...)
}

// Complete implements Provider.Complete by replaying scripted steps.
func (p *ScriptedProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++

	haystack := strings.ToLower(req.SystemPrompt)
	for _, m := range req.Messages {
		haystack += "\n" + strings.ToLower(m.Content)
	}

	// Triggered steps win over positional ones.
	for i, step := range p.steps {
		if step.Trigger == "" || p.consumed[i] {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(step.Trigger)) {
			p.consumed[i] = true
			return p.render(step)
		}
	}
	for i, step := range p.steps {
		if step.Trigger != "" || p.consumed[i] {
			continue
		}
		p.consumed[i] = true
		return p.render(step)
	}
	return nil, ErrScriptExhausted
}

func (p *ScriptedProvider) render(step ScenarioStep) (*Response, error) {
	if step.Fail {
		return nil, errors.New("scripted provider: simulated backend failure")
	}
	resp := &Response{Content: step.Text, StopReason: StopReasonEndTurn}
	for i, call := range step.ToolCalls {
		args, err := json.Marshal(call.Args)
		if err != nil {
			return nil, fmt.Errorf("scripted tool call %q: %w", call.Name, err)
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolUseBlock{
			ID:    fmt.Sprintf("scripted-%d-%d", p.requests, i),
			Name:  call.Name,
			Input: args,
		})
	}
	if len(resp.ToolCalls) > 0 {
		resp.StopReason = StopReasonToolUse
	}
	return resp, nil
}

// Requests returns how many completions have been served.
func (p *ScriptedProvider) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// Name implements Provider.Name.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// FailingProvider implements Provider and always returns an error. It backs
// the fallback-determinism tests.
type FailingProvider struct{}

// Complete implements Provider.Complete by failing unconditionally.
func (FailingProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return nil, errors.New("completion backend unreachable")
}

// Name implements Provider.Name.
func (FailingProvider) Name() string { return "failing" }
