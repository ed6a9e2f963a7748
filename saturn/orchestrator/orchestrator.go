// Package orchestrator owns the turn loop: it drives the model through
// tool invocations until it yields a final answer, within a hard iteration
// bound. Termination is unconditional and independent of model behavior.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
	promptx "github.com/aisaturn/saturn-engine/saturn/prompt"
	toolx "github.com/aisaturn/saturn-engine/saturn/tool"
)

// MaxIterations caps model calls per Process run. On the last permitted
// iteration a system nudge biases the model toward a plain answer.
const MaxIterations = 8

const finalNudge = "Provide your final answer now."

type Option func(*Orchestrator)

// WithMaxIterations overrides the iteration cap (tests mostly).
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithClock overrides outcome timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator composes the model adapter and the tool registry for one
// agent. Construct one per invocation; the turn-loop context is created
// fresh in Process and never shared.
type Orchestrator struct {
	profile       *contractx.AgentProfile
	completions   contractx.CompletionService
	tools         []contractx.Tool
	maxIterations int
	now           func() time.Time
}

func New(
	profile *contractx.AgentProfile,
	completions contractx.CompletionService,
	tools []contractx.Tool,
	opts ...Option,
) (*Orchestrator, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if completions == nil {
		return nil, fmt.Errorf("%w: completion service is required", contractx.ErrValidation)
	}

	o := &Orchestrator{
		profile:       profile,
		completions:   completions,
		tools:         tools,
		maxIterations: MaxIterations,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// Process runs the turn loop for one inbound message. The returned outcome
// is always well-defined: final response, a surfaced action, or a failure
// paired with a non-nil error. Handoff and transfer tool calls end the
// turn; a contact-update action is carried alongside and the loop
// continues so the model can still produce a reply.
func (o *Orchestrator) Process(ctx context.Context, userInput string, convContext map[string]any) (contractx.Outcome, error) {
	runID := uuid.NewString()
	logger := log.With().
		Str("run_id", runID).
		Str("agent", o.profile.Name).
		Logger()

	systemPrompt, err := promptx.RenderSystem(o.profile, convContext)
	if err != nil {
		return o.failed(), err
	}

	history := []contractx.ChatMessage{
		{Role: contractx.RoleSystem, Content: systemPrompt},
		{Role: contractx.RoleUser, Content: userInput},
	}
	defs := toolx.Definitions(o.tools)

	var pending contractx.Outcome

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		if iteration == o.maxIterations-1 {
			history = append(history, contractx.ChatMessage{
				Role:    contractx.RoleSystem,
				Content: finalNudge,
			})
		}

		completion, err := o.completions.GenerateCompletion(ctx, history, defs)
		if err != nil {
			logger.Error().Err(err).Int("iteration", iteration).Msg("model call failed")
			return o.failed(), err
		}

		if completion.ToolCall == nil {
			out := o.final(completion.Content)
			out.Action = pending.Action
			out.Payload = pending.Payload
			return out, nil
		}

		tc := *completion.ToolCall
		logger.Debug().Int("iteration", iteration).Str("tool", tc.Name).Msg("executing tool")

		history = append(history, contractx.ChatMessage{
			Role:      contractx.RoleAssistant,
			ToolCalls: []contractx.ToolCall{tc},
		})

		result := o.executeTool(ctx, tc)
		history = append(history, contractx.ChatMessage{
			Role:       contractx.RoleTool,
			ToolCallID: tc.ID,
			Content:    encodeResult(result),
		})

		switch result.Action {
		case contractx.ActionHandoff, contractx.ActionAgentTransfer:
			out := o.final(result.Payload.Message)
			out.Action = result.Action
			out.Payload = result.Payload
			carryContact(&out.Payload, pending.Payload)
			return out, nil
		case contractx.ActionUpdateContact:
			pending.Action = result.Action
			pending.Payload = result.Payload
		}
	}

	// Bound exhausted: degraded but well-defined. Whatever content the last
	// entry carries (possibly empty) is the answer.
	logger.Warn().Int("max_iterations", o.maxIterations).Msg("iteration bound exhausted")
	out := o.final(history[len(history)-1].Content)
	out.Action = pending.Action
	out.Payload = pending.Payload
	return out, nil
}

// executeTool runs the matching tool and converts every failure mode into
// a structured result the model sees as ordinary tool output.
func (o *Orchestrator) executeTool(ctx context.Context, tc contractx.ToolCall) (result contractx.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = contractx.ToolResult{
				Tool:    tc.Name,
				Success: false,
				Error:   fmt.Sprintf("Tool execution failed: %v", r),
			}
		}
	}()

	t := toolx.Find(o.tools, tc.Name)
	if t == nil {
		return contractx.ToolResult{
			Tool:    tc.Name,
			Success: false,
			Error:   "Tool not found: " + tc.Name,
		}
	}

	args := map[string]any{}
	if len(tc.Arguments) > 0 {
		if err := json.Unmarshal(tc.Arguments, &args); err != nil {
			return contractx.ToolResult{
				Tool:    tc.Name,
				Success: false,
				Error:   "Tool execution failed: invalid arguments: " + err.Error(),
			}
		}
	}

	return t.Execute(ctx, args)
}

// carryContact keeps contact fields captured earlier in the turn when a
// routing action ends it, so the mutation is never lost.
func carryContact(dst *contractx.ActionPayload, pending contractx.ActionPayload) {
	if dst.Email == "" {
		dst.Email = pending.Email
	}
	if dst.PhoneNumber == "" {
		dst.PhoneNumber = pending.PhoneNumber
	}
}

func encodeResult(result contractx.ToolResult) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return `{"success":false,"error":"unencodable tool result"}`
	}
	return string(raw)
}

func (o *Orchestrator) final(content string) contractx.Outcome {
	return contractx.Outcome{
		Success:   true,
		Response:  content,
		AgentName: o.profile.Name,
		Timestamp: o.now(),
	}
}

func (o *Orchestrator) failed() contractx.Outcome {
	return contractx.Outcome{
		Success:   false,
		AgentName: o.profile.Name,
		Timestamp: o.now(),
	}
}
