package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

type fakeCompletions struct {
	script    []contractx.Completion
	err       error
	calls     int
	histories [][]contractx.ChatMessage
}

func (f *fakeCompletions) GenerateCompletion(ctx context.Context, history []contractx.ChatMessage, tools []contractx.ToolDefinition) (contractx.Completion, error) {
	f.calls++
	f.histories = append(f.histories, append([]contractx.ChatMessage(nil), history...))
	if f.err != nil {
		return contractx.Completion{}, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return f.script[idx], nil
}

type fakeTool struct {
	name   string
	result contractx.ToolResult
	panics bool
	calls  int
	args   []map[string]any
}

func (f *fakeTool) Name() string               { return f.name }
func (f *fakeTool) Description() string        { return "fake " + f.name }
func (f *fakeTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (f *fakeTool) Execute(_ context.Context, args map[string]any) contractx.ToolResult {
	f.calls++
	f.args = append(f.args, args)
	if f.panics {
		panic("boom")
	}
	return f.result
}

func testProfile() *contractx.AgentProfile {
	return &contractx.AgentProfile{
		ID:          7,
		Name:        "Ava",
		Temperature: 0.7,
		Enabled:     true,
	}
}

func call(name, args string) *contractx.ToolCall {
	return &contractx.ToolCall{
		ID:        "call_1",
		Name:      name,
		Arguments: json.RawMessage(args),
	}
}

func newTestOrchestrator(t *testing.T, completions contractx.CompletionService, tools []contractx.Tool, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(testProfile(), completions, tools, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestNewRejectsInvalidProfile(t *testing.T) {
	t.Parallel()

	_, err := New(&contractx.AgentProfile{Name: " "}, &fakeCompletions{}, nil)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	_, err = New(testProfile(), nil, nil)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for nil completions, got %v", err)
	}
}

func TestProcessFinalAnswer(t *testing.T) {
	t.Parallel()

	completions := &fakeCompletions{
		script: []contractx.Completion{{Content: "Hello! How can I help?"}},
	}
	o := newTestOrchestrator(t, completions, nil)

	out, err := o.Process(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !out.Success || out.Response != "Hello! How can I help?" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.AgentName != "Ava" {
		t.Fatalf("unexpected agent name: %q", out.AgentName)
	}
	if completions.calls != 1 {
		t.Fatalf("expected one model call, got %d", completions.calls)
	}

	history := completions.histories[0]
	if len(history) != 2 {
		t.Fatalf("expected system+user history, got %d entries", len(history))
	}
	if history[0].Role != contractx.RoleSystem || history[1].Role != contractx.RoleUser {
		t.Fatalf("unexpected history roles: %v %v", history[0].Role, history[1].Role)
	}
	if history[1].Content != "hi" {
		t.Fatalf("unexpected user entry: %q", history[1].Content)
	}
}

func TestProcessToolCallThenAnswer(t *testing.T) {
	t.Parallel()

	search := &fakeTool{
		name: "search_knowledge_base",
		result: contractx.ToolResult{
			Tool:    "search_knowledge_base",
			Success: true,
			Result:  map[string]any{"count": 1},
		},
	}
	completions := &fakeCompletions{
		script: []contractx.Completion{
			{ToolCall: call("search_knowledge_base", `{"query":"refunds"}`)},
			{Content: "Refunds take 5 days."},
		},
	}
	o := newTestOrchestrator(t, completions, []contractx.Tool{search})

	out, err := o.Process(context.Background(), "refund policy?", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.Response != "Refunds take 5 days." {
		t.Fatalf("unexpected response: %q", out.Response)
	}
	if search.calls != 1 {
		t.Fatalf("expected one tool execution, got %d", search.calls)
	}
	if got := search.args[0]["query"]; got != "refunds" {
		t.Fatalf("unexpected tool args: %v", search.args[0])
	}

	// Second model call must see the assistant tool-call entry followed by
	// the matching tool entry.
	history := completions.histories[1]
	if len(history) != 4 {
		t.Fatalf("expected 4 history entries, got %d", len(history))
	}
	assistant, toolEntry := history[2], history[3]
	if assistant.Role != contractx.RoleAssistant || len(assistant.ToolCalls) != 1 {
		t.Fatalf("unexpected assistant entry: %+v", assistant)
	}
	if toolEntry.Role != contractx.RoleTool || toolEntry.ToolCallID != "call_1" {
		t.Fatalf("tool entry must reference the pending call: %+v", toolEntry)
	}
	if !strings.Contains(toolEntry.Content, `"success":true`) {
		t.Fatalf("tool entry must carry the serialized result: %q", toolEntry.Content)
	}
}

func TestProcessUnknownTool(t *testing.T) {
	t.Parallel()

	completions := &fakeCompletions{
		script: []contractx.Completion{
			{ToolCall: call("does_not_exist", `{}`)},
			{Content: "done"},
		},
	}
	o := newTestOrchestrator(t, completions, nil)

	out, err := o.Process(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.Response != "done" {
		t.Fatalf("unexpected response: %q", out.Response)
	}

	toolEntry := completions.histories[1][3]
	if !strings.Contains(toolEntry.Content, "Tool not found: does_not_exist") {
		t.Fatalf("expected tool-not-found result, got %q", toolEntry.Content)
	}
}

func TestProcessInvalidToolArguments(t *testing.T) {
	t.Parallel()

	search := &fakeTool{name: "search_knowledge_base"}
	completions := &fakeCompletions{
		script: []contractx.Completion{
			{ToolCall: call("search_knowledge_base", `{not json`)},
			{Content: "done"},
		},
	}
	o := newTestOrchestrator(t, completions, []contractx.Tool{search})

	if _, err := o.Process(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if search.calls != 0 {
		t.Fatalf("tool must not run on unparseable arguments, got %d calls", search.calls)
	}
	toolEntry := completions.histories[1][3]
	if !strings.Contains(toolEntry.Content, "invalid arguments") {
		t.Fatalf("expected invalid-arguments result, got %q", toolEntry.Content)
	}
}

func TestProcessToolPanicRecovered(t *testing.T) {
	t.Parallel()

	broken := &fakeTool{name: "broken", panics: true}
	completions := &fakeCompletions{
		script: []contractx.Completion{
			{ToolCall: call("broken", `{}`)},
			{Content: "recovered"},
		},
	}
	o := newTestOrchestrator(t, completions, []contractx.Tool{broken})

	out, err := o.Process(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.Response != "recovered" {
		t.Fatalf("unexpected response: %q", out.Response)
	}
	toolEntry := completions.histories[1][3]
	if !strings.Contains(toolEntry.Content, "Tool execution failed") {
		t.Fatalf("expected failure result, got %q", toolEntry.Content)
	}
}

func TestProcessIterationBound(t *testing.T) {
	t.Parallel()

	loopTool := &fakeTool{
		name:   "search_knowledge_base",
		result: contractx.ToolResult{Tool: "search_knowledge_base", Success: true},
	}
	completions := &fakeCompletions{
		script: []contractx.Completion{
			{ToolCall: call("search_knowledge_base", `{}`)},
		},
	}
	o := newTestOrchestrator(t, completions, []contractx.Tool{loopTool}, WithMaxIterations(3))

	out, err := o.Process(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if completions.calls != 3 {
		t.Fatalf("expected exactly 3 model calls, got %d", completions.calls)
	}
	if !out.Success {
		t.Fatalf("exhaustion must still yield a well-defined outcome: %+v", out)
	}

	// The last permitted iteration gets the final-answer nudge.
	last := completions.histories[2]
	nudged := false
	for _, m := range last {
		if m.Role == contractx.RoleSystem && m.Content == finalNudge {
			nudged = true
		}
	}
	if !nudged {
		t.Fatalf("expected final nudge in last iteration history")
	}
}

func TestProcessModelFailure(t *testing.T) {
	t.Parallel()

	modelErr := errors.New("upstream unavailable")
	completions := &fakeCompletions{err: modelErr}
	o := newTestOrchestrator(t, completions, nil)

	out, err := o.Process(context.Background(), "hi", nil)
	if !errors.Is(err, modelErr) {
		t.Fatalf("expected model error, got %v", err)
	}
	if out.Success {
		t.Fatalf("failed run must not report success")
	}
	if out.AgentName != "Ava" {
		t.Fatalf("failed outcome keeps attribution, got %q", out.AgentName)
	}
}

func TestProcessHandoffEndsTurn(t *testing.T) {
	t.Parallel()

	handoff := &fakeTool{
		name: "handoff_to_human",
		result: contractx.ToolResult{
			Tool:    "handoff_to_human",
			Success: true,
			Action:  contractx.ActionHandoff,
			Payload: contractx.ActionPayload{
				TeamID:  3,
				Message: "You are being connected to a human agent. Please hold on.",
				Note:    "Handed off by Ava. Reason: angry customer",
			},
		},
	}
	completions := &fakeCompletions{
		script: []contractx.Completion{
			{ToolCall: call("handoff_to_human", `{"reason":"angry customer"}`)},
			{Content: "must never be reached"},
		},
	}
	o := newTestOrchestrator(t, completions, []contractx.Tool{handoff})

	out, err := o.Process(context.Background(), "let me talk to a person", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if completions.calls != 1 {
		t.Fatalf("handoff must end the turn, got %d model calls", completions.calls)
	}
	if out.Action != contractx.ActionHandoff {
		t.Fatalf("unexpected action: %q", out.Action)
	}
	if out.Response != "You are being connected to a human agent. Please hold on." {
		t.Fatalf("unexpected response: %q", out.Response)
	}
	if out.Payload.TeamID != 3 {
		t.Fatalf("payload must survive: %+v", out.Payload)
	}
}

func TestProcessContactUpdateCarried(t *testing.T) {
	t.Parallel()

	update := &fakeTool{
		name: "update_contact_info",
		result: contractx.ToolResult{
			Tool:    "update_contact_info",
			Success: true,
			Action:  contractx.ActionUpdateContact,
			Payload: contractx.ActionPayload{Email: "sam@example.com"},
		},
	}
	completions := &fakeCompletions{
		script: []contractx.Completion{
			{ToolCall: call("update_contact_info", `{"email":"sam@example.com"}`)},
			{Content: "Saved, anything else?"},
		},
	}
	o := newTestOrchestrator(t, completions, []contractx.Tool{update})

	out, err := o.Process(context.Background(), "my email is sam@example.com", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if completions.calls != 2 {
		t.Fatalf("contact update must not end the turn, got %d model calls", completions.calls)
	}
	if out.Response != "Saved, anything else?" {
		t.Fatalf("unexpected response: %q", out.Response)
	}
	if out.Action != contractx.ActionUpdateContact || out.Payload.Email != "sam@example.com" {
		t.Fatalf("contact action must be carried to the final outcome: %+v", out)
	}
}

func TestProcessContactUpdateSurvivesHandoff(t *testing.T) {
	t.Parallel()

	update := &fakeTool{
		name: "update_contact_info",
		result: contractx.ToolResult{
			Tool:    "update_contact_info",
			Success: true,
			Action:  contractx.ActionUpdateContact,
			Payload: contractx.ActionPayload{Email: "sam@example.com", PhoneNumber: "+15550100"},
		},
	}
	handoff := &fakeTool{
		name: "handoff_to_human",
		result: contractx.ToolResult{
			Tool:    "handoff_to_human",
			Success: true,
			Action:  contractx.ActionHandoff,
			Payload: contractx.ActionPayload{
				TeamID:  3,
				Message: "You are being connected to a human agent. Please hold on.",
			},
		},
	}
	completions := &fakeCompletions{
		script: []contractx.Completion{
			{ToolCall: call("update_contact_info", `{"email":"sam@example.com"}`)},
			{ToolCall: call("handoff_to_human", `{"reason":"billing dispute"}`)},
		},
	}
	o := newTestOrchestrator(t, completions, []contractx.Tool{update, handoff})

	out, err := o.Process(context.Background(), "my email is sam@example.com, get me a person", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.Action != contractx.ActionHandoff || out.Payload.TeamID != 3 {
		t.Fatalf("handoff must still end the turn: %+v", out)
	}
	if out.Payload.Email != "sam@example.com" || out.Payload.PhoneNumber != "+15550100" {
		t.Fatalf("captured contact fields must survive the handoff: %+v", out.Payload)
	}
}
