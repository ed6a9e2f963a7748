package contract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role tags one entry of the turn-loop context.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is one ordered entry of the turn-loop context. The sequence is
// append-only; a tool entry's ToolCallID matches exactly one prior assistant
// entry's pending tool call.
type ChatMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a single function invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition declares a callable tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Completion is the normalized result of one chat-completion call: exactly
// one of Content or ToolCall is set. Providers reporting several
// simultaneous tool calls have only the first surfaced.
type Completion struct {
	Content  string
	ToolCall *ToolCall
}

// Action is the side effect a tool asks the dispatcher to perform.
type Action string

const (
	ActionNone          Action = ""
	ActionHandoff       Action = "handoff_requested"
	ActionAgentTransfer Action = "agent_transfer_requested"
	ActionUpdateContact Action = "update_contact_info_requested"
)

// ActionPayload carries the structured data behind an Action.
type ActionPayload struct {
	Reason            string `json:"reason,omitempty"`
	DetectedIntent    string `json:"detected_intent,omitempty"`
	TeamID            int64  `json:"team_id,omitempty"`
	TeamName          string `json:"team_name,omitempty"`
	TransferAgentID   int64  `json:"transfer_to_agent_id,omitempty"`
	TransferAgentName string `json:"transfer_to_agent_name,omitempty"`
	Email             string `json:"email,omitempty"`
	PhoneNumber       string `json:"phone_number,omitempty"`
	// Message is shown to the customer, Note goes into a private note.
	Message string `json:"message,omitempty"`
	Note    string `json:"note,omitempty"`
}

// ToolResult is what a tool execution hands back. Result (or Error) is
// serialized into the tool-role context entry for the model; Action and
// Payload are surfaced to the dispatcher and never shown to the model
// beyond what Result already says.
type ToolResult struct {
	Tool    string         `json:"tool"`
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`

	Action  Action        `json:"-"`
	Payload ActionPayload `json:"-"`
}

// Outcome is the orchestrator's return value for one invocation.
type Outcome struct {
	Success   bool
	Response  string
	Action    Action
	Payload   ActionPayload
	AgentName string
	Timestamp time.Time
}

// IntentMapping routes a detected intent to a team or an agent, overriding
// the profile's static handoff/transfer defaults. Order matters: the first
// case-insensitive match wins.
type IntentMapping struct {
	Intent  string `json:"intent"`
	TeamID  int64  `json:"team_id,omitempty"`
	AgentID int64  `json:"agent_id,omitempty"`
}

// ModelConfig is the typed view of the profile's flexible configuration
// field, validated once at load time.
type ModelConfig struct {
	Provider  string `json:"model_provider,omitempty"`
	ModelName string `json:"model_name,omitempty"`
	MaxTokens int64  `json:"max_tokens,omitempty"`
}

// AgentProfile is the identity and policy of one agent. Read-only to the
// orchestration core; name is unique per owning account.
type AgentProfile struct {
	ID               int64
	AccountID        int64
	Name             string
	Description      string
	ProductContext   string
	BehaviorRules    []string
	SafetyGuidelines []string
	Temperature      float64
	Enabled          bool
	Model            ModelConfig

	HandoffEnabled bool
	HandoffTeamID  int64

	TransferEnabled bool
	TransferAgentID int64

	IntentRoutingEnabled bool
	IntentTeamMappings   []IntentMapping
	IntentAgentMappings  []IntentMapping
}

// Validate enforces the invariants the configuration API promises but the
// core cannot assume.
func (p *AgentProfile) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: agent profile is nil", ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: agent name is required", ErrValidation)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("%w: temperature %v out of range [0,2]", ErrValidation, p.Temperature)
	}
	return nil
}

// MessageType distinguishes customer messages from automated/agent replies.
type MessageType string

const (
	MessageIncoming MessageType = "incoming"
	MessageOutgoing MessageType = "outgoing"
	MessageActivity MessageType = "activity"
)

// MessageAttributes tag automated messages for dedup and attribution.
type MessageAttributes struct {
	AgentID   int64  `json:"agent_id,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Automated bool   `json:"automated,omitempty"`
	// Kind annotates info messages: "handoff", "transfer", "error".
	Kind string `json:"kind,omitempty"`
}

// Message is one persisted conversation message.
type Message struct {
	ID             int64
	ConversationID int64
	Type           MessageType
	ContentType    string
	Content        string
	Private        bool
	Attributes     MessageAttributes
	CreatedAt      time.Time
}

// ConversationStatus is the subset of states the core mutates.
type ConversationStatus string

const (
	ConversationOpen    ConversationStatus = "open"
	ConversationPending ConversationStatus = "pending"
)

// Conversation carries the per-conversation routing state. CurrentAgentID
// overrides default inbox routing once a transfer has occurred;
// TransferDepth only grows within one causal chain.
type Conversation struct {
	ID             int64
	AccountID      int64
	InboxID        int64
	ContactID      int64
	Status         ConversationStatus
	TeamID         int64
	CurrentAgentID int64
	TransferDepth  int
}

// Contact is the mutation target of update_contact_info.
type Contact struct {
	ID          int64
	Name        string
	Email       string
	PhoneNumber string
}

// Team is a human team eligible to receive handoffs.
type Team struct {
	ID   int64
	Name string
}

// Account is the owning tenant; the AI usage counter and optional limit
// gate automated responses.
type Account struct {
	ID              int64
	OpenAIAPIKey    string
	AIResponseCount int64
	AIResponseLimit int64
}

// WithinUsageLimit reports whether another automated response is allowed.
func (a *Account) WithinUsageLimit() bool {
	if a == nil {
		return false
	}
	return a.AIResponseLimit <= 0 || a.AIResponseCount < a.AIResponseLimit
}

// KnowledgeResult is one knowledge-index hit. ContentPreview is capped at
// 200 characters.
type KnowledgeResult struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	ContentPreview string `json:"content_preview"`
	SourceURL      string `json:"source_url,omitempty"`
	SourceType     string `json:"source_type"`
}
