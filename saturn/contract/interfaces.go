package contract

import (
	"context"
	"time"
)

// ConversationStore is the message/conversation persistence consumed by the
// core. Append-only for messages; conversation mutations are limited to
// status, team assignment and transfer state.
type ConversationStore interface {
	Conversation(ctx context.Context, id int64) (*Conversation, error)
	Message(ctx context.Context, id int64) (*Message, error)

	// RecentMessages returns up to limit non-private, non-activity messages
	// ordered oldest-first, for context building.
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error)

	AppendMessage(ctx context.Context, msg *Message) error

	// HasAutomatedReply reports whether an automated message attributed to
	// agentID exists in the conversation after the given time. This is the
	// dedup guard's read side; it is a best-effort race guard, not a lock.
	HasAutomatedReply(ctx context.Context, conversationID, agentID int64, after time.Time) (bool, error)

	SetConversationPending(ctx context.Context, conversationID, teamID int64) error
	SetTransferState(ctx context.Context, conversationID, agentID int64, depth int) error

	Contact(ctx context.Context, id int64) (*Contact, error)
	UpdateContact(ctx context.Context, contactID int64, email, phoneNumber string) error
}

// Directory resolves agents, teams and accounts.
type Directory interface {
	AgentProfile(ctx context.Context, id int64) (*AgentProfile, error)

	// AgentForInbox returns the enabled agent connected to the inbox with
	// auto-respond on, or ErrNotFound.
	AgentForInbox(ctx context.Context, inboxID int64) (*AgentProfile, error)

	Team(ctx context.Context, id int64) (*Team, error)
	Account(ctx context.Context, id int64) (*Account, error)
	IncrementUsage(ctx context.Context, accountID int64) error
}

// KnowledgeIndex is keyword search over an agent's knowledge sources.
type KnowledgeIndex interface {
	Search(ctx context.Context, agentID int64, query string, limit int) ([]KnowledgeResult, error)
}

// CompletionService wraps one chat-completion call. Failures are surfaced
// as errors and never retried here; retry belongs to the caller's
// infrastructure.
type CompletionService interface {
	GenerateCompletion(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (Completion, error)
}

// Tool is a named capability the model may invoke. Execute never panics
// past this boundary and reports failures inside the ToolResult.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) ToolResult
}
