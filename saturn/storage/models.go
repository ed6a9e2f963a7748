package storage

import (
	"database/sql"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

// Applied when ai_temperature is NULL. An explicit 0 is a valid setting
// (deterministic sampling) and is preserved as-is.
const defaultTemperature = 0.7

type agentProfileRecord struct {
	bun.BaseModel `bun:"table:saturn_agent_profiles,alias:ap"`

	ID               int64                 `bun:"id,pk,autoincrement"`
	AccountID        int64                 `bun:"account_id,notnull"`
	Name             string                `bun:"name,notnull"`
	Description      string                `bun:"description"`
	ProductContext   string                `bun:"product_context"`
	Configuration    contractx.ModelConfig `bun:"configuration,type:jsonb"`
	BehaviorRules    []string              `bun:"behavior_rules,type:jsonb"`
	SafetyGuidelines []string              `bun:"safety_guidelines,type:jsonb"`
	AITemperature    sql.NullFloat64       `bun:"ai_temperature"`
	Enabled          bool                  `bun:"enabled"`

	HandoffEnabled bool  `bun:"handoff_enabled"`
	HandoffTeamID  int64 `bun:"handoff_team_id,nullzero"`

	TransferEnabled bool  `bun:"transfer_enabled"`
	TransferAgentID int64 `bun:"transfer_agent_id,nullzero"`

	IntentRoutingEnabled bool                      `bun:"intent_routing_enabled"`
	IntentTeamMappings   []contractx.IntentMapping `bun:"intent_team_mappings,type:jsonb"`
	IntentAgentMappings  []contractx.IntentMapping `bun:"intent_agent_mappings,type:jsonb"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *agentProfileRecord) toProfile() *contractx.AgentProfile {
	temperature := defaultTemperature
	if r.AITemperature.Valid {
		temperature = r.AITemperature.Float64
	}
	return &contractx.AgentProfile{
		ID:               r.ID,
		AccountID:        r.AccountID,
		Name:             r.Name,
		Description:      r.Description,
		ProductContext:   r.ProductContext,
		BehaviorRules:    r.BehaviorRules,
		SafetyGuidelines: r.SafetyGuidelines,
		Temperature:      temperature,
		Enabled:          r.Enabled,
		Model:            r.Configuration,

		HandoffEnabled: r.HandoffEnabled,
		HandoffTeamID:  r.HandoffTeamID,

		TransferEnabled: r.TransferEnabled,
		TransferAgentID: r.TransferAgentID,

		IntentRoutingEnabled: r.IntentRoutingEnabled,
		IntentTeamMappings:   r.IntentTeamMappings,
		IntentAgentMappings:  r.IntentAgentMappings,
	}
}

type messageRecord struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID             int64                       `bun:"id,pk,autoincrement"`
	ConversationID int64                       `bun:"conversation_id,notnull"`
	MessageType    string                      `bun:"message_type,notnull"`
	ContentType    string                      `bun:"content_type,nullzero"`
	Content        string                      `bun:"content"`
	Private        bool                        `bun:"private"`
	Attributes     contractx.MessageAttributes `bun:"content_attributes,type:jsonb"`
	CreatedAt      time.Time                   `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *messageRecord) toMessage() *contractx.Message {
	return &contractx.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Type:           contractx.MessageType(r.MessageType),
		ContentType:    r.ContentType,
		Content:        r.Content,
		Private:        r.Private,
		Attributes:     r.Attributes,
		CreatedAt:      r.CreatedAt,
	}
}

type conversationRecord struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID             int64  `bun:"id,pk,autoincrement"`
	AccountID      int64  `bun:"account_id,notnull"`
	InboxID        int64  `bun:"inbox_id,notnull"`
	ContactID      int64  `bun:"contact_id,nullzero"`
	Status         string `bun:"status,notnull,default:'open'"`
	TeamID         int64  `bun:"team_id,nullzero"`
	CurrentAgentID int64  `bun:"current_agent_id,nullzero"`
	TransferDepth  int    `bun:"transfer_depth"`
}

func (r *conversationRecord) toConversation() *contractx.Conversation {
	return &contractx.Conversation{
		ID:             r.ID,
		AccountID:      r.AccountID,
		InboxID:        r.InboxID,
		ContactID:      r.ContactID,
		Status:         contractx.ConversationStatus(r.Status),
		TeamID:         r.TeamID,
		CurrentAgentID: r.CurrentAgentID,
		TransferDepth:  r.TransferDepth,
	}
}

type contactRecord struct {
	bun.BaseModel `bun:"table:contacts,alias:ct"`

	ID          int64  `bun:"id,pk,autoincrement"`
	Name        string `bun:"name"`
	Email       string `bun:"email,nullzero"`
	PhoneNumber string `bun:"phone_number,nullzero"`
}

type teamRecord struct {
	bun.BaseModel `bun:"table:teams,alias:t"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type accountRecord struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID              int64  `bun:"id,pk,autoincrement"`
	OpenAIAPIKey    string `bun:"openai_api_key,nullzero"`
	AIResponseCount int64  `bun:"ai_response_count"`
	AIResponseLimit int64  `bun:"ai_response_limit,nullzero"`
}

type knowledgeSourceRecord struct {
	bun.BaseModel `bun:"table:saturn_knowledge_sources,alias:ks"`

	ID             int64  `bun:"id,pk,autoincrement"`
	AgentProfileID int64  `bun:"agent_profile_id,notnull"`
	AccountID      int64  `bun:"account_id,notnull"`
	Title          string `bun:"title,notnull"`
	ContentText    string `bun:"content_text"`
	SourceURL      string `bun:"source_url,nullzero"`
	SourceType     string `bun:"source_type,notnull,default:'document'"`
}

type inboxConnectionRecord struct {
	bun.BaseModel `bun:"table:saturn_inbox_connections,alias:ic"`

	ID             int64 `bun:"id,pk,autoincrement"`
	AgentProfileID int64 `bun:"agent_profile_id,notnull"`
	InboxID        int64 `bun:"inbox_id,notnull"`
	AutoRespond    bool  `bun:"auto_respond"`
}
