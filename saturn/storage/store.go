// Package storage is the Postgres persistence layer behind the contract
// interfaces. One Store serves as conversation store, directory and
// knowledge index; callers depend on the interfaces, not on this type.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

const previewLength = 200

// Config for the database connection, loaded with the DB_ prefix.
type Config struct {
	DSN             string        `required:"true"`
	MaxOpenConns    int           `split_words:"true" default:"8"`
	ConnMaxIdleTime time.Duration `split_words:"true" default:"5m"`
}

// Connect opens a pooled Postgres connection. It does not ping; a dead
// database surfaces on first use.
func Connect(cfg Config) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return bun.NewDB(sqldb, pgdialect.New())
}

type Store struct {
	db *bun.DB
}

func New(db *bun.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db handle is required", contractx.ErrValidation)
	}
	return &Store{db: db}, nil
}

func (s *Store) Conversation(ctx context.Context, id int64) (*contractx.Conversation, error) {
	rec := new(conversationRecord)
	err := s.db.NewSelect().Model(rec).Where("c.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err, "conversation %d", id)
	}
	return rec.toConversation(), nil
}

func (s *Store) Message(ctx context.Context, id int64) (*contractx.Message, error) {
	rec := new(messageRecord)
	err := s.db.NewSelect().Model(rec).Where("m.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err, "message %d", id)
	}
	return rec.toMessage(), nil
}

func (s *Store) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]contractx.Message, error) {
	var recs []messageRecord
	err := s.db.NewSelect().
		Model(&recs).
		Where("m.conversation_id = ?", conversationID).
		Where("m.private = FALSE").
		Where("m.message_type != ?", string(contractx.MessageActivity)).
		OrderExpr("m.created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select recent messages: %w", err)
	}

	// Fetched newest-first to honor the limit; callers want oldest-first.
	msgs := make([]contractx.Message, len(recs))
	for i := range recs {
		msgs[len(recs)-1-i] = *recs[i].toMessage()
	}
	return msgs, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *contractx.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", contractx.ErrValidation)
	}
	rec := &messageRecord{
		ConversationID: msg.ConversationID,
		MessageType:    string(msg.Type),
		ContentType:    msg.ContentType,
		Content:        msg.Content,
		Private:        msg.Private,
		Attributes:     msg.Attributes,
		CreatedAt:      msg.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msg.ID = rec.ID
	return nil
}

func (s *Store) HasAutomatedReply(ctx context.Context, conversationID, agentID int64, after time.Time) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*messageRecord)(nil)).
		Where("m.conversation_id = ?", conversationID).
		Where("m.message_type = ?", string(contractx.MessageOutgoing)).
		Where("m.content_attributes->>'automated' = 'true'").
		Where("(m.content_attributes->>'agent_id')::bigint = ?", agentID).
		Where("m.created_at > ?", after).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check automated reply: %w", err)
	}
	return exists, nil
}

func (s *Store) SetConversationPending(ctx context.Context, conversationID, teamID int64) error {
	q := s.db.NewUpdate().
		Model((*conversationRecord)(nil)).
		Set("status = ?", string(contractx.ConversationPending)).
		Where("id = ?", conversationID)
	if teamID > 0 {
		q = q.Set("team_id = ?", teamID)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("set conversation pending: %w", err)
	}
	return nil
}

func (s *Store) SetTransferState(ctx context.Context, conversationID, agentID int64, depth int) error {
	_, err := s.db.NewUpdate().
		Model((*conversationRecord)(nil)).
		Set("current_agent_id = ?", agentID).
		Set("transfer_depth = ?", depth).
		Where("id = ?", conversationID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set transfer state: %w", err)
	}
	return nil
}

func (s *Store) Contact(ctx context.Context, id int64) (*contractx.Contact, error) {
	rec := new(contactRecord)
	err := s.db.NewSelect().Model(rec).Where("ct.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err, "contact %d", id)
	}
	return &contractx.Contact{
		ID:          rec.ID,
		Name:        rec.Name,
		Email:       rec.Email,
		PhoneNumber: rec.PhoneNumber,
	}, nil
}

func (s *Store) UpdateContact(ctx context.Context, contactID int64, email, phoneNumber string) error {
	email = strings.TrimSpace(email)
	phoneNumber = strings.TrimSpace(phoneNumber)
	if email == "" && phoneNumber == "" {
		return nil
	}

	q := s.db.NewUpdate().
		Model((*contactRecord)(nil)).
		Where("id = ?", contactID)
	if email != "" {
		q = q.Set("email = ?", email)
	}
	if phoneNumber != "" {
		q = q.Set("phone_number = ?", phoneNumber)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("update contact %d: %w", contactID, err)
	}
	return nil
}

func (s *Store) AgentProfile(ctx context.Context, id int64) (*contractx.AgentProfile, error) {
	rec := new(agentProfileRecord)
	err := s.db.NewSelect().Model(rec).Where("ap.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err, "agent profile %d", id)
	}
	return rec.toProfile(), nil
}

func (s *Store) AgentForInbox(ctx context.Context, inboxID int64) (*contractx.AgentProfile, error) {
	rec := new(agentProfileRecord)
	err := s.db.NewSelect().
		Model(rec).
		Where("ap.enabled = TRUE").
		Where("ap.id IN (?)", s.db.NewSelect().
			Model((*inboxConnectionRecord)(nil)).
			Column("ic.agent_profile_id").
			Where("ic.inbox_id = ?", inboxID).
			Where("ic.auto_respond = TRUE")).
		OrderExpr("ap.id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err, "agent for inbox %d", inboxID)
	}
	return rec.toProfile(), nil
}

func (s *Store) Team(ctx context.Context, id int64) (*contractx.Team, error) {
	rec := new(teamRecord)
	err := s.db.NewSelect().Model(rec).Where("t.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err, "team %d", id)
	}
	return &contractx.Team{ID: rec.ID, Name: rec.Name}, nil
}

func (s *Store) Account(ctx context.Context, id int64) (*contractx.Account, error) {
	rec := new(accountRecord)
	err := s.db.NewSelect().Model(rec).Where("a.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err, "account %d", id)
	}
	return &contractx.Account{
		ID:              rec.ID,
		OpenAIAPIKey:    rec.OpenAIAPIKey,
		AIResponseCount: rec.AIResponseCount,
		AIResponseLimit: rec.AIResponseLimit,
	}, nil
}

func (s *Store) IncrementUsage(ctx context.Context, accountID int64) error {
	_, err := s.db.NewUpdate().
		Model((*accountRecord)(nil)).
		Set("ai_response_count = ai_response_count + 1").
		Where("id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("increment usage for account %d: %w", accountID, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, agentID int64, query string, limit int) ([]contractx.KnowledgeResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var recs []knowledgeSourceRecord
	pattern := "%" + query + "%"
	err := s.db.NewSelect().
		Model(&recs).
		Where("ks.agent_profile_id = ?", agentID).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("ks.title ILIKE ?", pattern).
				WhereOr("ks.content_text ILIKE ?", pattern)
		}).
		OrderExpr("ks.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("search knowledge sources: %w", err)
	}

	results := make([]contractx.KnowledgeResult, 0, len(recs))
	for _, rec := range recs {
		results = append(results, contractx.KnowledgeResult{
			ID:             rec.ID,
			Title:          rec.Title,
			ContentPreview: preview(rec.ContentText),
			SourceURL:      rec.SourceURL,
			SourceType:     rec.SourceType,
		})
	}
	return results, nil
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}

func wrapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", contractx.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
