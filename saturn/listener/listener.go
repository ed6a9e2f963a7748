// Package listener turns message-created events into auto-respond jobs.
// It applies the intake rules (customer messages only) and picks the
// responding agent before publishing to the job queue.
package listener

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
	"github.com/aisaturn/saturn-engine/saturn/dispatcher"
)

const inputSelectContentType = "input_select"

// Publisher enqueues a payload for asynchronous delivery to destination.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) error
}

// Config for event intake, loaded with the LISTENER_ prefix. JobsURL is
// the publicly reachable auto-respond endpoint the queue delivers to.
type Config struct {
	JobsURL string `split_words:"true" required:"true"`
}

type Listener struct {
	store     contractx.ConversationStore
	directory contractx.Directory
	publisher Publisher
	jobsURL   string
}

func New(
	store contractx.ConversationStore,
	directory contractx.Directory,
	publisher Publisher,
	cfg Config,
) (*Listener, error) {
	if store == nil || directory == nil || publisher == nil {
		return nil, fmt.Errorf("%w: store, directory and publisher are required", contractx.ErrValidation)
	}
	if cfg.JobsURL == "" {
		return nil, fmt.Errorf("%w: jobs URL is required", contractx.ErrValidation)
	}
	return &Listener{
		store:     store,
		directory: directory,
		publisher: publisher,
		jobsURL:   cfg.JobsURL,
	}, nil
}

// HandleMessage inspects one created message and enqueues an auto-respond
// job when an enabled agent serves the conversation. The returned bool
// reports whether a job was published; skips are not errors.
func (l *Listener) HandleMessage(ctx context.Context, messageID int64) (bool, error) {
	msg, err := l.store.Message(ctx, messageID)
	if err != nil {
		return false, err
	}

	// input_select messages are bot-generated choice widgets, not customer
	// text; answering them would make the agent talk to itself.
	if msg.Type != contractx.MessageIncoming || msg.Private || msg.ContentType == inputSelectContentType {
		log.Debug().
			Int64("message_id", messageID).
			Str("type", string(msg.Type)).
			Str("content_type", msg.ContentType).
			Msg("listener: not a customer message, skipping")
		return false, nil
	}

	conv, err := l.store.Conversation(ctx, msg.ConversationID)
	if err != nil {
		return false, err
	}

	profile, err := l.selectAgent(ctx, conv)
	if err != nil {
		if errors.Is(err, contractx.ErrNotFound) {
			log.Debug().
				Int64("conversation_id", conv.ID).
				Msg("listener: no agent serves this conversation")
			return false, nil
		}
		return false, err
	}

	job := dispatcher.Job{
		MessageID:      msg.ID,
		AgentProfileID: profile.ID,
		AccountID:      conv.AccountID,
	}
	if err := l.publisher.Publish(ctx, l.jobsURL, job); err != nil {
		return false, fmt.Errorf("publish auto-respond job: %w", err)
	}

	log.Info().
		Int64("message_id", msg.ID).
		Int64("conversation_id", conv.ID).
		Int64("agent_id", profile.ID).
		Msg("listener: auto-respond job published")
	return true, nil
}

// selectAgent prefers the agent a prior transfer pinned to the
// conversation; inbox routing is the default.
func (l *Listener) selectAgent(ctx context.Context, conv *contractx.Conversation) (*contractx.AgentProfile, error) {
	if conv.CurrentAgentID > 0 {
		profile, err := l.directory.AgentProfile(ctx, conv.CurrentAgentID)
		if err == nil && profile.Enabled {
			return profile, nil
		}
		if err != nil && !errors.Is(err, contractx.ErrNotFound) {
			return nil, err
		}
	}
	return l.directory.AgentForInbox(ctx, conv.InboxID)
}
