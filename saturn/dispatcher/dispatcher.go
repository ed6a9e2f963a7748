// Package dispatcher is the async entry point of the engine. One Dispatch
// call handles one inbound-message job: dedup guard, agent resolution,
// turn-loop invocation, and translation of the outcome into persisted
// messages and conversation-state mutations. Agent transfers re-enter the
// same outcome handling with an explicit depth counter.
package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	openaiclientx "github.com/aisaturn/saturn-engine/pkg/openaiclient"
	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
	intentx "github.com/aisaturn/saturn-engine/saturn/intent"
	llmx "github.com/aisaturn/saturn-engine/saturn/llm"
	"github.com/aisaturn/saturn-engine/saturn/orchestrator"
	"github.com/aisaturn/saturn-engine/saturn/routing"
	toolx "github.com/aisaturn/saturn-engine/saturn/tool"
)

const (
	// MaxTransferDepth bounds chained agent transfers. The transfer graph is
	// not assumed acyclic; this bound is the only termination guarantee.
	MaxTransferDepth = 3

	// ContextMessages is how many recent messages seed the model context.
	ContextMessages = 5

	terminalApology = "Sorry, something went wrong on our end. Please wait for a human agent."
)

// Job is one unit of work: respond to an inbound message as a given agent.
// Delivery is at-least-once; the dedup guard absorbs most replays.
type Job struct {
	MessageID      int64 `json:"message_id"`
	AgentProfileID int64 `json:"agent_profile_id"`
	AccountID      int64 `json:"account_id"`
	TransferDepth  int   `json:"transfer_depth"`
}

// Processor is the orchestrator surface the dispatcher drives. Narrowed to
// an interface so tests can substitute scripted outcomes.
type Processor interface {
	Process(ctx context.Context, userInput string, convContext map[string]any) (contractx.Outcome, error)
}

// ProcessorFactory builds a Processor for one (agent, account, intent)
// combination. The default factory wires the OpenAI-backed orchestrator.
type ProcessorFactory func(profile *contractx.AgentProfile, account *contractx.Account, detectedIntent string) (Processor, error)

// DetectorFactory builds the per-account intent detector.
type DetectorFactory func(account *contractx.Account) IntentDetector

// IntentDetector classifies the inbound message; "" means no intent.
type IntentDetector interface {
	Detect(ctx context.Context, profile *contractx.AgentProfile, userMessage, conversationContext string) string
}

type Option func(*Dispatcher)

func WithMaxTransferDepth(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

func WithContextMessages(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.contextLimit = n
		}
	}
}

func WithProcessorFactory(f ProcessorFactory) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.newProcessor = f
		}
	}
}

func WithDetectorFactory(f DetectorFactory) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.newDetector = f
		}
	}
}

type Dispatcher struct {
	store     contractx.ConversationStore
	directory contractx.Directory
	knowledge contractx.KnowledgeIndex
	clientCfg openaiclientx.Config

	newProcessor ProcessorFactory
	newDetector  DetectorFactory

	maxDepth     int
	contextLimit int
}

func New(
	store contractx.ConversationStore,
	directory contractx.Directory,
	knowledge contractx.KnowledgeIndex,
	clientCfg openaiclientx.Config,
	opts ...Option,
) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: conversation store is required", contractx.ErrValidation)
	}
	if directory == nil {
		return nil, fmt.Errorf("%w: directory is required", contractx.ErrValidation)
	}

	d := &Dispatcher{
		store:        store,
		directory:    directory,
		knowledge:    knowledge,
		clientCfg:    clientCfg,
		maxDepth:     MaxTransferDepth,
		contextLimit: ContextMessages,
	}
	d.newProcessor = d.defaultProcessorFactory
	d.newDetector = d.defaultDetectorFactory

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Dispatch handles one job to completion. Unexpected errors are logged and
// dropped at this boundary: the conversation simply receives no automated
// response, and nothing propagates back to the job producer.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) {
	logger := log.With().
		Str("job_id", uuid.NewString()).
		Int64("message_id", job.MessageID).
		Int64("agent_profile_id", job.AgentProfileID).
		Logger()

	if err := d.dispatch(ctx, logger, job); err != nil {
		logger.Error().Err(err).Msg("auto-respond job failed")
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, logger zerolog.Logger, job Job) error {
	msg, err := d.store.Message(ctx, job.MessageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}

	// Dedup guard: read-before-write, best effort. Two concurrent
	// deliveries can both pass this check; the bound on duplicates is
	// probabilistic, not a lock.
	replied, err := d.store.HasAutomatedReply(ctx, msg.ConversationID, job.AgentProfileID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if replied {
		logger.Info().Msg("skipping duplicate response")
		return nil
	}

	profile, err := d.directory.AgentProfile(ctx, job.AgentProfileID)
	if err != nil {
		return fmt.Errorf("load agent profile: %w", err)
	}
	if !profile.Enabled {
		logger.Info().Msg("agent disabled, skipping")
		return nil
	}

	account, err := d.directory.Account(ctx, job.AccountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if !account.WithinUsageLimit() {
		logger.Warn().Int64("account_id", account.ID).Msg("ai usage limit reached, skipping")
		return nil
	}
	if strings.TrimSpace(account.OpenAIAPIKey) == "" {
		logger.Warn().Int64("account_id", account.ID).Msg("no api key configured, skipping")
		return nil
	}

	conv, err := d.store.Conversation(ctx, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	outcome, err := d.invoke(ctx, profile, account, conv, msg)
	if err != nil {
		return fmt.Errorf("orchestrator run: %w", err)
	}

	return d.processOutcome(ctx, logger, msg, conv, profile, account, outcome, job.TransferDepth)
}

// invoke runs one full orchestrator pass for the given agent, including
// per-turn intent detection.
func (d *Dispatcher) invoke(
	ctx context.Context,
	profile *contractx.AgentProfile,
	account *contractx.Account,
	conv *contractx.Conversation,
	msg *contractx.Message,
) (contractx.Outcome, error) {
	convContext, contextText, err := d.buildContext(ctx, conv)
	if err != nil {
		return contractx.Outcome{}, err
	}

	detectedIntent := ""
	if profile.IntentRoutingEnabled {
		detectedIntent = d.newDetector(account).Detect(ctx, profile, msg.Content, contextText)
	}

	proc, err := d.newProcessor(profile, account, detectedIntent)
	if err != nil {
		return contractx.Outcome{}, err
	}
	return proc.Process(ctx, msg.Content, convContext)
}

func (d *Dispatcher) processOutcome(
	ctx context.Context,
	logger zerolog.Logger,
	inbound *contractx.Message,
	conv *contractx.Conversation,
	profile *contractx.AgentProfile,
	account *contractx.Account,
	outcome contractx.Outcome,
	depth int,
) error {
	if !outcome.Success {
		logger.Error().Str("agent", outcome.AgentName).Msg("orchestrator reported failure")
		return nil
	}

	// Contact capture is independent of the rest of the outcome handling:
	// any outcome may carry captured contact fields, including one whose
	// action is a handoff or transfer.
	d.applyContactUpdate(ctx, logger, conv, outcome.Payload)

	switch outcome.Action {
	case contractx.ActionHandoff:
		return d.handleHandoff(ctx, logger, conv, profile, outcome.Payload)
	case contractx.ActionAgentTransfer:
		return d.handleTransfer(ctx, logger, inbound, conv, profile, account, outcome.Payload, depth)
	default:
		if strings.TrimSpace(outcome.Response) == "" {
			logger.Info().Msg("empty response, nothing persisted")
			return nil
		}
		err := d.store.AppendMessage(ctx, &contractx.Message{
			ConversationID: conv.ID,
			Type:           contractx.MessageOutgoing,
			Content:        outcome.Response,
			Attributes: contractx.MessageAttributes{
				AgentID:   profile.ID,
				AgentName: profile.Name,
				Automated: true,
			},
		})
		if err != nil {
			return fmt.Errorf("persist response: %w", err)
		}
		if err := d.directory.IncrementUsage(ctx, account.ID); err != nil {
			logger.Warn().Err(err).Msg("usage counter increment failed")
		}
		return nil
	}
}

// handleHandoff ends automation for the conversation: pending status, team
// assignment, one visible notice and one private note.
func (d *Dispatcher) handleHandoff(
	ctx context.Context,
	logger zerolog.Logger,
	conv *contractx.Conversation,
	profile *contractx.AgentProfile,
	payload contractx.ActionPayload,
) error {
	if err := d.store.SetConversationPending(ctx, conv.ID, payload.TeamID); err != nil {
		return fmt.Errorf("set conversation pending: %w", err)
	}
	if err := d.appendInfoMessage(ctx, conv.ID, profile, payload.Message, "handoff"); err != nil {
		return err
	}
	if err := d.appendPrivateNote(ctx, conv.ID, profile, payload.Note); err != nil {
		return err
	}

	logger.Info().
		Int64("team_id", payload.TeamID).
		Str("reason", payload.Reason).
		Msg("conversation handed off")
	return nil
}

// handleTransfer persists the transfer notices, advances the conversation's
// transfer state, and re-invokes the orchestrator with the target agent.
// Once the depth bound is reached a terminal apology is persisted instead
// and no further invocation happens.
func (d *Dispatcher) handleTransfer(
	ctx context.Context,
	logger zerolog.Logger,
	inbound *contractx.Message,
	conv *contractx.Conversation,
	profile *contractx.AgentProfile,
	account *contractx.Account,
	payload contractx.ActionPayload,
	depth int,
) error {
	if err := d.appendInfoMessage(ctx, conv.ID, profile, payload.Message, "transfer"); err != nil {
		return err
	}
	if err := d.appendPrivateNote(ctx, conv.ID, profile, payload.Note); err != nil {
		return err
	}

	newDepth := depth + 1
	if err := d.store.SetTransferState(ctx, conv.ID, payload.TransferAgentID, newDepth); err != nil {
		return fmt.Errorf("update transfer state: %w", err)
	}
	conv.CurrentAgentID = payload.TransferAgentID
	conv.TransferDepth = newDepth

	if newDepth >= d.maxDepth {
		logger.Error().Int("depth", newDepth).Msg("max transfer depth reached")
		return d.appendInfoMessage(ctx, conv.ID, profile, terminalApology, "error")
	}

	target, err := d.directory.AgentProfile(ctx, payload.TransferAgentID)
	if err != nil {
		return fmt.Errorf("load transfer target: %w", err)
	}
	if !target.Enabled {
		logger.Error().Int64("target_id", target.ID).Msg("transfer target disabled")
		return nil
	}

	outcome, err := d.invoke(ctx, target, account, conv, inbound)
	if err != nil {
		return fmt.Errorf("transfer run: %w", err)
	}

	logger.Info().
		Str("target", target.Name).
		Int("depth", newDepth).
		Msg("conversation transferred")

	return d.processOutcome(ctx, logger, inbound, conv, target, account, outcome, newDepth)
}

func (d *Dispatcher) applyContactUpdate(ctx context.Context, logger zerolog.Logger, conv *contractx.Conversation, payload contractx.ActionPayload) {
	if conv.ContactID == 0 {
		return
	}
	if payload.Email == "" && payload.PhoneNumber == "" {
		return
	}
	if err := d.store.UpdateContact(ctx, conv.ContactID, payload.Email, payload.PhoneNumber); err != nil {
		logger.Warn().Err(err).Int64("contact_id", conv.ContactID).Msg("contact update failed")
		return
	}
	logger.Info().Int64("contact_id", conv.ContactID).Msg("contact info updated")
}

func (d *Dispatcher) appendInfoMessage(ctx context.Context, conversationID int64, profile *contractx.AgentProfile, content, kind string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	err := d.store.AppendMessage(ctx, &contractx.Message{
		ConversationID: conversationID,
		Type:           contractx.MessageOutgoing,
		Content:        content,
		Attributes: contractx.MessageAttributes{
			AgentID:   profile.ID,
			AgentName: profile.Name,
			Automated: true,
			Kind:      kind,
		},
	})
	if err != nil {
		return fmt.Errorf("persist %s message: %w", kind, err)
	}
	return nil
}

func (d *Dispatcher) appendPrivateNote(ctx context.Context, conversationID int64, profile *contractx.AgentProfile, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	err := d.store.AppendMessage(ctx, &contractx.Message{
		ConversationID: conversationID,
		Type:           contractx.MessageOutgoing,
		Content:        content,
		Private:        true,
		Attributes: contractx.MessageAttributes{
			AgentID:   profile.ID,
			AgentName: profile.Name,
			Automated: true,
		},
	})
	if err != nil {
		return fmt.Errorf("persist private note: %w", err)
	}
	return nil
}

// buildContext assembles the serialized context handed to the orchestrator
// and a flat text rendering for the intent detector.
func (d *Dispatcher) buildContext(ctx context.Context, conv *contractx.Conversation) (map[string]any, string, error) {
	recent, err := d.store.RecentMessages(ctx, conv.ID, d.contextLimit)
	if err != nil {
		return nil, "", fmt.Errorf("load recent messages: %w", err)
	}

	previous := make([]map[string]any, 0, len(recent))
	var flat strings.Builder
	for _, m := range recent {
		role := "user"
		if m.Type == contractx.MessageOutgoing {
			role = "assistant"
		}
		previous = append(previous, map[string]any{
			"role":       role,
			"content":    m.Content,
			"created_at": m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
		fmt.Fprintf(&flat, "%s: %s\n", role, m.Content)
	}

	convContext := map[string]any{
		"conversation_id":   conv.ID,
		"previous_messages": previous,
	}
	if contact, err := d.store.Contact(ctx, conv.ContactID); err == nil && contact != nil {
		convContext["contact_name"] = contact.Name
		convContext["contact_email"] = contact.Email
	}
	return convContext, flat.String(), nil
}

// defaultProcessorFactory wires the production orchestrator: per-account
// OpenAI client, model adapter, routing resolver and tool registry.
func (d *Dispatcher) defaultProcessorFactory(profile *contractx.AgentProfile, account *contractx.Account, detectedIntent string) (Processor, error) {
	client := openaiclientx.NewWithKey(d.clientCfg, account.OpenAIAPIKey)
	if client == nil {
		return nil, fmt.Errorf("%w: account %d has no api key", contractx.ErrValidation, account.ID)
	}

	completions, err := llmx.NewService(client, profile)
	if err != nil {
		return nil, err
	}

	resolver, err := routing.NewResolver(d.directory)
	if err != nil {
		return nil, err
	}

	tools := toolx.BuildRegistry(toolx.Deps{
		Profile:        profile,
		Knowledge:      d.knowledge,
		Resolver:       resolver,
		DetectedIntent: detectedIntent,
	})

	return orchestrator.New(profile, completions, tools)
}

func (d *Dispatcher) defaultDetectorFactory(account *contractx.Account) IntentDetector {
	return intentx.NewDetector(openaiclientx.NewWithKey(d.clientCfg, account.OpenAIAPIKey))
}
