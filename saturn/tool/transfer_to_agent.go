package tool

import (
	"context"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

const transferName = "transfer_to_agent"

type transferTool struct {
	deps Deps
}

func (t *transferTool) Name() string { return transferName }

func (t *transferTool) Description() string {
	return "Transfer the conversation to another AI agent with different expertise when the current agent cannot fully help"
}

func (t *transferTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "The reason for transferring to another AI agent",
			},
			"detected_intent": map[string]any{
				"type":        "string",
				"description": "The customer intent that triggered the transfer, if identified",
			},
		},
		"required": []string{"reason"},
	}
}

func (t *transferTool) Execute(ctx context.Context, args map[string]any) contractx.ToolResult {
	reason := argString(args, "reason")
	if reason == "" {
		reason = "User needs different expertise"
	}

	profile := t.deps.Profile
	if !profile.TransferEnabled {
		return failure(transferName,
			"Agent transfer is not enabled",
			"This agent cannot transfer conversations to other agents.")
	}

	intent := intentFor(args, t.deps)
	target, err := t.deps.Resolver.TransferAgent(ctx, profile, intent)
	if err != nil {
		return failure(transferName, err.Error(),
			"The configured transfer agent is not available.")
	}

	message := "Connecting you to " + target.Name + "..."
	note := "Transferred by " + profile.Name + ". Reason: " + reason

	return contractx.ToolResult{
		Tool:    transferName,
		Success: true,
		Result: map[string]any{
			"reason":                 reason,
			"transfer_to_agent_id":   target.ID,
			"transfer_to_agent_name": target.Name,
			"message":                message,
		},
		Action: contractx.ActionAgentTransfer,
		Payload: contractx.ActionPayload{
			Reason:            reason,
			DetectedIntent:    intent,
			TransferAgentID:   target.ID,
			TransferAgentName: target.Name,
			Message:           message,
			Note:              note,
		},
	}
}
