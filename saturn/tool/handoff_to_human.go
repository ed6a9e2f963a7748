package tool

import (
	"context"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

const handoffName = "handoff_to_human"

type handoffTool struct {
	deps Deps
}

func (t *handoffTool) Name() string { return handoffName }

func (t *handoffTool) Description() string {
	return "Transfer the conversation to a human agent when the AI cannot help or when explicitly requested"
}

func (t *handoffTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "The reason for handing off to a human agent",
			},
			"detected_intent": map[string]any{
				"type":        "string",
				"description": "The customer intent that triggered the handoff, if identified",
			},
		},
		"required": []string{"reason"},
	}
}

func (t *handoffTool) Execute(ctx context.Context, args map[string]any) contractx.ToolResult {
	reason := argString(args, "reason")
	if reason == "" {
		reason = "User requested human assistance"
	}

	profile := t.deps.Profile
	if !profile.HandoffEnabled {
		return failure(handoffName,
			"Handoff is not enabled for this agent",
			"This agent cannot transfer conversations to human agents.")
	}

	intent := intentFor(args, t.deps)
	team, err := t.deps.Resolver.HandoffTeam(ctx, profile, intent)
	if err != nil {
		return failure(handoffName, err.Error(),
			"No team has been configured to receive handoffs from this agent.")
	}

	message := "You are being connected to a human agent..."
	note := "Handed off by " + profile.Name + ". Reason: " + reason

	return contractx.ToolResult{
		Tool:    handoffName,
		Success: true,
		Result: map[string]any{
			"reason":    reason,
			"team_id":   team.ID,
			"team_name": team.Name,
			"message":   message,
		},
		Action: contractx.ActionHandoff,
		Payload: contractx.ActionPayload{
			Reason:         reason,
			DetectedIntent: intent,
			TeamID:         team.ID,
			TeamName:       team.Name,
			Message:        message,
			Note:           note,
		},
	}
}
