// Package intent classifies an inbound message against the intents the
// agent's routing mappings know about. Detection is advisory: any failure
// or non-match yields "no intent" and never an error.
package intent

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

const (
	// A small, cheap model is enough for single-label classification.
	classifierModel       = "gpt-4o-mini"
	classifierTemperature = 0.3
	classifierMaxTokens   = 50

	// Only the tail of the recent context is sent, to keep tokens down.
	maxContextLength = 500
)

type Detector struct {
	client *openaisdk.Client
	model  string
}

func NewDetector(client *openaisdk.Client) *Detector {
	return &Detector{client: client, model: classifierModel}
}

// Detect returns the matching intent for the user message, or "" when
// nothing matches, intent routing has nothing configured, or the call
// fails.
func (d *Detector) Detect(ctx context.Context, profile *contractx.AgentProfile, userMessage, conversationContext string) string {
	if d == nil || d.client == nil || profile == nil {
		return ""
	}

	available := collectIntents(profile)
	if len(available) == 0 {
		return ""
	}

	resp, err := d.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: d.model,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(buildPrompt(userMessage, available, conversationContext)),
		},
		Temperature:         openaisdk.Float(classifierTemperature),
		MaxCompletionTokens: openaisdk.Int(classifierMaxTokens),
	})
	if err != nil {
		log.Warn().Err(err).Int64("agent_id", profile.ID).Msg("intent detection failed")
		return ""
	}
	if len(resp.Choices) == 0 {
		return ""
	}

	detected := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	for _, intent := range available {
		if strings.ToLower(intent) == detected {
			return intent
		}
	}
	return ""
}

func collectIntents(profile *contractx.AgentProfile) []string {
	seen := make(map[string]struct{})
	var intents []string
	appendFrom := func(mappings []contractx.IntentMapping) {
		for _, m := range mappings {
			intent := strings.TrimSpace(m.Intent)
			if intent == "" {
				continue
			}
			key := strings.ToLower(intent)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			intents = append(intents, intent)
		}
	}
	appendFrom(profile.IntentTeamMappings)
	appendFrom(profile.IntentAgentMappings)
	return intents
}

func buildPrompt(userMessage string, available []string, context string) string {
	if len(context) > maxContextLength {
		context = context[len(context)-maxContextLength:]
		// The byte cut can land inside a multi-byte rune; drop the partial one.
		for len(context) > 0 && !utf8.RuneStart(context[0]) {
			context = context[1:]
		}
	}

	var sb strings.Builder
	sb.WriteString("Analyze this customer message and identify the PRIMARY intent from the list below.\n\n")
	fmt.Fprintf(&sb, "Customer message: %q\n", userMessage)
	if strings.TrimSpace(context) != "" {
		fmt.Fprintf(&sb, "Recent context: %s\n", context)
	}
	sb.WriteString("\nAvailable intents:\n")
	for _, intent := range available {
		fmt.Fprintf(&sb, "- %s\n", intent)
	}
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Respond with ONLY the exact intent name (lowercase)\n")
	sb.WriteString("- If no intent matches, respond with: none\n")
	sb.WriteString("- Choose the MOST SPECIFIC intent that matches\n")
	sb.WriteString("\nIntent:")
	return sb.String()
}
