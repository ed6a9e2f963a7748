// Package prompt renders the system prompt that seeds every turn loop.
package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

//go:embed template/system.txt
var systemRaw string

var systemTmpl = template.Must(template.New("system").Parse(strings.TrimSpace(systemRaw)))

const defaultProduct = "customer support"

type systemData struct {
	Name             string
	Product          string
	Description      string
	BehaviorRules    string
	SafetyGuidelines string
	Context          string
}

// RenderSystem builds the system prompt from the agent's identity, rules
// and guidelines plus the serialized conversation context.
func RenderSystem(profile *contractx.AgentProfile, convContext map[string]any) (string, error) {
	if profile == nil {
		return "", fmt.Errorf("%w: agent profile is nil", contractx.ErrValidation)
	}

	ctxJSON, err := json.Marshal(convContext)
	if err != nil {
		return "", fmt.Errorf("%w: marshal conversation context: %v", contractx.ErrValidation, err)
	}

	product := strings.TrimSpace(profile.ProductContext)
	if product == "" {
		product = defaultProduct
	}

	var sb strings.Builder
	err = systemTmpl.Execute(&sb, systemData{
		Name:             profile.Name,
		Product:          product,
		Description:      profile.Description,
		BehaviorRules:    formatRules(profile.BehaviorRules),
		SafetyGuidelines: formatRules(profile.SafetyGuidelines),
		Context:          string(ctxJSON),
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}

	return sb.String(), nil
}

func formatRules(rules []string) string {
	if len(rules) == 0 {
		return "None specified"
	}
	lines := make([]string, 0, len(rules))
	for i, rule := range rules {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, rule))
	}
	return strings.Join(lines, "\n")
}
