// Package tool implements the built-in capabilities the model may invoke
// during a turn loop: knowledge search, handoff to a human team, transfer
// to another agent, and contact-info capture. Tools never return Go errors
// to the loop; failures are structured results the model can react to.
package tool

import (
	"strings"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
	"github.com/aisaturn/saturn-engine/saturn/routing"
)

// Deps is everything the built-in tools read. DetectedIntent is the intent
// classified for this dispatcher invocation, if any; tools prefer an intent
// the model passes explicitly.
type Deps struct {
	Profile        *contractx.AgentProfile
	Knowledge      contractx.KnowledgeIndex
	Resolver       *routing.Resolver
	DetectedIntent string
}

// BuildRegistry returns the tool set for one orchestrator construction.
// Lookup by name is a plain scan over this slice.
func BuildRegistry(deps Deps) []contractx.Tool {
	return []contractx.Tool{
		&knowledgeSearchTool{deps: deps},
		&handoffTool{deps: deps},
		&transferTool{deps: deps},
		&updateContactTool{},
	}
}

// Definitions exposes the registry to the model adapter.
func Definitions(tools []contractx.Tool) []contractx.ToolDefinition {
	defs := make([]contractx.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, contractx.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Find returns the tool with the given name, or nil.
func Find(tools []contractx.Tool, name string) contractx.Tool {
	for _, t := range tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// intentFor prefers the intent the model passed as an argument over the
// one detected up front for this invocation.
func intentFor(args map[string]any, deps Deps) string {
	if v := argString(args, "detected_intent"); v != "" {
		return v
	}
	return deps.DetectedIntent
}

func failure(name, errMsg, message string) contractx.ToolResult {
	res := contractx.ToolResult{
		Tool:    name,
		Success: false,
		Error:   errMsg,
	}
	if message != "" {
		res.Result = map[string]any{"message": message}
	}
	return res
}
