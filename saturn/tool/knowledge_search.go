package tool

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

const (
	knowledgeSearchName = "search_knowledge_base"
	maxKnowledgeResults = 5
)

type knowledgeSearchTool struct {
	deps Deps
}

func (t *knowledgeSearchTool) Name() string { return knowledgeSearchName }

func (t *knowledgeSearchTool) Description() string {
	return "Search the knowledge base for relevant information to answer user questions"
}

func (t *knowledgeSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to find relevant information",
			},
		},
		"required": []string{"query"},
	}
}

func (t *knowledgeSearchTool) Execute(ctx context.Context, args map[string]any) contractx.ToolResult {
	query := argString(args, "query")
	if query == "" {
		return failure(knowledgeSearchName, "no query provided", "")
	}
	if t.deps.Knowledge == nil {
		return failure(knowledgeSearchName, "knowledge index unavailable", "")
	}

	results, err := t.deps.Knowledge.Search(ctx, t.deps.Profile.ID, query, maxKnowledgeResults)
	if err != nil {
		log.Warn().Err(err).Int64("agent_id", t.deps.Profile.ID).Str("query", query).
			Msg("knowledge search failed")
		return failure(knowledgeSearchName, "knowledge search failed: "+err.Error(), "")
	}

	res := contractx.ToolResult{
		Tool:    knowledgeSearchName,
		Success: true,
		Result: map[string]any{
			"query": query,
			"count": len(results),
		},
	}
	if len(results) == 0 {
		res.Result["message"] = "No relevant information found in the knowledge base."
		res.Result["sources"] = []contractx.KnowledgeResult{}
		return res
	}
	res.Result["sources"] = results
	return res
}
