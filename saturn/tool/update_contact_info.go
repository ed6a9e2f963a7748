package tool

import (
	"context"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

const updateContactName = "update_contact_info"

type updateContactTool struct{}

func (t *updateContactTool) Name() string { return updateContactName }

func (t *updateContactTool) Description() string {
	return "Save the customer's email or phone number when they explicitly share it during the conversation"
}

func (t *updateContactTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"email": map[string]any{
				"type":        "string",
				"description": "The customer's email address (optional)",
			},
			"phone_number": map[string]any{
				"type":        "string",
				"description": "The customer's phone number in international format, e.g. +14155550123 (optional)",
			},
		},
		"required": []string{},
	}
}

func (t *updateContactTool) Execute(_ context.Context, args map[string]any) contractx.ToolResult {
	email := argString(args, "email")
	phone := argString(args, "phone_number")
	if email == "" && phone == "" {
		return failure(updateContactName, "no contact information provided", "")
	}

	message := "I've saved your contact information, thank you!"

	return contractx.ToolResult{
		Tool:    updateContactName,
		Success: true,
		Result: map[string]any{
			"email":        email,
			"phone_number": phone,
			"message":      message,
		},
		Action: contractx.ActionUpdateContact,
		Payload: contractx.ActionPayload{
			Email:       email,
			PhoneNumber: phone,
			Message:     message,
		},
	}
}
