// Package routing decides where a handoff or transfer goes: an intent
// mapping match overrides the profile's static default target.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

var (
	ErrNoHandoffTeam     = errors.New("no handoff team configured")
	ErrNoTransferAgent   = errors.New("no transfer agent configured")
	ErrTargetUnavailable = errors.New("routing target unavailable")
)

type Resolver struct {
	directory contractx.Directory
}

func NewResolver(directory contractx.Directory) (*Resolver, error) {
	if directory == nil {
		return nil, fmt.Errorf("%w: directory is required", contractx.ErrValidation)
	}
	return &Resolver{directory: directory}, nil
}

// HandoffTeam resolves the human team for a handoff. A matching intent
// mapping wins over the profile's static default; with no usable target an
// error is returned and the tool reports a structured failure instead of
// emitting an action.
func (r *Resolver) HandoffTeam(ctx context.Context, profile *contractx.AgentProfile, detectedIntent string) (*contractx.Team, error) {
	teamID := matchTeam(profile, detectedIntent)
	if teamID == 0 {
		teamID = profile.HandoffTeamID
	}
	if teamID == 0 {
		return nil, ErrNoHandoffTeam
	}

	team, err := r.directory.Team(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: team %d: %v", ErrTargetUnavailable, teamID, err)
	}
	return team, nil
}

// TransferAgent resolves the target agent for an agent-to-agent transfer.
// The target must exist and be enabled.
func (r *Resolver) TransferAgent(ctx context.Context, profile *contractx.AgentProfile, detectedIntent string) (*contractx.AgentProfile, error) {
	agentID := matchAgent(profile, detectedIntent)
	if agentID == 0 {
		agentID = profile.TransferAgentID
	}
	if agentID == 0 {
		return nil, ErrNoTransferAgent
	}

	target, err := r.directory.AgentProfile(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: agent %d: %v", ErrTargetUnavailable, agentID, err)
	}
	if !target.Enabled {
		return nil, fmt.Errorf("%w: agent %d is disabled", ErrTargetUnavailable, agentID)
	}
	return target, nil
}

func matchTeam(profile *contractx.AgentProfile, detectedIntent string) int64 {
	if !intentUsable(profile, detectedIntent) {
		return 0
	}
	for _, m := range profile.IntentTeamMappings {
		if strings.EqualFold(strings.TrimSpace(m.Intent), detectedIntent) && m.TeamID != 0 {
			return m.TeamID
		}
	}
	return 0
}

func matchAgent(profile *contractx.AgentProfile, detectedIntent string) int64 {
	if !intentUsable(profile, detectedIntent) {
		return 0
	}
	for _, m := range profile.IntentAgentMappings {
		if strings.EqualFold(strings.TrimSpace(m.Intent), detectedIntent) && m.AgentID != 0 {
			return m.AgentID
		}
	}
	return 0
}

func intentUsable(profile *contractx.AgentProfile, detectedIntent string) bool {
	return profile != nil && profile.IntentRoutingEnabled && strings.TrimSpace(detectedIntent) != ""
}
