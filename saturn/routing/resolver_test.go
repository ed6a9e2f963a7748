package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

type fakeDirectory struct {
	teams    map[int64]*contractx.Team
	profiles map[int64]*contractx.AgentProfile
}

func (f *fakeDirectory) AgentProfile(_ context.Context, id int64) (*contractx.AgentProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: agent profile %d", contractx.ErrNotFound, id)
	}
	return p, nil
}

func (f *fakeDirectory) AgentForInbox(_ context.Context, inboxID int64) (*contractx.AgentProfile, error) {
	return nil, fmt.Errorf("%w: agent for inbox %d", contractx.ErrNotFound, inboxID)
}

func (f *fakeDirectory) Team(_ context.Context, id int64) (*contractx.Team, error) {
	team, ok := f.teams[id]
	if !ok {
		return nil, fmt.Errorf("%w: team %d", contractx.ErrNotFound, id)
	}
	return team, nil
}

func (f *fakeDirectory) Account(_ context.Context, id int64) (*contractx.Account, error) {
	return nil, fmt.Errorf("%w: account %d", contractx.ErrNotFound, id)
}

func (f *fakeDirectory) IncrementUsage(_ context.Context, _ int64) error { return nil }

func newTestResolver(t *testing.T, directory contractx.Directory) *Resolver {
	t.Helper()
	r, err := NewResolver(directory)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	return r
}

func routingProfile() *contractx.AgentProfile {
	return &contractx.AgentProfile{
		ID:                   1,
		Name:                 "Ava",
		Enabled:              true,
		HandoffEnabled:       true,
		HandoffTeamID:        3,
		TransferEnabled:      true,
		TransferAgentID:      2,
		IntentRoutingEnabled: true,
		IntentTeamMappings: []contractx.IntentMapping{
			{Intent: "billing_issue", TeamID: 4},
			{Intent: "refund_request", TeamID: 5},
		},
		IntentAgentMappings: []contractx.IntentMapping{
			{Intent: "technical_support", AgentID: 9},
		},
	}
}

func TestHandoffTeamIntentOverride(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, &fakeDirectory{teams: map[int64]*contractx.Team{
		3: {ID: 3, Name: "General"},
		4: {ID: 4, Name: "Billing"},
	}})

	team, err := r.HandoffTeam(context.Background(), routingProfile(), "Billing_Issue")
	if err != nil {
		t.Fatalf("HandoffTeam() error = %v", err)
	}
	if team.ID != 4 {
		t.Fatalf("intent mapping must win over the static default, got team %d", team.ID)
	}
}

func TestHandoffTeamStaticDefault(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, &fakeDirectory{teams: map[int64]*contractx.Team{
		3: {ID: 3, Name: "General"},
	}})

	team, err := r.HandoffTeam(context.Background(), routingProfile(), "unmapped_intent")
	if err != nil {
		t.Fatalf("HandoffTeam() error = %v", err)
	}
	if team.ID != 3 {
		t.Fatalf("expected static default team 3, got %d", team.ID)
	}
}

func TestHandoffTeamRoutingDisabledIgnoresMappings(t *testing.T) {
	t.Parallel()

	profile := routingProfile()
	profile.IntentRoutingEnabled = false

	r := newTestResolver(t, &fakeDirectory{teams: map[int64]*contractx.Team{
		3: {ID: 3, Name: "General"},
	}})

	team, err := r.HandoffTeam(context.Background(), profile, "billing_issue")
	if err != nil {
		t.Fatalf("HandoffTeam() error = %v", err)
	}
	if team.ID != 3 {
		t.Fatalf("disabled routing must use the static default, got %d", team.ID)
	}
}

func TestHandoffTeamNoTarget(t *testing.T) {
	t.Parallel()

	profile := routingProfile()
	profile.HandoffTeamID = 0

	r := newTestResolver(t, &fakeDirectory{})

	_, err := r.HandoffTeam(context.Background(), profile, "")
	if !errors.Is(err, ErrNoHandoffTeam) {
		t.Fatalf("expected ErrNoHandoffTeam, got %v", err)
	}
}

func TestHandoffTeamMissingTeam(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, &fakeDirectory{})

	_, err := r.HandoffTeam(context.Background(), routingProfile(), "")
	if !errors.Is(err, ErrTargetUnavailable) {
		t.Fatalf("expected ErrTargetUnavailable, got %v", err)
	}
}

func TestTransferAgentIntentOverride(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, &fakeDirectory{profiles: map[int64]*contractx.AgentProfile{
		9: {ID: 9, Name: "Tech Bot", Enabled: true},
	}})

	target, err := r.TransferAgent(context.Background(), routingProfile(), "technical_support")
	if err != nil {
		t.Fatalf("TransferAgent() error = %v", err)
	}
	if target.ID != 9 {
		t.Fatalf("intent mapping must win, got agent %d", target.ID)
	}
}

func TestTransferAgentStaticDefault(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, &fakeDirectory{profiles: map[int64]*contractx.AgentProfile{
		2: {ID: 2, Name: "Billing Bot", Enabled: true},
	}})

	target, err := r.TransferAgent(context.Background(), routingProfile(), "")
	if err != nil {
		t.Fatalf("TransferAgent() error = %v", err)
	}
	if target.ID != 2 {
		t.Fatalf("expected static default agent 2, got %d", target.ID)
	}
}

func TestTransferAgentDisabledTarget(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, &fakeDirectory{profiles: map[int64]*contractx.AgentProfile{
		2: {ID: 2, Name: "Billing Bot", Enabled: false},
	}})

	_, err := r.TransferAgent(context.Background(), routingProfile(), "")
	if !errors.Is(err, ErrTargetUnavailable) {
		t.Fatalf("expected ErrTargetUnavailable for disabled target, got %v", err)
	}
}

func TestTransferAgentNoTarget(t *testing.T) {
	t.Parallel()

	profile := routingProfile()
	profile.TransferAgentID = 0

	r := newTestResolver(t, &fakeDirectory{})

	_, err := r.TransferAgent(context.Background(), profile, "")
	if !errors.Is(err, ErrNoTransferAgent) {
		t.Fatalf("expected ErrNoTransferAgent, got %v", err)
	}
}
