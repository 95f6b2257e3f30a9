package telephony

import "context"

// Provider places outbound calls through the voice-agent platform.
type Provider interface {
	// EnsureOutboundTrunk returns the outbound trunk bound to the agent, creating
	// it on first use.
	EnsureOutboundTrunk(ctx context.Context, agentID string) (string, error)
	CreateOutboundCall(ctx context.Context, req OutboundCallRequest) (*OutboundCall, error)
}

type OutboundCallRequest struct {
	TrunkID    string
	AgentID    string
	PhoneE164  string
	Prompt     string
	CampaignID int64
	CallID     int64
	Contact    ContactMetadata
}

type ContactMetadata struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone"`
}

// OutboundCall identifies a live call. CallRef keys later status events;
// SessionRef is the room the agent joined.
type OutboundCall struct {
	CallRef    string
	SessionRef string
}
