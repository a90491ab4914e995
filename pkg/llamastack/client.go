// Package llamastack is a thin typed client for the llama-stack agents API.
//
// Only the slice of the upstream surface the gateway consumes is modeled.
// Wire DTOs stay inside this package; callers work with the exported types
// and never see raw JSON.
package llamastack

import "context"

// Client is the upstream surface consumed by the gateway.
type Client interface {
	// Models lists every model the upstream exposes.
	Models(ctx context.Context) ([]Model, error)

	// Shields lists the registered safety shields.
	Shields(ctx context.Context) ([]Shield, error)

	// VectorDBs lists the registered vector databases.
	VectorDBs(ctx context.Context) ([]VectorDB, error)

	// Providers lists providers with their health.
	Providers(ctx context.Context) ([]ProviderInfo, error)

	// Version returns the upstream version string.
	Version(ctx context.Context) (string, error)

	// RetrieveAgent fetches an agent by id. Unknown ids yield ErrNotFound.
	RetrieveAgent(ctx context.Context, agentID string) (*Agent, error)

	// CreateAgent creates an agent and returns its upstream-assigned id.
	CreateAgent(ctx context.Context, cfg AgentConfig) (string, error)

	// DeleteAgent deletes an agent by id.
	DeleteAgent(ctx context.Context, agentID string) error

	// CreateSession creates a named session under an agent.
	CreateSession(ctx context.Context, agentID, sessionName string) (string, error)

	// ListSessions lists an agent's sessions.
	ListSessions(ctx context.Context, agentID string) ([]Session, error)

	// CreateTurn runs a unary turn to completion.
	CreateTurn(ctx context.Context, req TurnRequest) (*Turn, error)

	// StreamTurn starts a streaming turn. The caller must drain or close
	// the returned stream.
	StreamTurn(ctx context.Context, req TurnRequest) (*Stream, error)
}
