// Package store defines the persistence interface for the protocol ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/tyield/engine/internal/model"
	"github.com/tyield/engine/internal/oracle"
	"github.com/tyield/engine/internal/trade"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Users ---

	// CreateUser persists a newly registered user.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by authority key.
	GetUser(ctx context.Context, authority model.PublicKey) (*model.User, error)

	// UpdateUser replaces a user's mutable state.
	UpdateUser(ctx context.Context, u *model.User) error

	// --- Master agents ---

	// CreateMasterAgent persists a newly minted master agent.
	CreateMasterAgent(ctx context.Context, m *model.MasterAgent) error

	// GetMasterAgent retrieves a master agent by ID.
	GetMasterAgent(ctx context.Context, id string) (*model.MasterAgent, error)

	// ListMasterAgents returns all master agents.
	ListMasterAgents(ctx context.Context) ([]model.MasterAgent, error)

	// UpdateMasterAgent replaces a master agent's mutable state.
	UpdateMasterAgent(ctx context.Context, m *model.MasterAgent) error

	// --- Agents ---

	// CreateAgent persists a newly minted agent.
	CreateAgent(ctx context.Context, a *model.Agent) error

	// GetAgent retrieves an agent by ID.
	GetAgent(ctx context.Context, id string) (*model.Agent, error)

	// ListAgentsByOwner returns every agent held by owner.
	ListAgentsByOwner(ctx context.Context, owner model.PublicKey) ([]model.Agent, error)

	// UpdateAgent replaces an agent's mutable state.
	UpdateAgent(ctx context.Context, a *model.Agent) error

	// --- Trades ---

	// InsertTrade appends a newly opened trade.
	InsertTrade(ctx context.Context, t *trade.Trade) error

	// GetTrade retrieves a trade by ID.
	GetTrade(ctx context.Context, id string) (*trade.Trade, error)

	// UpdateTrade replaces a trade's mutable state.
	UpdateTrade(ctx context.Context, t *trade.Trade) error

	// ListActiveTrades returns every trade still in the active state,
	// used to compute aggregate exposure at open-trade time.
	ListActiveTrades(ctx context.Context) ([]trade.Trade, error)

	// --- Oracle snapshots ---

	// SaveOracleSnapshot upserts a protocol-operated price snapshot.
	SaveOracleSnapshot(ctx context.Context, s *oracle.Snapshot) error

	// GetOracleSnapshot retrieves a snapshot by feed ID.
	GetOracleSnapshot(ctx context.Context, feedID [32]byte) (*oracle.Snapshot, error)

	// --- Referral registries ---

	// SaveReferralRegistry upserts a referrer's registry.
	SaveReferralRegistry(ctx context.Context, r *model.ReferralRegistry) error

	// GetReferralRegistry retrieves the registry for a referrer.
	GetReferralRegistry(ctx context.Context, referrer model.PublicKey) (*model.ReferralRegistry, error)

	// --- Protocol config ---

	// SaveProtocolConfig upserts the singleton protocol record.
	SaveProtocolConfig(ctx context.Context, p *model.ProtocolConfig) error

	// GetProtocolConfig retrieves the singleton protocol record.
	GetProtocolConfig(ctx context.Context) (*model.ProtocolConfig, error)
}
