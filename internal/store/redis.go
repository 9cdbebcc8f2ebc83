package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tyield/engine/internal/model"
	"github.com/tyield/engine/internal/oracle"
	"github.com/tyield/engine/internal/trade"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Users (read-through) ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	s.cache(ctx, userKey(u.Authority), u)
	return nil
}

func (s *CachedStore) GetUser(ctx context.Context, authority model.PublicKey) (*model.User, error) {
	var u model.User
	if s.cached(ctx, userKey(authority), &u) {
		return &u, nil
	}

	fresh, err := s.primary.GetUser(ctx, authority)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, userKey(authority), fresh)
	return fresh, nil
}

func (s *CachedStore) UpdateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.UpdateUser(ctx, u); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, userKey(u.Authority))
	return nil
}

// --- Master agents (read-through) ---

func (s *CachedStore) CreateMasterAgent(ctx context.Context, m *model.MasterAgent) error {
	if err := s.primary.CreateMasterAgent(ctx, m); err != nil {
		return err
	}
	s.cache(ctx, masterAgentKey(m.ID), m)
	return nil
}

func (s *CachedStore) GetMasterAgent(ctx context.Context, id string) (*model.MasterAgent, error) {
	var m model.MasterAgent
	if s.cached(ctx, masterAgentKey(id), &m) {
		return &m, nil
	}

	fresh, err := s.primary.GetMasterAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, masterAgentKey(id), fresh)
	return fresh, nil
}

func (s *CachedStore) ListMasterAgents(ctx context.Context) ([]model.MasterAgent, error) {
	return s.primary.ListMasterAgents(ctx)
}

func (s *CachedStore) UpdateMasterAgent(ctx context.Context, m *model.MasterAgent) error {
	if err := s.primary.UpdateMasterAgent(ctx, m); err != nil {
		return err
	}
	s.rdb.Del(ctx, masterAgentKey(m.ID))
	return nil
}

// --- Agents (read-through) ---

func (s *CachedStore) CreateAgent(ctx context.Context, a *model.Agent) error {
	if err := s.primary.CreateAgent(ctx, a); err != nil {
		return err
	}
	s.cache(ctx, agentKey(a.ID), a)
	return nil
}

func (s *CachedStore) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	var a model.Agent
	if s.cached(ctx, agentKey(id), &a) {
		return &a, nil
	}

	fresh, err := s.primary.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, agentKey(id), fresh)
	return fresh, nil
}

func (s *CachedStore) ListAgentsByOwner(ctx context.Context, owner model.PublicKey) ([]model.Agent, error) {
	return s.primary.ListAgentsByOwner(ctx, owner)
}

func (s *CachedStore) UpdateAgent(ctx context.Context, a *model.Agent) error {
	if err := s.primary.UpdateAgent(ctx, a); err != nil {
		return err
	}
	s.rdb.Del(ctx, agentKey(a.ID))
	return nil
}

// --- Trades (read-through; active list is never cached) ---

func (s *CachedStore) InsertTrade(ctx context.Context, t *trade.Trade) error {
	if err := s.primary.InsertTrade(ctx, t); err != nil {
		return err
	}
	s.cache(ctx, tradeKey(t.ID), t)
	return nil
}

func (s *CachedStore) GetTrade(ctx context.Context, id string) (*trade.Trade, error) {
	var t trade.Trade
	if s.cached(ctx, tradeKey(id), &t) {
		return &t, nil
	}

	fresh, err := s.primary.GetTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, tradeKey(id), fresh)
	return fresh, nil
}

func (s *CachedStore) UpdateTrade(ctx context.Context, t *trade.Trade) error {
	if err := s.primary.UpdateTrade(ctx, t); err != nil {
		return err
	}
	s.rdb.Del(ctx, tradeKey(t.ID))
	return nil
}

// ListActiveTrades always hits the primary: exposure checks must not act
// on stale aggregates.
func (s *CachedStore) ListActiveTrades(ctx context.Context) ([]trade.Trade, error) {
	return s.primary.ListActiveTrades(ctx)
}

// --- Oracle snapshots (read-through) ---

func (s *CachedStore) SaveOracleSnapshot(ctx context.Context, snap *oracle.Snapshot) error {
	if err := s.primary.SaveOracleSnapshot(ctx, snap); err != nil {
		return err
	}
	s.rdb.Del(ctx, snapshotKey(snap.FeedID))
	return nil
}

func (s *CachedStore) GetOracleSnapshot(ctx context.Context, feedID [32]byte) (*oracle.Snapshot, error) {
	var snap oracle.Snapshot
	if s.cached(ctx, snapshotKey(feedID), &snap) {
		return &snap, nil
	}

	fresh, err := s.primary.GetOracleSnapshot(ctx, feedID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, snapshotKey(feedID), fresh)
	return fresh, nil
}

// --- Referral registries / protocol config (passthrough) ---

func (s *CachedStore) SaveReferralRegistry(ctx context.Context, r *model.ReferralRegistry) error {
	return s.primary.SaveReferralRegistry(ctx, r)
}

func (s *CachedStore) GetReferralRegistry(ctx context.Context, referrer model.PublicKey) (*model.ReferralRegistry, error) {
	return s.primary.GetReferralRegistry(ctx, referrer)
}

func (s *CachedStore) SaveProtocolConfig(ctx context.Context, p *model.ProtocolConfig) error {
	return s.primary.SaveProtocolConfig(ctx, p)
}

func (s *CachedStore) GetProtocolConfig(ctx context.Context) (*model.ProtocolConfig, error) {
	return s.primary.GetProtocolConfig(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) cached(ctx context.Context, key string, v any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func userKey(k model.PublicKey) string   { return fmt.Sprintf("user:%s", k) }
func masterAgentKey(id string) string    { return fmt.Sprintf("master_agent:%s", id) }
func agentKey(id string) string          { return fmt.Sprintf("agent:%s", id) }
func tradeKey(id string) string          { return fmt.Sprintf("trade:%s", id) }
func snapshotKey(feedID [32]byte) string { return fmt.Sprintf("oracle:%x", feedID) }
