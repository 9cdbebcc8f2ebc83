package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/tyield/engine/internal/model"
	"github.com/tyield/engine/internal/oracle"
	"github.com/tyield/engine/internal/trade"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[model.PublicKey]*model.User
	masterAgents map[string]*model.MasterAgent
	agents       map[string]*model.Agent
	trades       map[string]*trade.Trade
	snapshots    map[[32]byte]*oracle.Snapshot
	referrals    map[model.PublicKey]*model.ReferralRegistry
	protocol     *model.ProtocolConfig
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[model.PublicKey]*model.User),
		masterAgents: make(map[string]*model.MasterAgent),
		agents:       make(map[string]*model.Agent),
		trades:       make(map[string]*trade.Trade),
		snapshots:    make(map[[32]byte]*oracle.Snapshot),
		referrals:    make(map[model.PublicKey]*model.ReferralRegistry),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Authority]; ok {
		return fmt.Errorf("user %s already exists", u.Authority)
	}
	// Store a copy to avoid external mutation.
	cp := *u
	s.users[u.Authority] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, authority model.PublicKey) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[authority]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", authority, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Authority]; !ok {
		return fmt.Errorf("user %s: %w", u.Authority, ErrNotFound)
	}
	cp := *u
	s.users[u.Authority] = &cp
	return nil
}

func (s *MemoryStore) CreateMasterAgent(_ context.Context, m *model.MasterAgent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.masterAgents[m.ID]; ok {
		return fmt.Errorf("master agent %s already exists", m.ID)
	}
	cp := *m
	s.masterAgents[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMasterAgent(_ context.Context, id string) (*model.MasterAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.masterAgents[id]
	if !ok {
		return nil, fmt.Errorf("master agent %s: %w", id, ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMasterAgents(_ context.Context) ([]model.MasterAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]model.MasterAgent, 0, len(s.masterAgents))
	for _, m := range s.masterAgents {
		agents = append(agents, *m)
	}
	return agents, nil
}

func (s *MemoryStore) UpdateMasterAgent(_ context.Context, m *model.MasterAgent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.masterAgents[m.ID]; !ok {
		return fmt.Errorf("master agent %s: %w", m.ID, ErrNotFound)
	}
	cp := *m
	s.masterAgents[m.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateAgent(_ context.Context, a *model.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[a.ID]; ok {
		return fmt.Errorf("agent %s already exists", a.ID)
	}
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAgent(_ context.Context, id string) (*model.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAgentsByOwner(_ context.Context, owner model.PublicKey) ([]model.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Agent
	for _, a := range s.agents {
		if a.Owner == owner {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdateAgent(_ context.Context, a *model.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[a.ID]; !ok {
		return fmt.Errorf("agent %s: %w", a.ID, ErrNotFound)
	}
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *trade.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trades[t.ID]; ok {
		return fmt.Errorf("trade %s already exists", t.ID)
	}
	cp := *t
	s.trades[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTrade(_ context.Context, id string) (*trade.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpdateTrade(_ context.Context, t *trade.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trades[t.ID]; !ok {
		return fmt.Errorf("trade %s: %w", t.ID, ErrNotFound)
	}
	cp := *t
	s.trades[t.ID] = &cp
	return nil
}

func (s *MemoryStore) ListActiveTrades(_ context.Context) ([]trade.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []trade.Trade
	for _, t := range s.trades {
		if t.IsActive() {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (s *MemoryStore) SaveOracleSnapshot(_ context.Context, snap *oracle.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *snap
	s.snapshots[snap.FeedID] = &cp
	return nil
}

func (s *MemoryStore) GetOracleSnapshot(_ context.Context, feedID [32]byte) (*oracle.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[feedID]
	if !ok {
		return nil, fmt.Errorf("oracle snapshot: %w", ErrNotFound)
	}
	cp := *snap
	return &cp, nil
}

func (s *MemoryStore) SaveReferralRegistry(_ context.Context, r *model.ReferralRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	cp.Referred = append([]model.PublicKey(nil), r.Referred...)
	s.referrals[r.Referrer] = &cp
	return nil
}

func (s *MemoryStore) GetReferralRegistry(_ context.Context, referrer model.PublicKey) (*model.ReferralRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.referrals[referrer]
	if !ok {
		return nil, fmt.Errorf("referral registry %s: %w", referrer, ErrNotFound)
	}
	cp := *r
	cp.Referred = append([]model.PublicKey(nil), r.Referred...)
	return &cp, nil
}

func (s *MemoryStore) SaveProtocolConfig(_ context.Context, p *model.ProtocolConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.protocol = &cp
	return nil
}

func (s *MemoryStore) GetProtocolConfig(_ context.Context) (*model.ProtocolConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.protocol == nil {
		return nil, fmt.Errorf("protocol config: %w", ErrNotFound)
	}
	cp := *s.protocol
	return &cp, nil
}
