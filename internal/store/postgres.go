package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tyield/engine/internal/model"
	"github.com/tyield/engine/internal/oracle"
	"github.com/tyield/engine/internal/trade"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// 32-byte keys are stored as hex TEXT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// amount renders a quote-unit value for a NUMERIC column.
func amount(v uint64) string { return decimal.NewFromUint64(v).String() }

// parseAmount reads a NUMERIC column back into a quote-unit value.
func parseAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return strconv.ParseUint(d.String(), 10, 64)
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	history, err := json.Marshal(u.History)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (authority, name, status, agent_count, unclaimed_yield,
		                    referrer, referral_earnings, delegate, history, created_at, last_activity)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7::NUMERIC, $8, $9, $10, $11)`,
		u.Authority.String(), u.Name, uint8(u.Status),
		amount(u.AgentCount), amount(u.UnclaimedYield),
		u.Referrer.String(), amount(u.ReferralEarnings), u.Delegate.String(),
		history, u.CreatedAt, u.LastActivity,
	)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, authority model.PublicKey) (*model.User, error) {
	var (
		u          model.User
		status     uint8
		agentCount string
		unclaimed  string
		referrerS  string
		earnings   string
		delegateS  string
		history    []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT authority, name, status, agent_count::TEXT, unclaimed_yield::TEXT,
		        referrer, referral_earnings::TEXT, delegate, history, created_at, last_activity
		 FROM users WHERE authority = $1`, authority.String()).
		Scan(new(string), &u.Name, &status, &agentCount, &unclaimed,
			&referrerS, &earnings, &delegateS, &history, &u.CreatedAt, &u.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", authority, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", authority, err)
	}

	u.Authority = authority
	u.Status = model.UserStatus(status)
	if u.AgentCount, err = parseAmount(agentCount); err != nil {
		return nil, err
	}
	if u.UnclaimedYield, err = parseAmount(unclaimed); err != nil {
		return nil, err
	}
	if u.ReferralEarnings, err = parseAmount(earnings); err != nil {
		return nil, err
	}
	if u.Referrer, err = model.ParsePublicKey(referrerS); err != nil {
		return nil, err
	}
	if u.Delegate, err = model.ParsePublicKey(delegateS); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(history, &u.History); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u *model.User) error {
	history, err := json.Marshal(u.History)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users
		 SET name = $2, status = $3, agent_count = $4::NUMERIC, unclaimed_yield = $5::NUMERIC,
		     referrer = $6, referral_earnings = $7::NUMERIC, delegate = $8,
		     history = $9, last_activity = $10
		 WHERE authority = $1`,
		u.Authority.String(), u.Name, uint8(u.Status),
		amount(u.AgentCount), amount(u.UnclaimedYield),
		u.Referrer.String(), amount(u.ReferralEarnings), u.Delegate.String(),
		history, u.LastActivity,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", u.Authority, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CreateMasterAgent(ctx context.Context, m *model.MasterAgent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO master_agents (id, authority, mint, price, w_yield, max_supply, agent_count,
		                            trade_count, completed_trades, total_pnl, trading_status,
		                            auto_relist, buy_tax_bps, sell_tax_bps, max_tax_bps,
		                            created_at, last_updated, last_price_update)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6::NUMERIC, $7::NUMERIC,
		         $8::NUMERIC, $9::NUMERIC, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		m.ID, m.Authority.String(), m.Mint.String(),
		amount(m.Price), m.WYield, amount(m.MaxSupply), amount(m.AgentCount),
		amount(m.TradeCount), amount(m.CompletedTrades), m.TotalPnL, uint8(m.TradingStatus),
		m.AutoRelist, m.Tax.BuyTaxBps, m.Tax.SellTaxBps, m.Tax.MaxTaxBps,
		m.CreatedAt, m.LastUpdated, m.LastPriceUpdate,
	)
	return err
}

const masterAgentColumns = `id, authority, mint, price::TEXT, w_yield, max_supply::TEXT,
	agent_count::TEXT, trade_count::TEXT, completed_trades::TEXT, total_pnl, trading_status,
	auto_relist, buy_tax_bps, sell_tax_bps, max_tax_bps, created_at, last_updated, last_price_update`

func scanMasterAgent(row pgx.Row) (*model.MasterAgent, error) {
	var (
		m             model.MasterAgent
		authorityS    string
		mintS         string
		price         string
		maxSupply     string
		agentCount    string
		tradeCount    string
		completed     string
		tradingStatus uint8
	)
	err := row.Scan(&m.ID, &authorityS, &mintS, &price, &m.WYield, &maxSupply,
		&agentCount, &tradeCount, &completed, &m.TotalPnL, &tradingStatus,
		&m.AutoRelist, &m.Tax.BuyTaxBps, &m.Tax.SellTaxBps, &m.Tax.MaxTaxBps,
		&m.CreatedAt, &m.LastUpdated, &m.LastPriceUpdate)
	if err != nil {
		return nil, err
	}

	m.TradingStatus = model.TradingStatus(tradingStatus)
	if m.Authority, err = model.ParsePublicKey(authorityS); err != nil {
		return nil, err
	}
	if m.Mint, err = model.ParsePublicKey(mintS); err != nil {
		return nil, err
	}
	if m.Price, err = parseAmount(price); err != nil {
		return nil, err
	}
	if m.MaxSupply, err = parseAmount(maxSupply); err != nil {
		return nil, err
	}
	if m.AgentCount, err = parseAmount(agentCount); err != nil {
		return nil, err
	}
	if m.TradeCount, err = parseAmount(tradeCount); err != nil {
		return nil, err
	}
	if m.CompletedTrades, err = parseAmount(completed); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) GetMasterAgent(ctx context.Context, id string) (*model.MasterAgent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+masterAgentColumns+` FROM master_agents WHERE id = $1`, id)
	m, err := scanMasterAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("master agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get master agent %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMasterAgents(ctx context.Context) ([]model.MasterAgent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+masterAgentColumns+` FROM master_agents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []model.MasterAgent
	for rows.Next() {
		m, err := scanMasterAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *m)
	}
	return agents, rows.Err()
}

func (s *PostgresStore) UpdateMasterAgent(ctx context.Context, m *model.MasterAgent) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE master_agents
		 SET price = $2::NUMERIC, w_yield = $3, max_supply = $4::NUMERIC, agent_count = $5::NUMERIC,
		     trade_count = $6::NUMERIC, completed_trades = $7::NUMERIC, total_pnl = $8,
		     trading_status = $9, auto_relist = $10, buy_tax_bps = $11, sell_tax_bps = $12,
		     max_tax_bps = $13, last_updated = $14, last_price_update = $15
		 WHERE id = $1`,
		m.ID, amount(m.Price), m.WYield, amount(m.MaxSupply), amount(m.AgentCount),
		amount(m.TradeCount), amount(m.CompletedTrades), m.TotalPnL,
		uint8(m.TradingStatus), m.AutoRelist, m.Tax.BuyTaxBps, m.Tax.SellTaxBps,
		m.Tax.MaxTaxBps, m.LastUpdated, m.LastPriceUpdate,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("master agent %s: %w", m.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CreateAgent(ctx context.Context, a *model.Agent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agents (id, master_agent, mint, owner, booster, listed, created_at, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.MasterAgent.String(), a.Mint.String(), a.Owner.String(),
		a.Booster, a.Listed, a.CreatedAt, a.LastUpdated,
	)
	return err
}

func scanAgent(row pgx.Row) (*model.Agent, error) {
	var (
		a       model.Agent
		masterS string
		mintS   string
		ownerS  string
	)
	err := row.Scan(&a.ID, &masterS, &mintS, &ownerS, &a.Booster, &a.Listed,
		&a.CreatedAt, &a.LastUpdated)
	if err != nil {
		return nil, err
	}
	if a.MasterAgent, err = model.ParsePublicKey(masterS); err != nil {
		return nil, err
	}
	if a.Mint, err = model.ParsePublicKey(mintS); err != nil {
		return nil, err
	}
	if a.Owner, err = model.ParsePublicKey(ownerS); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, master_agent, mint, owner, booster, listed, created_at, last_updated
		 FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAgentsByOwner(ctx context.Context, owner model.PublicKey) ([]model.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, master_agent, mint, owner, booster, listed, created_at, last_updated
		 FROM agents WHERE owner = $1 ORDER BY created_at`, owner.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

func (s *PostgresStore) UpdateAgent(ctx context.Context, a *model.Agent) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents
		 SET owner = $2, booster = $3, listed = $4, last_updated = $5
		 WHERE id = $1`,
		a.ID, a.Owner.String(), a.Booster, a.Listed, a.LastUpdated,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *trade.Trade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, master_agent, authority, feed_id, pair, size, entry_price,
		                     take_profit, stop_loss, status, trade_type, result,
		                     created_at, updated_at, last_price_update,
		                     oracle_consensus_count, circuit_breaker_tripped)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC,
		         $10, $11, $12, $13, $14, $15, $16, $17)`,
		t.ID, hexKey(t.MasterAgent), hexKey(t.Authority), t.FeedIDString(), t.PairString(),
		amount(t.Size), amount(t.EntryPrice), amount(t.TakeProfit), amount(t.StopLoss),
		uint8(t.Status), uint8(t.Type), uint8(t.Result),
		t.CreatedAt, t.UpdatedAt, t.LastPriceUpdate,
		t.OracleConsensusCount, t.CircuitBreakerTripped,
	)
	return err
}

const tradeColumns = `id, master_agent, authority, feed_id, pair, size::TEXT, entry_price::TEXT,
	take_profit::TEXT, stop_loss::TEXT, status, trade_type, result,
	created_at, updated_at, last_price_update, oracle_consensus_count, circuit_breaker_tripped`

func scanTrade(row pgx.Row) (*trade.Trade, error) {
	var (
		t          trade.Trade
		masterS    string
		authorityS string
		feedS      string
		pairS      string
		size       string
		entry      string
		takeProfit string
		stopLoss   string
		status     uint8
		tradeType  uint8
		result     uint8
	)
	err := row.Scan(&t.ID, &masterS, &authorityS, &feedS, &pairS, &size, &entry,
		&takeProfit, &stopLoss, &status, &tradeType, &result,
		&t.CreatedAt, &t.UpdatedAt, &t.LastPriceUpdate,
		&t.OracleConsensusCount, &t.CircuitBreakerTripped)
	if err != nil {
		return nil, err
	}

	t.Status = trade.Status(status)
	t.Type = trade.Type(tradeType)
	t.Result = trade.Result(result)
	if t.MasterAgent, err = parseHexKey(masterS); err != nil {
		return nil, err
	}
	if t.Authority, err = parseHexKey(authorityS); err != nil {
		return nil, err
	}
	if t.FeedID, err = parseHexKey(feedS); err != nil {
		return nil, err
	}
	copy(t.Pair[:], pairS)
	if t.Size, err = parseAmount(size); err != nil {
		return nil, err
	}
	if t.EntryPrice, err = parseAmount(entry); err != nil {
		return nil, err
	}
	if t.TakeProfit, err = parseAmount(takeProfit); err != nil {
		return nil, err
	}
	if t.StopLoss, err = parseAmount(stopLoss); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) GetTrade(ctx context.Context, id string) (*trade.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTrade(ctx context.Context, t *trade.Trade) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trades
		 SET size = $2::NUMERIC, entry_price = $3::NUMERIC, take_profit = $4::NUMERIC,
		     stop_loss = $5::NUMERIC, status = $6, trade_type = $7, result = $8,
		     updated_at = $9, last_price_update = $10,
		     oracle_consensus_count = $11, circuit_breaker_tripped = $12
		 WHERE id = $1`,
		t.ID, amount(t.Size), amount(t.EntryPrice), amount(t.TakeProfit), amount(t.StopLoss),
		uint8(t.Status), uint8(t.Type), uint8(t.Result),
		t.UpdatedAt, t.LastPriceUpdate, t.OracleConsensusCount, t.CircuitBreakerTripped,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListActiveTrades(ctx context.Context) ([]trade.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE status = $1 ORDER BY created_at`,
		uint8(trade.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []trade.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) SaveOracleSnapshot(ctx context.Context, snap *oracle.Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO oracle_snapshots (feed_id, authority, price, conf, ema, exponent,
		                               publish_time, update_count, max_deviation_bps)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7, $8::NUMERIC, $9)
		 ON CONFLICT (feed_id) DO UPDATE
		 SET price = EXCLUDED.price, conf = EXCLUDED.conf, ema = EXCLUDED.ema,
		     exponent = EXCLUDED.exponent, publish_time = EXCLUDED.publish_time,
		     update_count = EXCLUDED.update_count, max_deviation_bps = EXCLUDED.max_deviation_bps`,
		hexKey(snap.FeedID), hexKey(snap.Authority),
		amount(snap.Price), amount(snap.Conf), amount(snap.EMA), snap.Exponent,
		snap.PublishTime, amount(snap.UpdateCount), snap.MaxDeviationBps,
	)
	return err
}

func (s *PostgresStore) GetOracleSnapshot(ctx context.Context, feedID [32]byte) (*oracle.Snapshot, error) {
	var (
		snap       oracle.Snapshot
		authorityS string
		price      string
		conf       string
		ema        string
		count      string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT authority, price::TEXT, conf::TEXT, ema::TEXT, exponent,
		        publish_time, update_count::TEXT, max_deviation_bps
		 FROM oracle_snapshots WHERE feed_id = $1`, hexKey(feedID)).
		Scan(&authorityS, &price, &conf, &ema, &snap.Exponent,
			&snap.PublishTime, &count, &snap.MaxDeviationBps)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("oracle snapshot: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get oracle snapshot: %w", err)
	}

	snap.FeedID = feedID
	if snap.Authority, err = parseHexKey(authorityS); err != nil {
		return nil, err
	}
	if snap.Price, err = parseAmount(price); err != nil {
		return nil, err
	}
	if snap.Conf, err = parseAmount(conf); err != nil {
		return nil, err
	}
	if snap.EMA, err = parseAmount(ema); err != nil {
		return nil, err
	}
	if snap.UpdateCount, err = parseAmount(count); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *PostgresStore) SaveReferralRegistry(ctx context.Context, r *model.ReferralRegistry) error {
	referred, err := json.Marshal(r.Referred)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO referral_registries (referrer, claimed_earnings, unclaimed_earnings,
		                                  referred, created_at, updated_at, last_earning_claim)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4, $5, $6, $7)
		 ON CONFLICT (referrer) DO UPDATE
		 SET claimed_earnings = EXCLUDED.claimed_earnings,
		     unclaimed_earnings = EXCLUDED.unclaimed_earnings,
		     referred = EXCLUDED.referred, updated_at = EXCLUDED.updated_at,
		     last_earning_claim = EXCLUDED.last_earning_claim`,
		r.Referrer.String(), amount(r.ClaimedEarnings), amount(r.UnclaimedEarnings),
		referred, r.CreatedAt, r.UpdatedAt, r.LastEarningClaim,
	)
	return err
}

func (s *PostgresStore) GetReferralRegistry(ctx context.Context, referrer model.PublicKey) (*model.ReferralRegistry, error) {
	var (
		r         model.ReferralRegistry
		claimed   string
		unclaimed string
		referred  []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT claimed_earnings::TEXT, unclaimed_earnings::TEXT, referred,
		        created_at, updated_at, last_earning_claim
		 FROM referral_registries WHERE referrer = $1`, referrer.String()).
		Scan(&claimed, &unclaimed, &referred, &r.CreatedAt, &r.UpdatedAt, &r.LastEarningClaim)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("referral registry %s: %w", referrer, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get referral registry %s: %w", referrer, err)
	}

	r.Referrer = referrer
	if r.ClaimedEarnings, err = parseAmount(claimed); err != nil {
		return nil, err
	}
	if r.UnclaimedEarnings, err = parseAmount(unclaimed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(referred, &r.Referred); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) SaveProtocolConfig(ctx context.Context, p *model.ProtocolConfig) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO protocol_config (id, config) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config`,
		payload,
	)
	return err
}

func (s *PostgresStore) GetProtocolConfig(ctx context.Context) (*model.ProtocolConfig, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT config FROM protocol_config WHERE id = 1`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("protocol config: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get protocol config: %w", err)
	}

	var p model.ProtocolConfig
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func hexKey(k [32]byte) string {
	return model.PublicKey(k).String()
}

func parseHexKey(s string) ([32]byte, error) {
	k, err := model.ParsePublicKey(s)
	return [32]byte(k), err
}
