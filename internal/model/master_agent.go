package model

import (
	"github.com/tyield/engine/internal/safemath"
)

// TradingStatus controls who may buy agents from a master agent.
type TradingStatus uint8

const (
	TradingWhitelist TradingStatus = 1
	TradingPublic    TradingStatus = 2
)

// Price-update policy: increases only, at most once every 36 hours, and at
// most 10% (price) / 5% (yield) per update.
const (
	MinUpdateIntervalSec int64  = 129_600
	MaxPriceIncreaseBps  uint64 = 11_000
	MaxYieldIncreaseBps  uint64 = 10_500
	priceIncreaseBase    uint64 = 10_000
)

// TaxConfig carries the bps taxes applied to agent purchases and sales.
type TaxConfig struct {
	BuyTaxBps  uint64 `json:"buy_tax_bps"`
	SellTaxBps uint64 `json:"sell_tax_bps"`
	MaxTaxBps  uint64 `json:"max_tax_bps"`
}

// DefaultTaxConfig is 2.5% each way, capped at 10%.
func DefaultTaxConfig() TaxConfig {
	return TaxConfig{BuyTaxBps: 250, SellTaxBps: 250, MaxTaxBps: 1000}
}

// MasterAgent is the supply anchor for a family of tradeable agents: it
// prices them, accrues their yield, and caps how many can exist.
type MasterAgent struct {
	ID        string    `json:"id"`
	Authority PublicKey `json:"authority"`
	Mint      PublicKey `json:"mint"`

	// Price in quote units and yield rate in bps of price.
	Price  uint64 `json:"price"`
	WYield uint64 `json:"w_yield"`

	MaxSupply  uint64 `json:"max_supply"`
	AgentCount uint64 `json:"agent_count"`

	TradeCount      uint64 `json:"trade_count"`
	CompletedTrades uint64 `json:"completed_trades"`
	TotalPnL        int64  `json:"total_pnl"`

	TradingStatus TradingStatus `json:"trading_status"`
	AutoRelist    bool          `json:"auto_relist"`
	Tax           TaxConfig     `json:"tax"`

	CreatedAt       int64 `json:"created_at"`
	LastUpdated     int64 `json:"last_updated"`
	LastPriceUpdate int64 `json:"last_price_update"`
}

// NewMasterAgent mints a master agent record and validates it.
func NewMasterAgent(id string, authority, mint PublicKey, price, wYield, maxSupply uint64, now int64) (*MasterAgent, error) {
	m := &MasterAgent{
		ID:            id,
		Authority:     authority,
		Mint:          mint,
		Price:         price,
		WYield:        wYield,
		MaxSupply:     maxSupply,
		TradingStatus: TradingWhitelist,
		AutoRelist:    true,
		Tax:           DefaultTaxConfig(),
		CreatedAt:     now,
		LastUpdated:   now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdatePrice applies the increase-only, rate-limited price policy.
func (m *MasterAgent) UpdatePrice(newPrice uint64, now int64, authority PublicKey) error {
	if authority != m.Authority {
		return ErrInvalidAuthority
	}
	if newPrice == 0 {
		return ErrInvalidPrice
	}
	if newPrice <= m.Price {
		return ErrInvalidParameter
	}
	elapsed, err := safemath.Sub(now, m.LastUpdated)
	if err != nil {
		return err
	}
	if elapsed < MinUpdateIntervalSec {
		return ErrPriceUpdateTooSoon
	}
	maxAllowed, err := safemath.MulDiv(m.Price, MaxPriceIncreaseBps, priceIncreaseBase)
	if err != nil {
		return err
	}
	if newPrice > maxAllowed {
		return ErrPriceUpdateTooHigh
	}
	m.Price = newPrice
	m.LastUpdated = now
	m.LastPriceUpdate = now
	return nil
}

// UpdateYield applies the same rate-limit policy to the yield rate, which
// additionally may never exceed 100%.
func (m *MasterAgent) UpdateYield(newYield uint64, now int64, authority PublicKey) error {
	if authority != m.Authority {
		return ErrInvalidAuthority
	}
	if newYield == 0 || newYield > safemath.PercentagePrecision {
		return ErrInvalidParameter
	}
	elapsed, err := safemath.Sub(now, m.LastUpdated)
	if err != nil {
		return err
	}
	if elapsed < MinUpdateIntervalSec {
		return ErrPriceUpdateTooSoon
	}
	maxAllowed, err := safemath.MulDiv(m.WYield, MaxYieldIncreaseBps, priceIncreaseBase)
	if err != nil {
		return err
	}
	if newYield > maxAllowed {
		return ErrPriceUpdateTooHigh
	}
	m.WYield = newYield
	m.LastUpdated = now
	return nil
}

// UpdateMaxSupply rejects caps below the circulating count.
func (m *MasterAgent) UpdateMaxSupply(newMax uint64, now int64) error {
	if newMax < m.AgentCount {
		return ErrInvalidParameter
	}
	m.MaxSupply = newMax
	m.LastUpdated = now
	return nil
}

// AddAgent mints one agent against the supply cap.
func (m *MasterAgent) AddAgent(now int64) error {
	if m.AgentCount >= m.MaxSupply {
		return ErrInsufficientFunds
	}
	count, err := safemath.Add(m.AgentCount, 1)
	if err != nil {
		return err
	}
	m.AgentCount = count
	m.LastUpdated = now
	return nil
}

// RemoveAgent burns one agent; the count can never go negative.
func (m *MasterAgent) RemoveAgent(now int64) error {
	if m.AgentCount == 0 {
		return ErrInsufficientFunds
	}
	count, err := safemath.Sub(m.AgentCount, 1)
	if err != nil {
		return err
	}
	m.AgentCount = count
	m.LastUpdated = now
	return nil
}

// IncrementTradeCount records that a trade was opened under this master.
func (m *MasterAgent) IncrementTradeCount(now int64) error {
	count, err := safemath.Add(m.TradeCount, 1)
	if err != nil {
		return err
	}
	m.TradeCount = count
	m.LastUpdated = now
	return nil
}

// RecordCompletedTrade folds a closed trade's PnL into the aggregates.
func (m *MasterAgent) RecordCompletedTrade(pnl int64, now int64) error {
	completed, err := safemath.Add(m.CompletedTrades, 1)
	if err != nil {
		return err
	}
	total, err := safemath.Add(m.TotalPnL, pnl)
	if err != nil {
		return err
	}
	m.CompletedTrades = completed
	m.TotalPnL = total
	m.LastUpdated = now
	return nil
}

// YieldAmount is the per-agent yield: price * w_yield / 10000.
func (m *MasterAgent) YieldAmount() (uint64, error) {
	return safemath.MulDiv(m.Price, m.WYield, safemath.PercentagePrecision)
}

// BuyPriceWithTax returns (total, tax, base) for one agent purchase.
func (m *MasterAgent) BuyPriceWithTax() (total, tax, base uint64, err error) {
	if m.Tax.BuyTaxBps > m.Tax.MaxTaxBps {
		return 0, 0, 0, ErrInvalidParameter
	}
	base = m.Price
	tax, err = safemath.MulDiv(base, m.Tax.BuyTaxBps, safemath.PercentagePrecision)
	if err != nil {
		return 0, 0, 0, err
	}
	total, err = safemath.Add(base, tax)
	if err != nil {
		return 0, 0, 0, err
	}
	return total, tax, base, nil
}

// SellPriceWithTax returns (net, tax, base) for one agent sale.
func (m *MasterAgent) SellPriceWithTax() (net, tax, base uint64, err error) {
	if m.Tax.SellTaxBps > m.Tax.MaxTaxBps {
		return 0, 0, 0, ErrInvalidParameter
	}
	base = m.Price
	tax, err = safemath.MulDiv(base, m.Tax.SellTaxBps, safemath.PercentagePrecision)
	if err != nil {
		return 0, 0, 0, err
	}
	net, err = safemath.Sub(base, tax)
	if err != nil {
		return 0, 0, 0, err
	}
	return net, tax, base, nil
}

// BuyForQuoteAmount converts a quote-currency budget into whole agents.
// Returns (agents, taxPaid, baseAmount).
func (m *MasterAgent) BuyForQuoteAmount(quoteAmount uint64) (uint64, uint64, uint64, error) {
	if quoteAmount == 0 {
		return 0, 0, 0, ErrInvalidPrice
	}
	total, taxPer, basePer, err := m.BuyPriceWithTax()
	if err != nil {
		return 0, 0, 0, err
	}
	agents, err := safemath.Div(quoteAmount, total)
	if err != nil {
		return 0, 0, 0, err
	}
	taxPaid, err := safemath.Mul(agents, taxPer)
	if err != nil {
		return 0, 0, 0, err
	}
	baseAmount, err := safemath.Mul(agents, basePer)
	if err != nil {
		return 0, 0, 0, err
	}
	return agents, taxPaid, baseAmount, nil
}

// SellForAgentAmount converts a number of agents into quote proceeds.
// Returns (quoteReceived, taxPaid, baseAmount).
func (m *MasterAgent) SellForAgentAmount(agents uint64) (uint64, uint64, uint64, error) {
	if agents == 0 {
		return 0, 0, 0, ErrInvalidPrice
	}
	netPer, taxPer, basePer, err := m.SellPriceWithTax()
	if err != nil {
		return 0, 0, 0, err
	}
	received, err := safemath.Mul(agents, netPer)
	if err != nil {
		return 0, 0, 0, err
	}
	taxPaid, err := safemath.Mul(agents, taxPer)
	if err != nil {
		return 0, 0, 0, err
	}
	baseAmount, err := safemath.Mul(agents, basePer)
	if err != nil {
		return 0, 0, 0, err
	}
	return received, taxPaid, baseAmount, nil
}

// SetTradingStatus switches between whitelist-only and public trading.
func (m *MasterAgent) SetTradingStatus(status TradingStatus, authority PublicKey, now int64) error {
	if authority != m.Authority {
		return ErrInvalidAuthority
	}
	if status != TradingWhitelist && status != TradingPublic {
		return ErrCannotPerformAction
	}
	m.TradingStatus = status
	m.LastUpdated = now
	return nil
}

// SetAutoRelist toggles automatic relisting of sold agents.
func (m *MasterAgent) SetAutoRelist(autoRelist bool, now int64) {
	m.AutoRelist = autoRelist
	m.LastUpdated = now
}

// CanBeAccessedBy reports whether a user may buy under the current mode.
func (m *MasterAgent) CanBeAccessedBy(userWhitelisted bool) bool {
	if m.TradingStatus == TradingWhitelist {
		return userWhitelisted
	}
	return true
}

// IsSupplyFull reports whether every agent has been minted.
func (m *MasterAgent) IsSupplyFull() bool { return m.AgentCount >= m.MaxSupply }

// RemainingSupply is the number of agents still mintable.
func (m *MasterAgent) RemainingSupply() uint64 {
	if m.AgentCount >= m.MaxSupply {
		return 0
	}
	return m.MaxSupply - m.AgentCount
}

// TotalValueLocked is the circulating supply at the current price.
func (m *MasterAgent) TotalValueLocked() (uint64, error) {
	return safemath.Mul(m.AgentCount, m.Price)
}

// Validate checks the structural invariants of the record.
func (m *MasterAgent) Validate() error {
	if m.Authority.IsZero() {
		return ErrInvalidAuthority
	}
	if m.Mint.IsZero() {
		return ErrInvalidAccount
	}
	if m.Price == 0 {
		return ErrInvalidPrice
	}
	if m.WYield > safemath.PercentagePrecision {
		return ErrInvalidParameter
	}
	if m.MaxSupply == 0 {
		return ErrInvalidParameter
	}
	if m.AgentCount > m.MaxSupply {
		return ErrInvalidParameter
	}
	if m.CreatedAt <= 0 {
		return ErrInvalidAccount
	}
	if m.LastUpdated < m.CreatedAt {
		return ErrInvalidAccount
	}
	if m.TradingStatus != TradingWhitelist && m.TradingStatus != TradingPublic {
		return ErrCannotPerformAction
	}
	return nil
}
