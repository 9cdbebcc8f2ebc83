package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyield/engine/internal/safemath"
)

const t0 int64 = 1_700_000_000

func key(b byte) PublicKey {
	var k PublicKey
	k[0] = b
	return k
}

func newTestUser(t *testing.T) *User {
	t.Helper()
	u, err := NewUser(key(1), "alice", t0)
	require.NoError(t, err)
	return u
}

func newTestMaster(t *testing.T) *MasterAgent {
	t.Helper()
	m, err := NewMasterAgent("ma-1", key(2), key(3), 1_000_000, 500, 10, t0)
	require.NoError(t, err)
	return m
}

func TestParsePublicKey(t *testing.T) {
	k := key(0xab)
	parsed, err := ParsePublicKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	parsed, err = ParsePublicKey("0x" + k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParsePublicKey("zzzz")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ParsePublicKey("abcd")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestPublicKeyJSON(t *testing.T) {
	k := key(7)
	raw, err := json.Marshal(k)
	require.NoError(t, err)

	var back PublicKey
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, k, back)
}

func TestNewUserStartsBannedAndActive(t *testing.T) {
	u := newTestUser(t)

	assert.True(t, u.HasStatus(StatusBanned))
	assert.True(t, u.HasStatus(StatusActive))
	assert.False(t, u.CanPerformActions())

	u.Unban()
	assert.False(t, u.HasStatus(StatusBanned))
	assert.True(t, u.HasStatus(StatusActive))
	assert.True(t, u.CanPerformActions())
}

func TestBanStripsActiveAndWhitelist(t *testing.T) {
	u := newTestUser(t)
	u.Unban()
	require.NoError(t, u.Whitelist())
	require.True(t, u.IsWhitelisted())

	u.Ban()
	assert.False(t, u.HasStatus(StatusActive))
	assert.False(t, u.IsWhitelisted())
	assert.True(t, u.HasStatus(StatusBanned))

	// Banned users cannot gain flags until unbanned.
	assert.ErrorIs(t, u.Whitelist(), ErrCannotPerformAction)
}

func TestClaimYield(t *testing.T) {
	u := newTestUser(t)
	u.Unban()

	require.NoError(t, u.AddUnclaimedYield(50_000, t0+1))
	assert.ErrorIs(t, u.ClaimYield(60_000, t0+2), ErrInsufficientFunds)
	assert.ErrorIs(t, u.ClaimYield(0, t0+2), ErrInvalidParameter)

	require.NoError(t, u.ClaimYield(20_000, t0+3))
	assert.Equal(t, uint64(30_000), u.UnclaimedYield)
	assert.Equal(t, uint64(20_000), u.History.TotalYieldClaimed)

	lifetime, err := u.LifetimeYieldEarned()
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000), lifetime)

	rate, err := u.YieldClaimRate()
	require.NoError(t, err)
	assert.Equal(t, uint64(400_000), rate) // 40% of QuotePrecision
}

func TestClaimYieldRequiresActiveUser(t *testing.T) {
	u := newTestUser(t)
	require.NoError(t, u.AddUnclaimedYield(1000, t0+1))
	assert.ErrorIs(t, u.ClaimYield(1000, t0+2), ErrCannotPerformAction)
}

func TestSetReferrer(t *testing.T) {
	u := newTestUser(t)

	assert.ErrorIs(t, u.SetReferrer(PublicKey{}, t0+1), ErrInvalidReferrer)
	assert.ErrorIs(t, u.SetReferrer(u.Authority, t0+1), ErrInvalidReferrer)

	require.NoError(t, u.SetReferrer(key(9), t0+1))
	assert.ErrorIs(t, u.SetReferrer(key(10), t0+2), ErrInvalidReferrer)
	assert.Equal(t, key(9), u.Referrer)
}

func TestSetName(t *testing.T) {
	u := newTestUser(t)

	assert.ErrorIs(t, u.SetName("", t0+1), ErrInvalidAccount)
	assert.ErrorIs(t, u.SetName("0123456789abcdef", t0+1), ErrInvalidAccount)
	require.NoError(t, u.SetName("0123456789abcde", t0+1))
}

func TestUserAgentAccounting(t *testing.T) {
	u := newTestUser(t)
	u.Unban()

	require.NoError(t, u.AddAgent(t0+1))
	require.NoError(t, u.AddAgent(t0+2))
	require.NoError(t, u.RemoveAgent(t0+3))
	assert.Equal(t, uint64(1), u.AgentCount)
	assert.Equal(t, uint64(2), u.History.TotalAgentsBought)
	assert.Equal(t, uint64(1), u.History.TotalAgentsSold)

	require.NoError(t, u.RemoveAgent(t0+4))
	assert.ErrorIs(t, u.RemoveAgent(t0+5), ErrInsufficientFunds)
}

func TestYieldAmount(t *testing.T) {
	m := newTestMaster(t)

	got, err := m.YieldAmount()
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000), got)

	m.WYield = 1000
	got, err = m.YieldAmount()
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000), got)
}

func TestUpdatePricePolicy(t *testing.T) {
	m := newTestMaster(t)
	later := t0 + MinUpdateIntervalSec

	assert.ErrorIs(t, m.UpdatePrice(1_100_000, later, key(99)), ErrInvalidAuthority)
	assert.ErrorIs(t, m.UpdatePrice(0, later, key(2)), ErrInvalidPrice)
	assert.ErrorIs(t, m.UpdatePrice(1_000_000, later, key(2)), ErrInvalidParameter)
	assert.ErrorIs(t, m.UpdatePrice(1_050_000, later-1, key(2)), ErrPriceUpdateTooSoon)
	assert.ErrorIs(t, m.UpdatePrice(1_100_001, later, key(2)), ErrPriceUpdateTooHigh)

	require.NoError(t, m.UpdatePrice(1_100_000, later, key(2)))
	assert.Equal(t, uint64(1_100_000), m.Price)
	assert.Equal(t, later, m.LastPriceUpdate)
}

func TestUpdateYieldPolicy(t *testing.T) {
	m := newTestMaster(t)
	later := t0 + MinUpdateIntervalSec

	assert.ErrorIs(t, m.UpdateYield(0, later, key(2)), ErrInvalidParameter)
	assert.ErrorIs(t, m.UpdateYield(10_001, later, key(2)), ErrInvalidParameter)
	assert.ErrorIs(t, m.UpdateYield(526, later, key(2)), ErrPriceUpdateTooHigh)

	require.NoError(t, m.UpdateYield(525, later, key(2)))
	assert.Equal(t, uint64(525), m.WYield)
}

func TestSupplyInvariant(t *testing.T) {
	m, err := NewMasterAgent("ma-2", key(2), key(3), 1_000_000, 500, 2, t0)
	require.NoError(t, err)

	require.NoError(t, m.AddAgent(t0+1))
	require.NoError(t, m.AddAgent(t0+2))
	assert.True(t, m.IsSupplyFull())
	assert.ErrorIs(t, m.AddAgent(t0+3), ErrInsufficientFunds)

	assert.ErrorIs(t, m.UpdateMaxSupply(1, t0+4), ErrInvalidParameter)
	require.NoError(t, m.UpdateMaxSupply(3, t0+4))
	assert.Equal(t, uint64(1), m.RemainingSupply())

	require.NoError(t, m.RemoveAgent(t0+5))
	require.NoError(t, m.RemoveAgent(t0+6))
	assert.ErrorIs(t, m.RemoveAgent(t0+7), ErrInsufficientFunds)
}

func TestBuySellTaxDecomposition(t *testing.T) {
	m := newTestMaster(t)

	total, tax, base, err := m.BuyPriceWithTax()
	require.NoError(t, err)
	assert.Equal(t, uint64(1_025_000), total)
	assert.Equal(t, uint64(25_000), tax)
	assert.Equal(t, uint64(1_000_000), base)

	net, tax, base, err := m.SellPriceWithTax()
	require.NoError(t, err)
	assert.Equal(t, uint64(975_000), net)
	assert.Equal(t, uint64(25_000), tax)
	assert.Equal(t, uint64(1_000_000), base)
}

func TestBuyForQuoteAmount(t *testing.T) {
	m := newTestMaster(t)

	agents, taxPaid, baseAmount, err := m.BuyForQuoteAmount(2_100_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), agents)
	assert.Equal(t, uint64(50_000), taxPaid)
	assert.Equal(t, uint64(2_000_000), baseAmount)

	_, _, _, err = m.BuyForQuoteAmount(0)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestTaxAboveBoundRejected(t *testing.T) {
	m := newTestMaster(t)
	m.Tax.BuyTaxBps = 1500

	_, _, _, err := m.BuyPriceWithTax()
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestTradingStatusGate(t *testing.T) {
	m := newTestMaster(t)

	assert.True(t, m.CanBeAccessedBy(true))
	assert.False(t, m.CanBeAccessedBy(false))

	require.NoError(t, m.SetTradingStatus(TradingPublic, key(2), t0+1))
	assert.True(t, m.CanBeAccessedBy(false))

	assert.ErrorIs(t, m.SetTradingStatus(TradingPublic, key(99), t0+2), ErrInvalidAuthority)
	assert.ErrorIs(t, m.SetTradingStatus(TradingStatus(7), key(2), t0+2), ErrCannotPerformAction)
}

func TestTotalValueLocked(t *testing.T) {
	m := newTestMaster(t)
	require.NoError(t, m.AddAgent(t0+1))
	require.NoError(t, m.AddAgent(t0+2))

	tvl, err := m.TotalValueLocked()
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), tvl)
}

func TestAgentLifecycle(t *testing.T) {
	a, err := NewAgent("ag-1", key(2), key(4), key(1), 15_000, t0)
	require.NoError(t, err)
	assert.True(t, a.Listed)

	assert.ErrorIs(t, a.List(t0+1), ErrCannotPerformAction)
	require.NoError(t, a.Unlist(t0+2))
	assert.ErrorIs(t, a.Unlist(t0+3), ErrCannotPerformAction)
	require.NoError(t, a.ToggleListing(t0+4))
	assert.True(t, a.Listed)

	assert.ErrorIs(t, a.Transfer(PublicKey{}, t0+5), ErrInvalidAccount)
	require.NoError(t, a.Transfer(key(8), t0+5))
	assert.True(t, a.IsOwnedBy(key(8)))

	boosted, err := a.BoostedYield(50_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(75_000), boosted)

	assert.ErrorIs(t, a.UpdateBooster(0, t0+6), ErrInvalidParameter)
}

func TestAgentValidation(t *testing.T) {
	_, err := NewAgent("ag-2", PublicKey{}, key(4), key(1), 10_000, t0)
	assert.ErrorIs(t, err, ErrInvalidAccount)

	_, err = NewAgent("ag-3", key(2), key(4), key(1), 0, t0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestReferralRegistry(t *testing.T) {
	r, err := NewReferralRegistry(key(1), t0)
	require.NoError(t, err)

	require.NoError(t, r.AddReferredUser(key(2), t0+1))
	assert.ErrorIs(t, r.AddReferredUser(key(2), t0+2), ErrInvalidReferrer)
	assert.ErrorIs(t, r.AddReferredUser(key(1), t0+2), ErrInvalidReferrer)
	assert.Equal(t, 1, r.ReferredCount())
	assert.True(t, r.HasReferred(key(2)))

	require.NoError(t, r.AddUnclaimedEarnings(10_000, t0+3))
	assert.ErrorIs(t, r.ClaimEarnings(20_000, t0+4), ErrInsufficientFunds)
	require.NoError(t, r.ClaimEarnings(4_000, t0+5))
	assert.Equal(t, uint64(4_000), r.ClaimedEarnings)
	assert.Equal(t, uint64(6_000), r.UnclaimedEarnings)

	total, err := r.TotalEarnings()
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), total)
}

func TestReferralRegistryCap(t *testing.T) {
	r, err := NewReferralRegistry(key(1), t0)
	require.NoError(t, err)

	for i := 0; i < MaxReferredUsers; i++ {
		var k PublicKey
		k[0] = byte(i + 2)
		k[1] = byte((i + 2) >> 8)
		require.NoError(t, r.AddReferredUser(k, t0+int64(i)))
	}
	assert.ErrorIs(t, r.AddReferredUser(key(255), t0+200), ErrReferralLimitReached)
}

func TestProtocolSecurityState(t *testing.T) {
	p := DefaultProtocolConfig(key(1), key(2), t0)
	now := t0 + 1000

	require.NoError(t, p.ValidateSecurityState(now))

	p.Pause()
	assert.ErrorIs(t, p.ValidateSecurityState(now), ErrCannotPerformAction)
	p.Unpause()

	p.TriggerCircuitBreaker(1, now)
	assert.ErrorIs(t, p.ValidateSecurityState(now+10), ErrCircuitBreakerActive)
	require.NoError(t, p.ValidateSecurityState(now+p.Breaker.CooldownPeriodSec))
	p.ResetCircuitBreaker()

	p.BuyTaxBps = 1500
	assert.ErrorIs(t, p.ValidateSecurityState(now), ErrInvalidParameter)
	p.BuyTaxBps = 250
}

func TestProtocolRateLimit(t *testing.T) {
	p := DefaultProtocolConfig(key(1), key(2), t0)

	p.RecordUpdate(t0)
	assert.ErrorIs(t, p.CheckRateLimit(t0+100), ErrRateLimitExceeded)
	require.NoError(t, p.CheckRateLimit(t0+p.Limiter.MinIntervalSec))

	// Daily cap within the same day.
	p.Limiter.DailyUpdateCount = p.Limiter.MaxUpdatesPerDay
	p.Limiter.LastResetDay = t0 - (t0 % secondsPerDay)
	assert.ErrorIs(t, p.CheckRateLimit(t0+p.Limiter.MinIntervalSec), ErrRateLimitExceeded)

	// A new day clears the count.
	nextDay := p.Limiter.LastResetDay + secondsPerDay + 1000
	require.NoError(t, p.CheckRateLimit(nextDay))
	p.RecordUpdate(nextDay)
	assert.Equal(t, uint32(1), p.Limiter.DailyUpdateCount)
}

func TestEmergencyPause(t *testing.T) {
	p := DefaultProtocolConfig(key(1), key(2), t0)

	p.EmergencyPause(t0 + 50)
	assert.True(t, p.Paused)
	assert.True(t, p.Breaker.Triggered)
	assert.Equal(t, EmergencyPauseReason, p.Breaker.TriggerReason)

	// Unpause does not clear the breaker.
	p.Unpause()
	assert.ErrorIs(t, p.CheckCircuitBreaker(t0+60), ErrCircuitBreakerActive)
}

func TestProtocolTaxAndBalance(t *testing.T) {
	p := DefaultProtocolConfig(key(1), key(2), t0)

	assert.ErrorIs(t, p.SetTaxes(1500, 250, t0+1), ErrInvalidParameter)
	require.NoError(t, p.SetTaxes(300, 300, t0+1))

	assert.ErrorIs(t, p.UpdateBalance(p.Bounds.MaxProtocolBalance+1, t0+2), ErrInvalidParameter)
	require.NoError(t, p.UpdateBalance(1_000_000, t0+2))
	assert.ErrorIs(t, p.UpdateFees(2_000_000, t0+3), ErrInvalidParameter)
	require.NoError(t, p.UpdateFees(500_000, t0+3))

	cut, err := p.ReferralCut(25_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500), cut)
}

func TestQuoteDecimal(t *testing.T) {
	assert.Equal(t, "1.025", QuoteDecimal(1_025_000).String())
	assert.Equal(t, "0.00005", QuoteDecimal(50).String())
}

func TestYieldScenario(t *testing.T) {
	// A master agent priced at 1.000000 with a 5% yield rate pays 0.05
	// per agent; boosters scale that per minted agent.
	m := newTestMaster(t)
	u := newTestUser(t)
	u.Unban()

	yield, err := m.YieldAmount()
	require.NoError(t, err)
	require.Equal(t, uint64(50_000), yield)

	a, err := NewAgent("ag-9", key(2), key(4), u.Authority, 20_000, t0)
	require.NoError(t, err)
	boosted, err := a.BoostedYield(yield)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), boosted)

	require.NoError(t, u.AddUnclaimedYield(boosted, t0+1))
	require.NoError(t, u.ClaimYield(boosted, t0+2))
	assert.Equal(t, uint64(100_000), u.History.TotalYieldClaimed)

	rate, err := u.YieldClaimRate()
	require.NoError(t, err)
	assert.Equal(t, safemath.QuotePrecision, rate)
}
