// Package engine exposes the protocol's instruction surface over HTTP.
//
// Each handler follows the same shape: decode, gate (multisig or user
// status), price, validate through the risk engine, mutate the ledger
// entities, persist, broadcast, respond.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tyield/engine/internal/events"
	"github.com/tyield/engine/internal/metrics"
	"github.com/tyield/engine/internal/model"
	"github.com/tyield/engine/internal/multisig"
	"github.com/tyield/engine/internal/oracle"
	"github.com/tyield/engine/internal/pair"
	"github.com/tyield/engine/internal/safemath"
	"github.com/tyield/engine/internal/store"
	"github.com/tyield/engine/internal/trade"
)

// Service hosts the instruction handlers. A mutex serializes mutations
// (single-instance); horizontal scaling would need database-level
// optimistic concurrency.
type Service struct {
	store      store.Store
	admin      *multisig.Roster
	limiter    *trade.ExposureLimiter
	validation trade.ValidationConfig
	security   trade.SecurityConfig
	hub        *events.Hub // optional; nil disables broadcasts
	now        func() int64
	mu         sync.Mutex
}

// NewService creates the instruction host. Pass nil for hub if event
// broadcasting is not needed.
func NewService(st store.Store, admin *multisig.Roster, limiter *trade.ExposureLimiter, hub *events.Hub) *Service {
	return &Service{
		store:      st,
		admin:      admin,
		limiter:    limiter,
		validation: trade.DefaultValidationConfig(),
		security:   trade.DefaultSecurityConfig(),
		hub:        hub,
		now:        func() int64 { return time.Now().Unix() },
	}
}

// --- Request types ---

// RegisterUserRequest is the JSON body for POST /users.
type RegisterUserRequest struct {
	Authority model.PublicKey `json:"authority"`
	Name      string          `json:"name"`
	Referrer  model.PublicKey `json:"referrer,omitempty"`
}

// StatusRequest is the JSON body for the multisig-gated status change.
type StatusRequest struct {
	Signer model.PublicKey `json:"signer"`
	Action string          `json:"action"` // "ban" | "unban" | "whitelist"
}

// MintMasterAgentRequest is the JSON body for POST /master-agents.
type MintMasterAgentRequest struct {
	Signer    model.PublicKey `json:"signer"`
	ID        string          `json:"id"`
	Authority model.PublicKey `json:"authority"`
	Mint      model.PublicKey `json:"mint"`
	Price     uint64          `json:"price"`
	WYield    uint64          `json:"w_yield"`
	MaxSupply uint64          `json:"max_supply"`
}

// BuyAgentRequest is the JSON body for POST /agents/buy.
type BuyAgentRequest struct {
	Buyer         model.PublicKey `json:"buyer"`
	MasterAgentID string          `json:"master_agent_id"`
	Mint          model.PublicKey `json:"mint"`
	Booster       uint64          `json:"booster"` // bps; 0 → 10000 (no boost)
}

// SellAgentRequest is the JSON body for POST /agents/sell.
type SellAgentRequest struct {
	Seller  model.PublicKey `json:"seller"`
	AgentID string          `json:"agent_id"`
}

// ClaimYieldRequest is the JSON body for POST /yield/claim.
type ClaimYieldRequest struct {
	Authority model.PublicKey `json:"authority"`
	Amount    uint64          `json:"amount"`
}

// OpenTradeRequest is the JSON body for POST /trades.
type OpenTradeRequest struct {
	MasterAgentID string          `json:"master_agent_id"`
	Authority     model.PublicKey `json:"authority"`
	Pair          string          `json:"pair"`
	FeedID        string          `json:"feed_id"`
	Size          uint64          `json:"size"`
	EntryPrice    uint64          `json:"entry_price"`
	TakeProfit    uint64          `json:"take_profit"`
	StopLoss      uint64          `json:"stop_loss"`
	TradeType     string          `json:"trade_type"` // "buy" | "sell"
	CurrentPrice  uint64          `json:"current_price"`
}

// UpdateTradeRequest is the JSON body for POST /trades/{tradeID}.
type UpdateTradeRequest struct {
	Authority  model.PublicKey `json:"authority"`
	Size       uint64          `json:"size"`
	TakeProfit uint64          `json:"take_profit"`
	StopLoss   uint64          `json:"stop_loss"`
}

// CloseTradeRequest is the JSON body for POST /trades/{tradeID}/close.
type CloseTradeRequest struct {
	Authority  model.PublicKey `json:"authority"`
	ClosePrice uint64          `json:"close_price"`
	Cancel     bool            `json:"cancel"`
}

// UpdateMasterPriceRequest is the JSON body for the multisig-gated
// master agent price update.
type UpdateMasterPriceRequest struct {
	Signer model.PublicKey `json:"signer"`
	Price  uint64          `json:"price"`
}

// UpdateMasterYieldRequest is the JSON body for the multisig-gated
// master agent yield update.
type UpdateMasterYieldRequest struct {
	Signer model.PublicKey `json:"signer"`
	WYield uint64          `json:"w_yield"`
}

// TransferAgentRequest is the JSON body for POST /agents/transfer.
type TransferAgentRequest struct {
	Owner    model.PublicKey `json:"owner"`
	AgentID  string          `json:"agent_id"`
	NewOwner model.PublicKey `json:"new_owner"`
}

// OracleUpdateRequest is the JSON body for POST /oracle/update.
type OracleUpdateRequest struct {
	Authority   model.PublicKey `json:"authority"`
	FeedID      string          `json:"feed_id"`
	Price       uint64          `json:"price"`
	Conf        uint64          `json:"conf"`
	EMA         uint64          `json:"ema"`
	PublishTime int64           `json:"publish_time"`
}

// PauseRequest is the JSON body for the multisig-gated pause/unpause.
type PauseRequest struct {
	Signer    model.PublicKey `json:"signer"`
	Emergency bool            `json:"emergency"`
}

// --- Multisig gate ---

// gate records the caller's approval for a privileged instruction. It
// returns true when the threshold is met and the instruction may execute;
// otherwise it has already written the HTTP response.
func (s *Service) gate(w http.ResponseWriter, signer model.PublicKey, action string, payload []byte) bool {
	data := append([]byte(action+"\x00"), payload...)
	remaining, err := s.admin.Sign([32]byte(signer), nil, data)
	switch {
	case errors.Is(err, multisig.ErrNotAuthorized), errors.Is(err, multisig.ErrMissingSignature):
		writeError(w, err.Error(), http.StatusForbidden)
		return false
	case errors.Is(err, multisig.ErrAlreadySigned), errors.Is(err, multisig.ErrAlreadyExecuted):
		writeError(w, err.Error(), http.StatusConflict)
		return false
	case err != nil:
		writeError(w, err.Error(), http.StatusInternalServerError)
		return false
	}

	metrics.MultisigApprovals.Inc()
	if remaining > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]uint8{"signatures_remaining": remaining})
		return false
	}
	s.admin.Reset()
	return true
}

// --- User handlers ---

// RegisterUser handles POST /api/v1/users.
func (s *Service) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := model.NewUser(req.Authority, req.Name, now)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !req.Referrer.IsZero() {
		if err := user.SetReferrer(req.Referrer, now); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		// Registries are created lazily on the first referral.
		registry, err := s.store.GetReferralRegistry(ctx, req.Referrer)
		if errors.Is(err, store.ErrNotFound) {
			registry, err = model.NewReferralRegistry(req.Referrer, now)
		}
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := registry.AddReferredUser(req.Authority, now); err != nil {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		if err := s.store.SaveReferralRegistry(ctx, registry); err != nil {
			writeError(w, "failed to save referral registry", http.StatusInternalServerError)
			return
		}
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("user registered", "authority", user.Authority, "name", user.Name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

// GetUser handles GET /api/v1/users/{authority}.
func (s *Service) GetUser(w http.ResponseWriter, r *http.Request) {
	authority, err := model.ParsePublicKey(chi.URLParam(r, "authority"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUser(r.Context(), authority)
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// UpdateUserStatus handles POST /api/v1/users/{authority}/status.
// Ban, unban, and whitelist are multisig-gated.
func (s *Service) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	authority, err := model.ParsePublicKey(chi.URLParam(r, "authority"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.gate(w, req.Signer, "user_status:"+req.Action, authority[:]) {
		return
	}

	ctx := r.Context()
	user, err := s.store.GetUser(ctx, authority)
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	oldStatus := user.Status
	switch req.Action {
	case "ban":
		user.Ban()
	case "unban":
		user.Unban()
	case "whitelist":
		if err := user.Whitelist(); err != nil {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
	default:
		writeError(w, "action must be ban, unban, or whitelist", http.StatusBadRequest)
		return
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		writeError(w, "failed to update user", http.StatusInternalServerError)
		return
	}

	slog.Info("user status changed",
		"authority", user.Authority,
		"action", req.Action,
		"status", user.Status,
	)

	s.broadcast(model.EventStatusChanged, model.StatusChangedEvent{
		User:      user.Authority,
		OldStatus: oldStatus,
		NewStatus: user.Status,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// --- Master agent handlers ---

// MintMasterAgent handles POST /api/v1/master-agents (multisig-gated).
func (s *Service) MintMasterAgent(w http.ResponseWriter, r *http.Request) {
	var req MintMasterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, _ := json.Marshal(req)
	if !s.gate(w, req.Signer, "mint_master_agent", payload) {
		return
	}

	ctx := r.Context()
	now := s.now()

	if cfg, err := s.store.GetProtocolConfig(ctx); err == nil {
		if err := cfg.ValidateAgentPrice(req.Price); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	master, err := model.NewMasterAgent(req.ID, req.Authority, req.Mint,
		req.Price, req.WYield, req.MaxSupply, now)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.CreateMasterAgent(ctx, master); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("master agent minted",
		"id", master.ID,
		"price", master.Price,
		"w_yield", master.WYield,
		"max_supply", master.MaxSupply,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(master)
}

// GetMasterAgent handles GET /api/v1/master-agents/{masterAgentID}.
func (s *Service) GetMasterAgent(w http.ResponseWriter, r *http.Request) {
	master, err := s.store.GetMasterAgent(r.Context(), chi.URLParam(r, "masterAgentID"))
	if err != nil {
		writeError(w, "master agent not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(master)
}

// ListMasterAgents handles GET /api/v1/master-agents.
func (s *Service) ListMasterAgents(w http.ResponseWriter, r *http.Request) {
	masters, err := s.store.ListMasterAgents(r.Context())
	if err != nil {
		writeError(w, "failed to list master agents", http.StatusInternalServerError)
		return
	}
	if masters == nil {
		masters = []model.MasterAgent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(masters)
}

// UpdateMasterAgentPrice handles POST /api/v1/master-agents/{masterAgentID}/price
// (multisig-gated). Price increases are bounded by the rate-limit policy
// and counted against the protocol's daily update budget.
func (s *Service) UpdateMasterAgentPrice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "masterAgentID")

	var req UpdateMasterPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, _ := json.Marshal(req)
	if !s.gate(w, req.Signer, "update_price:"+id, payload) {
		return
	}

	ctx := r.Context()
	now := s.now()

	cfg, cfgErr := s.store.GetProtocolConfig(ctx)
	if cfgErr == nil {
		if err := cfg.ValidateAgentPrice(req.Price); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := cfg.CheckRateLimit(now); err != nil {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
	}

	master, err := s.store.GetMasterAgent(ctx, id)
	if err != nil {
		writeError(w, "master agent not found", http.StatusNotFound)
		return
	}

	oldPrice := master.Price
	if err := master.UpdatePrice(req.Price, now, master.Authority); err != nil {
		status := http.StatusConflict
		if errors.Is(err, model.ErrInvalidPrice) {
			status = http.StatusBadRequest
		}
		writeError(w, err.Error(), status)
		return
	}

	if err := s.store.UpdateMasterAgent(ctx, master); err != nil {
		writeError(w, "failed to update master agent", http.StatusInternalServerError)
		return
	}
	if cfgErr == nil {
		cfg.RecordUpdate(now)
		if err := s.store.SaveProtocolConfig(ctx, cfg); err != nil {
			slog.Error("failed to record protocol update", "err", err)
		}
	}

	changeBps, _ := safemath.MulDiv(master.Price-oldPrice, safemath.PercentagePrecision, oldPrice)
	tvl, _ := master.TotalValueLocked()

	slog.Info("master agent price updated",
		"id", master.ID,
		"old_price", oldPrice,
		"new_price", master.Price,
		"change_bps", changeBps,
	)

	s.broadcast(model.EventPriceUpdated, model.PriceUpdatedEvent{
		MasterAgent:      master.Authority,
		OldPrice:         model.QuoteDecimal(oldPrice),
		NewPrice:         model.QuoteDecimal(master.Price),
		ChangeBps:        int64(changeBps),
		TotalValueLocked: model.QuoteDecimal(tvl),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(master)
}

// UpdateMasterAgentYield handles POST /api/v1/master-agents/{masterAgentID}/yield
// (multisig-gated).
func (s *Service) UpdateMasterAgentYield(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "masterAgentID")

	var req UpdateMasterYieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, _ := json.Marshal(req)
	if !s.gate(w, req.Signer, "update_yield:"+id, payload) {
		return
	}

	ctx := r.Context()
	now := s.now()

	master, err := s.store.GetMasterAgent(ctx, id)
	if err != nil {
		writeError(w, "master agent not found", http.StatusNotFound)
		return
	}

	oldYield := master.WYield
	if err := master.UpdateYield(req.WYield, now, master.Authority); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.store.UpdateMasterAgent(ctx, master); err != nil {
		writeError(w, "failed to update master agent", http.StatusInternalServerError)
		return
	}

	slog.Info("master agent yield updated",
		"id", master.ID,
		"old_yield", oldYield,
		"new_yield", master.WYield,
	)

	s.broadcast(model.EventYieldUpdated, model.YieldUpdatedEvent{
		MasterAgent: master.Authority,
		OldYieldBps: oldYield,
		NewYieldBps: master.WYield,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(master)
}

// --- Agent purchase / sale ---

// BuyAgent handles POST /api/v1/agents/buy.
func (s *Service) BuyAgent(w http.ResponseWriter, r *http.Request) {
	var req BuyAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Booster == 0 {
		req.Booster = 10_000 // no boost
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProtocol(ctx, now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	user, err := s.store.GetUser(ctx, req.Buyer)
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	if !user.CanPerformActions() {
		writeError(w, model.ErrCannotPerformAction.Error(), http.StatusForbidden)
		return
	}

	master, err := s.store.GetMasterAgent(ctx, req.MasterAgentID)
	if err != nil {
		writeError(w, "master agent not found", http.StatusNotFound)
		return
	}
	if !master.CanBeAccessedBy(user.IsWhitelisted()) {
		writeError(w, "trading restricted to whitelisted users", http.StatusForbidden)
		return
	}

	total, tax, base, err := master.BuyPriceWithTax()
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := master.AddAgent(now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := user.AddAgent(now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := user.AddFeesSpent(tax, now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	agent, err := model.NewAgent(uuid.New().String(), master.Authority, req.Mint, req.Buyer, req.Booster, now)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Referral commission comes out of the purchase tax.
	if !user.Referrer.IsZero() {
		if err := s.creditReferrer(ctx, user.Referrer, tax, now); err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := s.persistPurchase(ctx, user, master, agent, tax, now); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("agent bought",
		"agent", agent.ID,
		"buyer", req.Buyer,
		"master_agent", req.MasterAgentID,
		"total", total,
		"tax", tax,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"agent": agent,
		"total": total,
		"tax":   tax,
		"base":  base,
	})
}

// SellAgent handles POST /api/v1/agents/sell.
func (s *Service) SellAgent(w http.ResponseWriter, r *http.Request) {
	var req SellAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProtocol(ctx, now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	agent, err := s.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		writeError(w, "agent not found", http.StatusNotFound)
		return
	}
	if !agent.IsOwnedBy(req.Seller) {
		writeError(w, model.ErrInvalidAuthority.Error(), http.StatusForbidden)
		return
	}

	user, err := s.store.GetUser(ctx, req.Seller)
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	master, err := s.store.GetMasterAgent(ctx, agent.MasterAgent.String())
	if err != nil {
		// Master agents are addressed by ID in the API but agents hold
		// the authority key; fall back to a scan.
		master, err = s.findMasterByAuthority(ctx, agent.MasterAgent)
		if err != nil {
			writeError(w, "master agent not found", http.StatusNotFound)
			return
		}
	}

	net, tax, base, err := master.SellPriceWithTax()
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := master.RemoveAgent(now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := user.RemoveAgent(now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := user.AddFeesSpent(tax, now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	// Sold agents return to the master's inventory; auto-relist keeps
	// them purchasable.
	if err := agent.Transfer(master.Authority, now); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !master.AutoRelist && agent.Listed {
		agent.Unlist(now)
	}

	if err := s.persistPurchase(ctx, user, master, agent, tax, now); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("agent sold",
		"agent", agent.ID,
		"seller", req.Seller,
		"net", net,
		"tax", tax,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"net":  net,
		"tax":  tax,
		"base": base,
	})
}

// TransferAgent handles POST /api/v1/agents/transfer: a user-to-user
// ownership transfer that moves the agent between both holding counts.
func (s *Service) TransferAgent(w http.ResponseWriter, r *http.Request) {
	var req TransferAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	agent, err := s.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		writeError(w, "agent not found", http.StatusNotFound)
		return
	}
	if !agent.IsOwnedBy(req.Owner) {
		writeError(w, model.ErrInvalidAuthority.Error(), http.StatusForbidden)
		return
	}

	sender, err := s.store.GetUser(ctx, req.Owner)
	if err != nil {
		writeError(w, "sender not found", http.StatusNotFound)
		return
	}
	receiver, err := s.store.GetUser(ctx, req.NewOwner)
	if err != nil {
		writeError(w, "receiver not found", http.StatusNotFound)
		return
	}

	if err := agent.Transfer(req.NewOwner, now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := sender.RemoveAgent(now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := receiver.AddAgent(now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.store.UpdateAgent(ctx, agent); err != nil {
		writeError(w, "failed to update agent", http.StatusInternalServerError)
		return
	}
	if err := s.store.UpdateUser(ctx, sender); err != nil {
		writeError(w, "failed to update sender", http.StatusInternalServerError)
		return
	}
	if err := s.store.UpdateUser(ctx, receiver); err != nil {
		writeError(w, "failed to update receiver", http.StatusInternalServerError)
		return
	}

	slog.Info("agent transferred",
		"agent", agent.ID,
		"from", req.Owner,
		"to", req.NewOwner,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agent)
}

// --- Yield ---

// ClaimYield handles POST /api/v1/yield/claim.
func (s *Service) ClaimYield(w http.ResponseWriter, r *http.Request) {
	var req ClaimYieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.store.GetUser(ctx, req.Authority)
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	if err := user.ClaimYield(req.Amount, now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		writeError(w, "failed to update user", http.StatusInternalServerError)
		return
	}

	metrics.YieldClaimed.Add(float64(req.Amount))
	slog.Info("yield claimed", "authority", req.Authority, "amount", req.Amount)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// GetReferralRegistry handles GET /api/v1/referrals/{referrer}.
func (s *Service) GetReferralRegistry(w http.ResponseWriter, r *http.Request) {
	referrer, err := model.ParsePublicKey(chi.URLParam(r, "referrer"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	registry, err := s.store.GetReferralRegistry(r.Context(), referrer)
	if err != nil {
		writeError(w, "referral registry not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(registry)
}

// ClaimReferralEarnings handles POST /api/v1/referrals/{referrer}/claim.
// The full unclaimed commission is paid out in a single claim.
func (s *Service) ClaimReferralEarnings(w http.ResponseWriter, r *http.Request) {
	referrer, err := model.ParsePublicKey(chi.URLParam(r, "referrer"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	registry, err := s.store.GetReferralRegistry(ctx, referrer)
	if err != nil {
		writeError(w, "referral registry not found", http.StatusNotFound)
		return
	}
	user, err := s.store.GetUser(ctx, referrer)
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	if !user.CanPerformActions() {
		writeError(w, model.ErrCannotPerformAction.Error(), http.StatusForbidden)
		return
	}

	amount := registry.UnclaimedEarnings
	if amount == 0 {
		writeError(w, "no unclaimed referral earnings", http.StatusConflict)
		return
	}

	if err := registry.ClaimEarnings(amount, now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := user.AddReferralEarnings(amount, now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.store.SaveReferralRegistry(ctx, registry); err != nil {
		writeError(w, "failed to save referral registry", http.StatusInternalServerError)
		return
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		writeError(w, "failed to update user", http.StatusInternalServerError)
		return
	}

	slog.Info("referral earnings claimed", "referrer", referrer, "amount", amount)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"claimed":  amount,
		"registry": registry,
	})
}

// --- Trades ---

// OpenTrade handles POST /api/v1/trades.
func (s *Service) OpenTrade(w http.ResponseWriter, r *http.Request) {
	var req OpenTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	parsed, err := pair.Parse(req.Pair)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	feedID, err := pair.ParseFeedID(req.FeedID)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var tradeType trade.Type
	switch req.TradeType {
	case "buy":
		tradeType = trade.TypeBuy
	case "sell":
		tradeType = trade.TypeSell
	default:
		writeError(w, "trade_type must be buy or sell", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProtocol(ctx, now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	master, err := s.store.GetMasterAgent(ctx, req.MasterAgentID)
	if err != nil {
		writeError(w, "master agent not found", http.StatusNotFound)
		return
	}

	t, err := trade.New(trade.InitParams{
		ID:          uuid.New().String(),
		MasterAgent: [32]byte(master.Authority),
		Authority:   [32]byte(req.Authority),
		FeedID:      feedID,
		Pair:        parsed.Symbol(),
		Size:        req.Size,
		EntryPrice:  req.EntryPrice,
		TakeProfit:  req.TakeProfit,
		StopLoss:    req.StopLoss,
		Type:        tradeType,
		CreatedAt:   now,
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Price the pair off the protocol snapshot when one exists,
	// otherwise trust the caller's current price.
	currentPrice := req.CurrentPrice
	oraclePrice := oracle.Price{Mantissa: currentPrice, Exponent: 0}
	if snap, err := s.store.GetOracleSnapshot(ctx, feedID); err == nil {
		oraclePrice = oracle.Price{Mantissa: snap.Price, Exponent: snap.Exponent}
		if currentPrice == 0 {
			currentPrice = snap.Price
		}
	}

	// A buy filled below market (or a sell above it) would lock in profit
	// at placement, so entries may only cross the market against the side.
	if tradeType == trade.TypeBuy && req.EntryPrice < currentPrice {
		writeError(w, "buy entry price below market price", http.StatusConflict)
		return
	}
	if tradeType == trade.TypeSell && req.EntryPrice > currentPrice {
		writeError(w, "sell entry price above market price", http.StatusConflict)
		return
	}

	if err := t.ValidateTradeLimits(s.security); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := t.ComprehensiveValidation(currentPrice, oraclePrice, s.validation); err != nil {
		metrics.OracleValidationFailures.WithLabelValues(err.Error()).Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	// Aggregate exposure limits across all active trades.
	active, err := s.store.ListActiveTrades(ctx)
	if err != nil {
		writeError(w, "failed to check exposure limits", http.StatusInternalServerError)
		return
	}
	existing := make([]trade.Exposure, 0, len(active))
	for _, a := range active {
		existing = append(existing, trade.Exposure{
			Pair:        a.PairString(),
			MasterAgent: a.MasterAgent,
			Size:        a.Size,
		})
	}
	if err := s.limiter.CheckLimit(t.PairString(), t.MasterAgent, t.Size, existing); err != nil {
		metrics.ExposureLimitRejections.Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := master.IncrementTradeCount(now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.store.InsertTrade(ctx, t); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := s.store.UpdateMasterAgent(ctx, master); err != nil {
		writeError(w, "failed to update master agent", http.StatusInternalServerError)
		return
	}

	metrics.TradesOpened.WithLabelValues(req.TradeType).Inc()
	slog.Info("trade opened",
		"trade_id", t.ID,
		"pair", t.PairString(),
		"type", req.TradeType,
		"size", t.Size,
		"entry", t.EntryPrice,
	)

	s.broadcast(model.EventTradeOpened, model.TradeOpenedEvent{
		TradeID:     t.ID,
		MasterAgent: model.PublicKey(t.MasterAgent),
		Pair:        t.PairString(),
		EntryPrice:  model.QuoteDecimal(t.EntryPrice),
		TakeProfit:  model.QuoteDecimal(t.TakeProfit),
		StopLoss:    model.QuoteDecimal(t.StopLoss),
		Size:        model.QuoteDecimal(t.Size),
		TradeType:   req.TradeType,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(t)
}

// GetTrade handles GET /api/v1/trades/{tradeID}.
func (s *Service) GetTrade(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTrade(r.Context(), chi.URLParam(r, "tradeID"))
	if err != nil {
		writeError(w, "trade not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

// UpdateTrade handles POST /api/v1/trades/{tradeID}.
func (s *Service) UpdateTrade(w http.ResponseWriter, r *http.Request) {
	var req UpdateTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.GetTrade(ctx, chi.URLParam(r, "tradeID"))
	if err != nil {
		writeError(w, "trade not found", http.StatusNotFound)
		return
	}

	if err := t.Update(req.Size, req.TakeProfit, req.StopLoss, [32]byte(req.Authority), now); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := s.store.UpdateTrade(ctx, t); err != nil {
		writeError(w, "failed to update trade", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

// CloseTrade handles POST /api/v1/trades/{tradeID}/close.
func (s *Service) CloseTrade(w http.ResponseWriter, r *http.Request) {
	var req CloseTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.GetTrade(ctx, chi.URLParam(r, "tradeID"))
	if err != nil {
		writeError(w, "trade not found", http.StatusNotFound)
		return
	}

	var pnl int64
	var resultLabel string
	if req.Cancel {
		if err := t.CancelSecure([32]byte(req.Authority), now); err != nil {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		resultLabel = "cancelled"
	} else {
		pnl, err = t.PnL(req.ClosePrice)
		if err != nil {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		result := trade.ResultSuccess
		if pnl < 0 {
			result = trade.ResultFailed
		}
		if err := t.CompleteSecure(result, [32]byte(req.Authority), pnl, now); err != nil {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		resultLabel = "success"
		if result == trade.ResultFailed {
			resultLabel = "failed"
		}
	}

	if err := s.store.UpdateTrade(ctx, t); err != nil {
		writeError(w, "failed to update trade", http.StatusInternalServerError)
		return
	}

	// Only realized completions count toward the master agent aggregates;
	// a cancellation leaves them untouched.
	if !req.Cancel {
		s.foldTradePnL(ctx, t, pnl, now)
	}

	metrics.TradesClosed.WithLabelValues(resultLabel).Inc()
	slog.Info("trade closed",
		"trade_id", t.ID,
		"result", resultLabel,
		"pnl", pnl,
	)

	s.broadcast(model.EventTradeClosed, model.TradeClosedEvent{
		TradeID:     t.ID,
		MasterAgent: model.PublicKey(t.MasterAgent),
		Pair:        t.PairString(),
		ClosePrice:  model.QuoteDecimal(req.ClosePrice),
		PnL:         decimal.New(pnl, -6),
		Result:      resultLabel,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"trade": t, "pnl": pnl})
}

// CheckTrade handles POST /api/v1/trades/{tradeID}/check. Anyone may
// call it: the handler prices the pair off the oracle snapshot and
// completes the trade when the move has crossed take-profit or
// stop-loss, folding realized PnL into the master agent. Terminal
// trades answer with no action.
func (s *Service) CheckTrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.GetTrade(ctx, chi.URLParam(r, "tradeID"))
	if err != nil {
		writeError(w, "trade not found", http.StatusNotFound)
		return
	}

	respond := func(action string, pnl int64) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"action": action,
			"trade":  t,
			"pnl":    pnl,
		})
	}

	if !t.IsActive() {
		respond("none", 0)
		return
	}

	snap, err := s.store.GetOracleSnapshot(ctx, t.FeedID)
	if err != nil {
		writeError(w, "no price for pair", http.StatusNotFound)
		return
	}
	scaled, err := (oracle.Price{Mantissa: snap.Price, Exponent: snap.Exponent}).ScaleToExponent(0)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	currentPrice := scaled.Mantissa

	action := "none"
	resultLabel := ""
	var pnl int64
	switch {
	case t.HasHitTakeProfit(currentPrice):
		pnl, err = t.PnL(currentPrice)
		if err == nil {
			err = t.CompleteSecure(trade.ResultSuccess, t.Authority, pnl, now)
		}
		action, resultLabel = "take_profit", "success"
	case t.HasHitStopLoss(currentPrice):
		pnl, err = t.PnL(currentPrice)
		if err == nil {
			err = t.CompleteSecure(trade.ResultFailed, t.Authority, pnl, now)
		}
		action, resultLabel = "stop_loss", "failed"
	default:
		pnl, err = t.UnrealizedPnL(currentPrice)
		t.UpdatedAt = now
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.store.UpdateTrade(ctx, t); err != nil {
		writeError(w, "failed to update trade", http.StatusInternalServerError)
		return
	}

	if action != "none" {
		s.foldTradePnL(ctx, t, pnl, now)
		metrics.TradesClosed.WithLabelValues(resultLabel).Inc()
		slog.Info("trade auto-completed",
			"trade_id", t.ID,
			"action", action,
			"price", currentPrice,
			"pnl", pnl,
		)
		s.broadcast(model.EventTradeClosed, model.TradeClosedEvent{
			TradeID:     t.ID,
			MasterAgent: model.PublicKey(t.MasterAgent),
			Pair:        t.PairString(),
			ClosePrice:  model.QuoteDecimal(currentPrice),
			PnL:         decimal.New(pnl, -6),
			Result:      resultLabel,
		})
	}

	respond(action, pnl)
}

// --- Oracle ---

// SecureOracleUpdate handles POST /api/v1/oracle/update.
func (s *Service) SecureOracleUpdate(w http.ResponseWriter, r *http.Request) {
	var req OracleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	feedID, err := pair.ParseFeedID(req.FeedID)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.store.GetOracleSnapshot(ctx, feedID)
	if err != nil {
		writeError(w, "oracle snapshot not found", http.StatusNotFound)
		return
	}

	publishTime := req.PublishTime
	if publishTime == 0 {
		publishTime = s.now()
	}
	if err := snap.SecureUpdate([32]byte(req.Authority), req.Price, req.Conf, req.EMA, publishTime); err != nil {
		metrics.OracleValidationFailures.WithLabelValues(err.Error()).Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.store.SaveOracleSnapshot(ctx, snap); err != nil {
		writeError(w, "failed to save snapshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// GetPairPrice handles GET /api/v1/pairs/{ticker}/price?feed_id=...
func (s *Service) GetPairPrice(w http.ResponseWriter, r *http.Request) {
	// Tickers carry a slash, so the path segment arrives percent-encoded.
	ticker, err := url.PathUnescape(chi.URLParam(r, "ticker"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := pair.Parse(ticker); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	feedID, err := pair.ParseFeedID(r.URL.Query().Get("feed_id"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := s.store.GetOracleSnapshot(r.Context(), feedID)
	if err != nil {
		writeError(w, "no price for pair", http.StatusNotFound)
		return
	}

	price := oracle.Price{Mantissa: snap.Price, Exponent: snap.Exponent}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"price":        price,
		"decimal":      price.ToDecimal(),
		"ema":          snap.EMA,
		"publish_time": snap.PublishTime,
	})
}

// --- Protocol pause ---

// PauseProtocol handles POST /api/v1/protocol/pause (multisig-gated).
func (s *Service) PauseProtocol(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	action := "pause"
	if req.Emergency {
		action = "emergency_pause"
	}
	if !s.gate(w, req.Signer, action, nil) {
		return
	}

	ctx := r.Context()
	cfg, err := s.store.GetProtocolConfig(ctx)
	if err != nil {
		writeError(w, "protocol config not found", http.StatusNotFound)
		return
	}

	if req.Emergency {
		cfg.EmergencyPause(s.now())
		metrics.CircuitBreakerTrips.Inc()
	} else {
		cfg.Pause()
	}

	if err := s.store.SaveProtocolConfig(ctx, cfg); err != nil {
		writeError(w, "failed to save protocol config", http.StatusInternalServerError)
		return
	}

	slog.Warn("protocol paused", "emergency", req.Emergency)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

// UnpauseProtocol handles POST /api/v1/protocol/unpause (multisig-gated).
func (s *Service) UnpauseProtocol(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.gate(w, req.Signer, "unpause", nil) {
		return
	}

	ctx := r.Context()
	cfg, err := s.store.GetProtocolConfig(ctx)
	if err != nil {
		writeError(w, "protocol config not found", http.StatusNotFound)
		return
	}

	cfg.Unpause()
	cfg.ResetCircuitBreaker()

	if err := s.store.SaveProtocolConfig(ctx, cfg); err != nil {
		writeError(w, "failed to save protocol config", http.StatusInternalServerError)
		return
	}

	slog.Info("protocol unpaused")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

// --- Helpers ---

// checkProtocol runs the protocol-level security gates. A missing config
// record means the gates are not configured; operations proceed.
func (s *Service) checkProtocol(ctx context.Context, now int64) error {
	cfg, err := s.store.GetProtocolConfig(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return cfg.ValidateSecurityState(now)
}

func (s *Service) creditReferrer(ctx context.Context, referrer model.PublicKey, tax uint64, now int64) error {
	cfg, err := s.store.GetProtocolConfig(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	cut, err := cfg.ReferralCut(tax)
	if err != nil || cut == 0 {
		return err
	}

	registry, err := s.store.GetReferralRegistry(ctx, referrer)
	if errors.Is(err, store.ErrNotFound) {
		registry, err = model.NewReferralRegistry(referrer, now)
	}
	if err != nil {
		return err
	}
	if err := registry.AddUnclaimedEarnings(cut, now); err != nil {
		return err
	}
	return s.store.SaveReferralRegistry(ctx, registry)
}

func (s *Service) persistPurchase(ctx context.Context, user *model.User, master *model.MasterAgent, agent *model.Agent, tax uint64, now int64) error {
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return err
	}
	if err := s.store.UpdateMasterAgent(ctx, master); err != nil {
		return err
	}
	if _, err := s.store.GetAgent(ctx, agent.ID); errors.Is(err, store.ErrNotFound) {
		if err := s.store.CreateAgent(ctx, agent); err != nil {
			return err
		}
	} else if err := s.store.UpdateAgent(ctx, agent); err != nil {
		return err
	}

	if cfg, err := s.store.GetProtocolConfig(ctx); err == nil {
		if err := cfg.AccrueFees(tax, now); err == nil {
			return s.store.SaveProtocolConfig(ctx, cfg)
		}
	}
	return nil
}

// foldTradePnL records a completed trade's realized PnL on the master
// agent that opened it.
func (s *Service) foldTradePnL(ctx context.Context, t *trade.Trade, pnl int64, now int64) {
	master, err := s.findMasterByAuthority(ctx, model.PublicKey(t.MasterAgent))
	if err != nil {
		slog.Error("master agent not found for completed trade", "trade_id", t.ID, "err", err)
		return
	}
	if err := master.RecordCompletedTrade(pnl, now); err != nil {
		slog.Error("failed to record completed trade", "trade_id", t.ID, "err", err)
		return
	}
	if err := s.store.UpdateMasterAgent(ctx, master); err != nil {
		slog.Error("failed to update master agent aggregates", "trade_id", t.ID, "err", err)
	}
}

func (s *Service) findMasterByAuthority(ctx context.Context, authority model.PublicKey) (*model.MasterAgent, error) {
	masters, err := s.store.ListMasterAgents(ctx)
	if err != nil {
		return nil, err
	}
	for i := range masters {
		if masters[i].Authority == authority {
			return &masters[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Service) broadcast(kind string, payload any) {
	if s.hub != nil {
		s.hub.Broadcast(kind, payload)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
