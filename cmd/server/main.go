package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tyield/engine/internal/engine"
	"github.com/tyield/engine/internal/events"
	"github.com/tyield/engine/internal/metrics"
	"github.com/tyield/engine/internal/model"
	"github.com/tyield/engine/internal/multisig"
	"github.com/tyield/engine/internal/store"
	"github.com/tyield/engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Admin multisig roster ---
	admin := &multisig.Roster{}
	signers, threshold, err := adminRosterFromEnv()
	if err != nil {
		slog.Error("invalid admin roster", "err", err)
		os.Exit(1)
	}
	if err := admin.SetSigners(signers, threshold); err != nil {
		slog.Error("invalid admin roster", "err", err)
		os.Exit(1)
	}
	slog.Info("admin roster configured", "signers", len(signers), "threshold", threshold)

	// --- Exposure limits ---
	// Defaults are quote units at six decimals: 10k per pair, 50k per agent.
	maxPerPair := envUint("MAX_EXPOSURE_PER_PAIR", 10_000_000_000)
	maxPerAgent := envUint("MAX_EXPOSURE_PER_AGENT", 50_000_000_000)
	limiter := trade.NewExposureLimiter(maxPerPair, maxPerAgent)

	// --- WebSocket hub ---
	hub := events.NewHub()
	go hub.Run()

	// --- Engine service ---
	svc := engine.NewService(st, admin, limiter, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"tyield-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time protocol events.
		r.Get("/ws", hub.HandleWS)

		// Users and referrals.
		r.Post("/users", svc.RegisterUser)
		r.Get("/users/{authority}", svc.GetUser)
		r.Post("/users/{authority}/status", svc.UpdateUserStatus)
		r.Get("/referrals/{referrer}", svc.GetReferralRegistry)
		r.Post("/referrals/{referrer}/claim", svc.ClaimReferralEarnings)

		// Master agents and agent purchases.
		r.Get("/master-agents", svc.ListMasterAgents)
		r.Post("/master-agents", svc.MintMasterAgent)
		r.Get("/master-agents/{masterAgentID}", svc.GetMasterAgent)
		r.Post("/master-agents/{masterAgentID}/price", svc.UpdateMasterAgentPrice)
		r.Post("/master-agents/{masterAgentID}/yield", svc.UpdateMasterAgentYield)
		r.Post("/agents/buy", svc.BuyAgent)
		r.Post("/agents/sell", svc.SellAgent)
		r.Post("/agents/transfer", svc.TransferAgent)

		// Yield.
		r.Post("/yield/claim", svc.ClaimYield)

		// Trades.
		r.Post("/trades", svc.OpenTrade)
		r.Get("/trades/{tradeID}", svc.GetTrade)
		r.Post("/trades/{tradeID}", svc.UpdateTrade)
		r.Post("/trades/{tradeID}/close", svc.CloseTrade)
		r.Post("/trades/{tradeID}/check", svc.CheckTrade)

		// Oracle and pricing.
		r.Post("/oracle/update", svc.SecureOracleUpdate)
		r.Get("/pairs/{ticker}/price", svc.GetPairPrice)

		// Protocol administration.
		r.Post("/protocol/pause", svc.PauseProtocol)
		r.Post("/protocol/unpause", svc.UnpauseProtocol)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("tyield-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down tyield-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("tyield-engine stopped")
}

// adminRosterFromEnv parses ADMIN_SIGNERS (comma-separated 64-hex keys)
// and ADMIN_MIN_SIGNATURES. An unset roster falls back to a single
// all-zeros development key with threshold 1.
func adminRosterFromEnv() ([][32]byte, uint8, error) {
	raw := os.Getenv("ADMIN_SIGNERS")
	if raw == "" {
		slog.Warn("ADMIN_SIGNERS not set, using development key")
		var dev [32]byte
		dev[0] = 0x01
		return [][32]byte{dev}, 1, nil
	}

	var signers [][32]byte
	for _, part := range strings.Split(raw, ",") {
		key, err := model.ParsePublicKey(strings.TrimSpace(part))
		if err != nil {
			return nil, 0, fmt.Errorf("signer %q: %w", part, err)
		}
		signers = append(signers, [32]byte(key))
	}

	threshold := uint8(1)
	if v := os.Getenv("ADMIN_MIN_SIGNATURES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, 0, fmt.Errorf("ADMIN_MIN_SIGNATURES: %w", err)
		}
		threshold = uint8(n)
	}
	return signers, threshold, nil
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
		slog.Warn("invalid value, using default", "key", key, "default", fallback)
	}
	return fallback
}
