// ==============================================================================
// WALLET DAEMON MAIN - cmd/walletd/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"cfdclient/internal/auth"
	"cfdclient/internal/backend"
	"cfdclient/internal/chain"
	"cfdclient/internal/handler"
	"cfdclient/internal/journal"
	"cfdclient/internal/middleware"
	"cfdclient/internal/session"
	"cfdclient/internal/transaction"
	"cfdclient/pkg/cache"
	"cfdclient/pkg/config"
	"cfdclient/pkg/logger"
	"cfdclient/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("cfd-walletd")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting CFD wallet daemon", map[string]interface{}{
		"port":     cfg.Server.Port,
		"chain_id": cfg.Chain.ChainID,
		"backend":  cfg.Backend.BaseURL,
	})

	// Chain side: keystore signer, JSON-RPC provider, watcher, gateway
	signer, err := chain.NewSigner(cfg.Chain.KeystoreFile)
	if err != nil {
		log.Fatal("Failed to load keystore", map[string]interface{}{
			"error": err.Error(),
			"file":  cfg.Chain.KeystoreFile,
		})
	}
	provider := chain.NewRPCProvider(cfg.Chain, signer, log)
	watcher := chain.NewWatcher(provider, cfg.Chain, log)
	gateway := chain.NewGateway(provider, cfg.Chain, log)

	// Credential store: file by default, Redis when configured
	var tokens backend.TokenStore
	switch cfg.Backend.TokenStore {
	case "redis":
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("Failed to connect to Redis", map[string]interface{}{
				"error": err.Error(),
			})
		}
		defer redisCache.Close()
		tokens = backend.NewRedisTokenStore(redisCache)
		log.Info("Redis token store ready", nil)
	default:
		fileStore, err := backend.NewFileTokenStore(cfg.Backend.TokenFile)
		if err != nil {
			log.Fatal("Failed to open token store", map[string]interface{}{
				"error": err.Error(),
			})
		}
		tokens = fileStore
	}

	backendClient := backend.NewClient(cfg.Backend, tokens, log)

	// Journal: Postgres when a database is configured, memory otherwise
	var store journal.Store = journal.NewMemoryStore()
	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatal("Failed to connect to database", map[string]interface{}{
				"error": err.Error(),
			})
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

		store = journal.NewPostgresStore(db)
		log.Info("Transaction journal backed by Postgres", nil)
	}

	authFlow := auth.NewFlow(gateway, backendClient, tokens, log)
	controller := session.NewController(gateway, authFlow, backendClient, provider.Notifications(), cfg.Session, log)
	txService := transaction.NewService(gatewayAdapter{gateway}, controller, backendClient, store, log)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go controller.Run(runCtx)
	go watcher.Run(runCtx)

	// Handlers
	val := validator.New()
	sessionHandler := handler.NewSessionHandler(controller, log)
	txHandler := handler.NewTransactionHandler(txService, val, log)
	portalHandler := handler.NewPortalHandler(backendClient, controller, log)

	// Router
	r := mux.NewRouter()
	r.Use(middleware.CORS(os.Getenv("CORS_ORIGIN")))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)

	r.HandleFunc("/health", portalHandler.Health).Methods("GET")

	r.HandleFunc("/session", sessionHandler.Get).Methods("GET")
	r.HandleFunc("/session/connect", sessionHandler.Connect).Methods("POST")
	r.HandleFunc("/session/authenticate", sessionHandler.Authenticate).Methods("POST")
	r.HandleFunc("/session/disconnect", sessionHandler.Disconnect).Methods("POST")
	r.HandleFunc("/session/balances", sessionHandler.Balances).Methods("GET")
	r.HandleFunc("/session/balances/refresh", sessionHandler.RefreshBalances).Methods("POST")

	r.HandleFunc("/transactions/purchase", txHandler.Purchase).Methods("POST")
	r.HandleFunc("/transactions/claim", txHandler.Claim).Methods("POST")
	r.HandleFunc("/transactions/history", txHandler.History).Methods("GET")

	r.HandleFunc("/ico/status", portalHandler.ICOStatus).Methods("GET")
	r.HandleFunc("/ico/purchases", portalHandler.PurchaseHistory).Methods("GET")
	r.HandleFunc("/dividends/info", portalHandler.DividendInfo).Methods("GET")
	r.HandleFunc("/dividends/projection", portalHandler.DividendProjection).Methods("POST")

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("Wallet daemon started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down wallet daemon...", nil)
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Wallet daemon forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Wallet daemon stopped gracefully", nil)
}

// gatewayAdapter narrows *chain.Gateway to the orchestrator's submit surface.
type gatewayAdapter struct {
	*chain.Gateway
}

func (a gatewayAdapter) SubmitDirectPurchase(ctx context.Context, from string, amount decimal.Decimal) (transaction.PendingTx, error) {
	return a.Gateway.SubmitDirectPurchase(ctx, from, amount)
}

func (a gatewayAdapter) SubmitAffiliatePurchase(ctx context.Context, from, affiliate string, amount decimal.Decimal) (transaction.PendingTx, error) {
	return a.Gateway.SubmitAffiliatePurchase(ctx, from, affiliate, amount)
}
