// ==============================================================================
// PROVIDER WATCHER - internal/chain/watcher.go
// ==============================================================================
package chain

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"cfdclient/pkg/config"
	"cfdclient/pkg/logger"
)

// Watcher keeps the provider's view of the outside world fresh. It watches
// the keystore file for account rotation and, when a websocket endpoint is
// configured, paces itself on new block headers instead of a wall-clock tick.
type Watcher struct {
	provider     *RPCProvider
	keystoreFile string
	wsURL        string
	interval     time.Duration
	lastModTime  time.Time
	logger       logger.Logger
}

// NewWatcher builds a watcher for the configured chain endpoints.
func NewWatcher(provider *RPCProvider, cfg config.ChainConfig, log logger.Logger) *Watcher {
	w := &Watcher{
		provider:     provider,
		keystoreFile: cfg.KeystoreFile,
		wsURL:        cfg.WSURL,
		interval:     cfg.ConfirmInterval,
		logger:       log,
	}
	if info, err := os.Stat(cfg.KeystoreFile); err == nil {
		w.lastModTime = info.ModTime()
	}
	return w
}

// Run blocks until the context is cancelled. A broken websocket falls back to
// ticker pacing and retries the subscription on the next cycle.
func (w *Watcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if w.wsURL != "" {
			if err := w.runHeadSubscription(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("Head subscription lost, falling back to ticker", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
		if !w.runTicker(ctx, 30*time.Second) {
			return
		}
	}
}

// runTicker polls on a fixed interval for up to maxFor, returning false when
// the context ended.
func (w *Watcher) runTicker(ctx context.Context, maxFor time.Duration) bool {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	deadline := time.Now().Add(maxFor)

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			w.checkKeystore()
			if w.wsURL != "" && time.Now().After(deadline) {
				return true
			}
		}
	}
}

func (w *Watcher) runHeadSubscription(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []interface{}{"newHeads"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		w.checkKeystore()
	}
}

// checkKeystore reloads the signer key when the file changed and emits an
// accounts_changed notification if the account rotated.
func (w *Watcher) checkKeystore() {
	if w.keystoreFile == "" {
		return
	}
	info, err := os.Stat(w.keystoreFile)
	if err != nil {
		return
	}
	if !info.ModTime().After(w.lastModTime) {
		return
	}
	w.lastModTime = info.ModTime()

	changed, err := w.provider.signer.Reload(w.keystoreFile)
	if err != nil {
		w.logger.Error("Keystore reload failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if !changed {
		return
	}

	address := w.provider.signer.Address()
	w.logger.Info("Keystore account rotated", map[string]interface{}{
		"address": address,
	})
	w.provider.emit(Notification{
		Kind:     NotificationAccountsChanged,
		Accounts: []string{address},
	})
}
