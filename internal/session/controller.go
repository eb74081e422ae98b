// ==============================================================================
// SESSION CONTROLLER - internal/session/controller.go
// ==============================================================================
package session

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cfdclient/internal/chain"
	"cfdclient/internal/domain"
	"cfdclient/pkg/config"
	"cfdclient/pkg/errors"
	"cfdclient/pkg/logger"
)

// ChainGateway is the chain surface the controller drives.
type ChainGateway interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (int64, error)
	EnsureNetwork(ctx context.Context) error
	ReadNativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	ReadMembershipTokenBalance(ctx context.Context, address string) (decimal.Decimal, error)
	ReadStableTokenBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// Authenticator runs the signature login and owns the stored credential.
type Authenticator interface {
	Authenticate(ctx context.Context, address string) (*domain.Credential, error)
	Logout(ctx context.Context) error
	ClearCredential() error
}

// BalanceBackend is the backend fallback for the stable token read.
type BalanceBackend interface {
	USDTBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// Controller owns the single wallet session and its balance snapshot. All
// mutation goes through its mutex; provider notifications are consumed in
// order by Run.
type Controller struct {
	mu       sync.Mutex
	session  domain.WalletSession
	balances *domain.BalanceSnapshot

	gateway       ChainGateway
	auth          Authenticator
	backend       BalanceBackend
	notifications <-chan chain.Notification
	cfg           config.SessionConfig
	logger        logger.Logger
	now           func() time.Time
}

// NewController builds a controller in the disconnected state.
func NewController(
	gateway ChainGateway,
	auth Authenticator,
	backend BalanceBackend,
	notifications <-chan chain.Notification,
	cfg config.SessionConfig,
	log logger.Logger,
) *Controller {
	return &Controller{
		session:       domain.WalletSession{Status: domain.SessionDisconnected},
		gateway:       gateway,
		auth:          auth,
		backend:       backend,
		notifications: notifications,
		cfg:           cfg,
		logger:        log,
		now:           time.Now,
	}
}

// Session returns a copy of the current session.
func (c *Controller) Session() domain.WalletSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Balances returns the latest snapshot, or a zero snapshot when none was
// taken yet.
func (c *Controller) Balances() domain.BalanceSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balances == nil {
		return domain.ZeroBalances(time.Time{})
	}
	return *c.balances
}

// Connect attaches the wallet account and moves the provider onto the target
// network. Allowed only while no wallet is attached; a connected session is
// returned as-is. A failed attempt settles back on the disconnected state
// with the cause recorded on LastError.
func (c *Controller) Connect(ctx context.Context) (domain.WalletSession, error) {
	c.mu.Lock()
	switch c.session.Status {
	case domain.SessionDisconnected, domain.SessionError:
	case domain.SessionConnecting, domain.SessionAuthenticating:
		session := c.session
		c.mu.Unlock()
		return session, errors.Validationf("connection already in progress")
	default:
		session := c.session
		c.mu.Unlock()
		return session, nil
	}
	c.session = domain.WalletSession{Status: domain.SessionConnecting}
	c.mu.Unlock()

	session, err := c.establish(ctx)
	if err != nil {
		c.failSession(err)
		return c.Session(), err
	}

	go c.refreshBalancesAsync(session.Address)

	if c.cfg.AutoAuthenticate {
		if _, authErr := c.Authenticate(ctx); authErr != nil {
			// Connection stands; the caller can retry authentication.
			c.logger.Warn("Automatic authentication failed", map[string]interface{}{
				"address": session.Address,
				"error":   authErr.Error(),
			})
		}
	}
	return c.Session(), nil
}

func (c *Controller) establish(ctx context.Context) (domain.WalletSession, error) {
	accounts, err := c.gateway.RequestAccounts(ctx)
	if err != nil {
		return domain.WalletSession{}, err
	}
	if len(accounts) == 0 {
		return domain.WalletSession{}, errors.Wrap(errors.ErrNoProvider, "provider returned no accounts")
	}

	if err := c.gateway.EnsureNetwork(ctx); err != nil {
		return domain.WalletSession{}, err
	}

	chainID, err := c.gateway.ChainID(ctx)
	if err != nil {
		return domain.WalletSession{}, errors.Wrap(err, "read chain id")
	}

	session := domain.WalletSession{
		Address: accounts[0],
		ChainID: chainID,
		Status:  domain.SessionConnected,
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.logger.Info("Wallet connected", map[string]interface{}{
		"address":  session.Address,
		"chain_id": session.ChainID,
	})
	return session, nil
}

// Authenticate runs the signature login for the connected account.
func (c *Controller) Authenticate(ctx context.Context) (domain.WalletSession, error) {
	c.mu.Lock()
	if !c.session.Connected() {
		session := c.session
		c.mu.Unlock()
		return session, errors.Validationf("no connected wallet to authenticate")
	}
	if c.session.Authenticated() {
		session := c.session
		c.mu.Unlock()
		return session, nil
	}
	address := c.session.Address
	c.session.Status = domain.SessionAuthenticating
	c.mu.Unlock()

	cred, err := c.auth.Authenticate(ctx, address)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !strings.EqualFold(c.session.Address, address) {
		// The account rotated underneath the login; drop the result.
		return c.session, errors.Validationf("account changed during authentication")
	}
	if err != nil {
		c.session.Status = domain.SessionConnected
		c.session.LastError = err.Error()
		return c.session, err
	}

	c.session.Status = domain.SessionAuthenticated
	c.session.Credential = cred
	c.session.LastError = ""
	c.logger.Info("Session authenticated", map[string]interface{}{
		"address": address,
	})
	return c.session, nil
}

// Disconnect tears the session down. Calling it on a disconnected session is
// a no-op. The backend logout is best effort and only attempted when a
// credential existed.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.session.Status == domain.SessionDisconnected {
		c.mu.Unlock()
		return nil
	}
	hadCredential := c.session.Credential != nil
	c.session = domain.WalletSession{Status: domain.SessionDisconnected}
	c.balances = nil
	c.mu.Unlock()

	if hadCredential {
		if err := c.auth.Logout(ctx); err != nil {
			c.logger.Warn("Backend logout failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	} else {
		_ = c.auth.ClearCredential()
	}

	c.logger.Info("Wallet disconnected", nil)
	return nil
}

// InvalidateCredential drops the credential after the backend stopped
// honoring it. The wallet connection itself stands.
func (c *Controller) InvalidateCredential() {
	c.mu.Lock()
	wasAuthenticated := c.session.Authenticated()
	if wasAuthenticated || c.session.Credential != nil {
		c.session.Credential = nil
		c.session.Status = domain.SessionConnected
	}
	c.mu.Unlock()

	if wasAuthenticated {
		_ = c.auth.ClearCredential()
		c.logger.Info("Credential invalidated, session downgraded", nil)
	}
}

// RefreshBalances reads all three balances and replaces the snapshot. A
// failed read keeps the previous value for that field; the stable token read
// additionally falls back to the backend indexer before that.
func (c *Controller) RefreshBalances(ctx context.Context) (domain.BalanceSnapshot, error) {
	c.mu.Lock()
	if !c.session.Connected() {
		c.mu.Unlock()
		return domain.ZeroBalances(time.Time{}), errors.Validationf("no connected wallet")
	}
	address := c.session.Address
	previous := c.balances
	c.mu.Unlock()

	snapshot := domain.ZeroBalances(c.now())
	if previous != nil {
		snapshot.Native = previous.Native
		snapshot.Token = previous.Token
		snapshot.Stable = previous.Stable
	}

	if native, err := c.gateway.ReadNativeBalance(ctx, address); err == nil {
		snapshot.Native = native
	} else {
		c.logger.Warn("Native balance read failed, keeping previous value", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
	}

	if token, err := c.gateway.ReadMembershipTokenBalance(ctx, address); err == nil {
		snapshot.Token = token
	} else {
		c.logger.Warn("Token balance read failed, keeping previous value", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
	}

	if stable, err := c.gateway.ReadStableTokenBalance(ctx, address); err == nil {
		snapshot.Stable = stable
	} else if stable, fallbackErr := c.backend.USDTBalance(ctx, address); fallbackErr == nil {
		snapshot.Stable = stable
	} else {
		c.logger.Warn("Stable balance unavailable from chain and backend", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !strings.EqualFold(c.session.Address, address) {
		return domain.ZeroBalances(time.Time{}), errors.Validationf("account changed during refresh")
	}
	c.balances = &snapshot
	return snapshot, nil
}

// Run consumes provider notifications until the context ends. Events are
// applied strictly in arrival order.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-c.notifications:
			if !ok {
				return
			}
			switch n.Kind {
			case chain.NotificationAccountsChanged:
				c.handleAccountsChanged(ctx, n.Accounts)
			case chain.NotificationChainChanged:
				c.handleChainChanged(n.ChainID)
			}
		}
	}
}

// handleAccountsChanged applies an account rotation. An empty account list
// is a full disconnect; a new account keeps the connection but every trace
// of the old account's identity is dropped.
func (c *Controller) handleAccountsChanged(ctx context.Context, accounts []string) {
	if len(accounts) == 0 {
		c.logger.Info("Provider reported no accounts, disconnecting", nil)
		_ = c.Disconnect(ctx)
		return
	}

	next := accounts[0]
	c.mu.Lock()
	if !c.session.Connected() || strings.EqualFold(c.session.Address, next) {
		c.mu.Unlock()
		return
	}
	c.session.Address = next
	c.session.Credential = nil
	c.session.Status = domain.SessionConnected
	c.session.LastError = ""
	c.balances = nil
	c.mu.Unlock()

	_ = c.auth.ClearCredential()
	c.logger.Info("Active account changed", map[string]interface{}{
		"address": next,
	})

	go c.refreshBalancesAsync(next)
	if c.cfg.AutoAuthenticate {
		go func() {
			if _, err := c.Authenticate(ctx); err != nil {
				c.logger.Warn("Re-authentication after account change failed", map[string]interface{}{
					"address": next,
					"error":   err.Error(),
				})
			}
		}()
	}
}

// handleChainChanged zeroes the snapshot; balances on the old chain say
// nothing about the new one.
func (c *Controller) handleChainChanged(chainID int64) {
	c.mu.Lock()
	if !c.session.Connected() {
		c.mu.Unlock()
		return
	}
	c.session.ChainID = chainID
	zero := domain.ZeroBalances(c.now())
	c.balances = &zero
	address := c.session.Address
	c.mu.Unlock()

	c.logger.Info("Provider chain changed", map[string]interface{}{
		"chain_id": chainID,
	})
	go c.refreshBalancesAsync(address)
}

func (c *Controller) refreshBalancesAsync(address string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := c.RefreshBalances(ctx); err != nil && !stderrors.Is(err, errors.ErrValidation) {
		c.logger.Warn("Background balance refresh failed", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
	}
}

// failSession cleans up a failed connection attempt and settles back on the
// disconnected state. The error stays on LastError for the caller to surface;
// the error status itself is transient and never left behind.
func (c *Controller) failSession(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = domain.WalletSession{
		Status:    domain.SessionDisconnected,
		LastError: err.Error(),
	}
	c.balances = nil
}
