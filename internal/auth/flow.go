// ==============================================================================
// AUTH FLOW - internal/auth/flow.go
// ==============================================================================
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cfdclient/internal/domain"
	"cfdclient/pkg/errors"
	"cfdclient/pkg/logger"
)

// challengeFormat is the signed login message. The timestamp keeps replayed
// signatures out of fresh logins.
const challengeFormat = "Sign in to CasinoFound\nAddress: %s\nTimestamp: %d"

// MessageSigner is the chain-side signing surface the flow needs.
type MessageSigner interface {
	SignMessage(ctx context.Context, address, message string) (string, error)
}

// Backend is the credential side of the login exchange.
type Backend interface {
	WalletLogin(ctx context.Context, address, signature, message string) (*domain.Credential, error)
	VerifyToken(ctx context.Context) error
	Logout(ctx context.Context) error
}

// TokenStore persists the credential between runs.
type TokenStore interface {
	Load() (token, issuedFor string, err error)
	Save(token, issuedFor string) error
	Clear() error
}

// Flow runs the signature login: reuse a stored credential when the backend
// still honors it, otherwise sign a fresh challenge.
type Flow struct {
	signer  MessageSigner
	backend Backend
	tokens  TokenStore
	logger  logger.Logger
	now     func() time.Time
}

// NewFlow wires the login flow.
func NewFlow(signer MessageSigner, backend Backend, tokens TokenStore, log logger.Logger) *Flow {
	return &Flow{
		signer:  signer,
		backend: backend,
		tokens:  tokens,
		logger:  log,
		now:     time.Now,
	}
}

// Authenticate produces a credential for the address. A stored credential is
// verified against the backend before reuse; only a confirmed-dead one
// triggers a new signature prompt.
func (f *Flow) Authenticate(ctx context.Context, address string) (*domain.Credential, error) {
	if cred := f.reusableCredential(ctx, address); cred != nil {
		return cred, nil
	}
	return f.freshLogin(ctx, address)
}

// reusableCredential returns the stored credential when it belongs to the
// address and the backend still accepts it.
func (f *Flow) reusableCredential(ctx context.Context, address string) *domain.Credential {
	token, issuedFor, err := f.tokens.Load()
	if err != nil {
		return nil
	}

	cred := &domain.Credential{Token: token, IssuedFor: issuedFor}
	if !cred.IssuedForAddress(address) {
		// Token for another account is useless here and must not leak into
		// requests for this one.
		_ = f.tokens.Clear()
		return nil
	}

	if f.locallyExpired(token) {
		f.logger.Debug("Stored credential expired locally", map[string]interface{}{
			"address": address,
		})
		_ = f.tokens.Clear()
		return nil
	}

	if err := f.backend.VerifyToken(ctx); err != nil {
		if stderrors.Is(err, errors.ErrUnauthorized) {
			_ = f.tokens.Clear()
		}
		// Network trouble falls through to a fresh login attempt too; the
		// login call will surface the real failure.
		return nil
	}

	f.logger.Info("Reusing stored credential", map[string]interface{}{
		"address": address,
	})
	return cred
}

// locallyExpired checks the token's exp claim without verifying the
// signature; verification is the backend's job. Unparseable tokens defer to
// the backend instead of being rejected here.
func (f *Flow) locallyExpired(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	expiry, err := parsed.Claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return false
	}
	return expiry.Before(f.now())
}

func (f *Flow) freshLogin(ctx context.Context, address string) (*domain.Credential, error) {
	message := fmt.Sprintf(challengeFormat, address, f.now().UnixMilli())

	signature, err := f.signer.SignMessage(ctx, address, message)
	if err != nil {
		return nil, err
	}

	cred, err := f.backend.WalletLogin(ctx, address, signature, message)
	if err != nil {
		return nil, err
	}

	if err := f.tokens.Save(cred.Token, cred.IssuedFor); err != nil {
		f.logger.Warn("Credential not persisted", map[string]interface{}{
			"error": err.Error(),
		})
	}

	f.logger.Info("Wallet login completed", map[string]interface{}{
		"address": address,
	})
	return cred, nil
}

// Logout invalidates the backend session and always clears local state.
func (f *Flow) Logout(ctx context.Context) error {
	err := f.backend.Logout(ctx)
	if clearErr := f.tokens.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

// ClearCredential drops the stored token without touching the backend.
func (f *Flow) ClearCredential() error {
	return f.tokens.Clear()
}
