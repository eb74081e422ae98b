// ==============================================================================
// CHAIN GATEWAY - internal/chain/gateway.go
// ==============================================================================
package chain

import (
	"context"
	stderrors "errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"cfdclient/pkg/config"
	"cfdclient/pkg/errors"
	"cfdclient/pkg/logger"
)

// payAffiliate(address,uint256)
var selectorPayAffiliate = crypto.Keccak256([]byte("payAffiliate(address,uint256)"))[:4]

// Gateway is the domain-facing face of the chain provider. It knows the
// project's contracts and token decimals and exposes balances as decimals
// rather than raw base units.
type Gateway struct {
	provider Provider
	cfg      config.ChainConfig
	logger   logger.Logger
}

// NewGateway wires a provider to the configured contracts.
func NewGateway(provider Provider, cfg config.ChainConfig, log logger.Logger) *Gateway {
	return &Gateway{
		provider: provider,
		cfg:      cfg,
		logger:   log,
	}
}

// Provider exposes the underlying provider for session wiring.
func (g *Gateway) Provider() Provider {
	return g.provider
}

// RequestAccounts asks the provider for its account list.
func (g *Gateway) RequestAccounts(ctx context.Context) ([]string, error) {
	if !g.provider.Available() {
		return nil, errors.ErrNoProvider
	}
	return g.provider.RequestAccounts(ctx)
}

// ChainID returns the provider's active chain.
func (g *Gateway) ChainID(ctx context.Context) (int64, error) {
	return g.provider.ChainID(ctx)
}

// EnsureNetwork moves the provider onto the configured chain. An unknown
// chain is registered once and the switch retried exactly once; any other
// failure, or a second unknown-chain rejection, surfaces as
// ErrNetworkSwitchFailed.
func (g *Gateway) EnsureNetwork(ctx context.Context) error {
	current, err := g.provider.ChainID(ctx)
	if err != nil {
		return errors.Wrap(err, "read chain id")
	}
	if current == g.cfg.ChainID {
		return nil
	}

	err = g.provider.SwitchChain(ctx, g.cfg.ChainID)
	if stderrors.Is(err, errors.ErrUnknownChain) {
		params := NetworkParams{
			ChainID:        g.cfg.ChainID,
			ChainName:      g.cfg.ChainName,
			RPCURL:         g.cfg.RPCURL,
			NativeSymbol:   g.cfg.NativeSymbol,
			NativeDecimals: 18,
			ExplorerURL:    g.cfg.ExplorerURL,
		}
		if addErr := g.provider.AddChain(ctx, params); addErr != nil {
			return errors.Wrap(errors.ErrNetworkSwitchFailed, addErr.Error())
		}
		err = g.provider.SwitchChain(ctx, g.cfg.ChainID)
	}
	if err != nil {
		if stderrors.Is(err, errors.ErrUserRejected) {
			return err
		}
		return errors.Wrap(errors.ErrNetworkSwitchFailed, err.Error())
	}

	g.logger.Info("Switched provider to target network", map[string]interface{}{
		"chain_id": g.cfg.ChainID,
	})
	return nil
}

// ReadNativeBalance returns the MATIC balance as a decimal.
func (g *Gateway) ReadNativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	raw, err := g.provider.NativeBalance(ctx, address)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "read native balance")
	}
	return FromBaseUnits(raw, 18), nil
}

// ReadMembershipTokenBalance returns the CFD balance as a decimal.
func (g *Gateway) ReadMembershipTokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	raw, err := g.provider.TokenBalance(ctx, g.cfg.TokenContract, address)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "read token balance")
	}
	return FromBaseUnits(raw, g.cfg.TokenDecimals), nil
}

// ReadStableTokenBalance returns the USDT balance as a decimal.
func (g *Gateway) ReadStableTokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	raw, err := g.provider.TokenBalance(ctx, g.cfg.StableContract, address)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "read stable balance")
	}
	return FromBaseUnits(raw, g.cfg.StableDecimals), nil
}

// SignMessage produces a personal-sign signature for the login challenge.
func (g *Gateway) SignMessage(ctx context.Context, address, message string) (string, error) {
	return g.provider.SignMessage(ctx, address, message)
}

// SubmitDirectPurchase sends the purchase amount straight to the sale
// contract, which mints against msg.value.
func (g *Gateway) SubmitDirectPurchase(ctx context.Context, from string, amountMatic decimal.Decimal) (*PendingTx, error) {
	value := ToBaseUnits(amountMatic, 18)
	txHash, err := g.provider.SendTransaction(ctx, TxRequest{
		From:  from,
		To:    g.cfg.SaleContract,
		Value: value,
	})
	if err != nil {
		return nil, err
	}
	return g.newPendingTx(txHash), nil
}

// SubmitAffiliatePurchase routes the purchase through payAffiliate so the
// referrer is credited on-chain. The call value and the amount argument are
// the same wei figure.
func (g *Gateway) SubmitAffiliatePurchase(ctx context.Context, from, affiliateAddress string, amountMatic decimal.Decimal) (*PendingTx, error) {
	value := ToBaseUnits(amountMatic, 18)

	data := make([]byte, 0, 68)
	data = append(data, selectorPayAffiliate...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(affiliateAddress).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(value.Bytes(), 32)...)

	txHash, err := g.provider.SendTransaction(ctx, TxRequest{
		From:  from,
		To:    g.cfg.SaleContract,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, err
	}
	return g.newPendingTx(txHash), nil
}

func (g *Gateway) newPendingTx(txHash string) *PendingTx {
	return &PendingTx{
		Hash:     txHash,
		provider: g.provider,
		timeout:  g.cfg.ConfirmTimeout,
		interval: g.cfg.ConfirmInterval,
	}
}

// PendingTx is a broadcast transaction awaiting inclusion.
type PendingTx struct {
	Hash     string
	provider Provider
	timeout  time.Duration
	interval time.Duration
}

// TxHash returns the broadcast transaction hash.
func (p *PendingTx) TxHash() string {
	return p.Hash
}

// AwaitConfirmation polls for the receipt until the transaction is mined or
// the confirmation window closes. A mined receipt with status 0 is
// ErrReverted; a window that closes first is ErrTimeout. The transaction may
// still confirm on-chain after a timeout.
func (p *PendingTx) AwaitConfirmation(ctx context.Context) (*Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		receipt, err := p.provider.TransactionReceipt(waitCtx, p.Hash)
		if err == nil && receipt != nil {
			if receipt.Status == 0 {
				return receipt, errors.ErrReverted
			}
			return receipt, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.ErrTimeout
		case <-ticker.C:
		}
	}
}

// ValueWei is a convenience for tests and callers that need the raw figure.
func ValueWei(amountMatic decimal.Decimal) *big.Int {
	return ToBaseUnits(amountMatic, 18)
}
