// ==============================================================================
// BACKEND ENDPOINTS - internal/backend/endpoints.go
// ==============================================================================
package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"cfdclient/internal/domain"
	"cfdclient/pkg/errors"
)

// ====== Auth ======

type walletLoginRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
}

type walletLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// WalletLogin exchanges a signed challenge for a bearer credential.
func (c *Client) WalletLogin(ctx context.Context, address, signature, message string) (*domain.Credential, error) {
	var resp walletLoginResponse
	err := c.post(ctx, "/auth/wallet-login", walletLoginRequest{
		Address:   address,
		Signature: signature,
		Message:   message,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.Token == "" {
		return nil, &errors.RemoteError{Code: http.StatusOK, Message: "login response carried no token"}
	}
	return &domain.Credential{Token: resp.Token, IssuedFor: address}, nil
}

// VerifyToken checks the stored credential against the backend. A stale or
// revoked token comes back as ErrUnauthorized.
func (c *Client) VerifyToken(ctx context.Context) error {
	return c.get(ctx, "/auth/verify", nil)
}

// Logout invalidates the credential server-side. Best effort; the caller
// clears local state regardless.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/auth/logout", nil, nil)
}

// ====== Balances ======

type balanceResponse struct {
	Success bool            `json:"success"`
	Balance decimal.Decimal `json:"balance"`
}

// CFDBalance reads the membership token balance via the backend's indexer.
func (c *Client) CFDBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/blockchain/balance/cfd/"+address, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

// USDTBalance reads the stable token balance via the backend's indexer. Used
// as the fallback when the chain read fails.
func (c *Client) USDTBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/blockchain/balance/usdt/"+address, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

// ====== ICO ======

type phaseWire struct {
	Phase           int             `json:"phase"`
	TokenPrice      decimal.Decimal `json:"tokenPrice"`
	BonusPercentage decimal.Decimal `json:"bonusPercentage"`
	MinPurchase     decimal.Decimal `json:"minPurchase"`
	MaxPurchase     decimal.Decimal `json:"maxPurchase"`
	TokensSold      decimal.Decimal `json:"tokensSold"`
	TotalTokens     decimal.Decimal `json:"totalTokens"`
	EndDate         *time.Time      `json:"endDate"`
}

type icoStatusResponse struct {
	Success bool `json:"success"`
	ICO     struct {
		Active       bool            `json:"icoActive"`
		CurrentPhase phaseWire       `json:"currentPhase"`
		TotalRaised  decimal.Decimal `json:"totalRaised"`
	} `json:"ico"`
}

func (w phaseWire) toDomain() domain.Phase {
	return domain.Phase{
		Number:      w.Phase,
		PriceUSD:    w.TokenPrice,
		BonusPct:    w.BonusPercentage,
		MinPurchase: w.MinPurchase,
		MaxPurchase: w.MaxPurchase,
		TokensSold:  w.TokensSold,
		TokenSupply: w.TotalTokens,
		EndsAt:      w.EndDate,
	}
}

// ICOStatus fetches the running sale's phase and limits.
func (c *Client) ICOStatus(ctx context.Context) (*domain.ICOStatus, error) {
	var resp icoStatusResponse
	if err := c.get(ctx, "/ico/status", &resp); err != nil {
		return nil, err
	}
	return &domain.ICOStatus{
		Active:       resp.ICO.Active,
		CurrentPhase: resp.ICO.CurrentPhase.toDomain(),
		TotalRaised:  resp.ICO.TotalRaised,
	}, nil
}

type recordPurchaseRequest struct {
	WalletAddress string          `json:"walletAddress"`
	AmountInMatic decimal.Decimal `json:"amountInMatic"`
	Phase         int             `json:"phase"`
	TxHash        string          `json:"txHash"`
	AffiliateCode string          `json:"affiliateCode,omitempty"`
}

// RecordPurchase registers a confirmed on-chain purchase so the backend can
// credit tokens and affiliate commission.
func (c *Client) RecordPurchase(ctx context.Context, address string, amountMatic decimal.Decimal, phase int, txHash, affiliateCode string) error {
	return c.post(ctx, "/ico/purchase", recordPurchaseRequest{
		WalletAddress: address,
		AmountInMatic: amountMatic,
		Phase:         phase,
		TxHash:        txHash,
		AffiliateCode: affiliateCode,
	}, nil)
}

// PurchaseRecord is one backend-side purchase history entry.
type PurchaseRecord struct {
	WalletAddress   string          `json:"walletAddress"`
	AmountInMatic   decimal.Decimal `json:"amountInMatic"`
	TokensPurchased decimal.Decimal `json:"tokensPurchased"`
	Phase           int             `json:"phase"`
	TxHash          string          `json:"txHash"`
	AffiliateCode   string          `json:"affiliateCode"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type purchaseHistoryResponse struct {
	Success   bool             `json:"success"`
	Purchases []PurchaseRecord `json:"purchases"`
}

// PurchaseHistory lists the wallet's recorded purchases, newest first.
func (c *Client) PurchaseHistory(ctx context.Context, address string, page, limit int) ([]PurchaseRecord, error) {
	path := fmt.Sprintf("/ico/purchases/%s?page=%d&limit=%d", address, page, limit)
	var resp purchaseHistoryResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Purchases, nil
}

// ====== Dividends ======

type distributionWire struct {
	ID      string          `json:"_id"`
	Amount  decimal.Decimal `json:"amount"`
	Date    time.Time       `json:"date"`
	Claimed bool            `json:"claimed"`
}

type dividendInfoResponse struct {
	Success                bool               `json:"success"`
	AvailableDividends     decimal.Decimal    `json:"availableDividends"`
	TotalDividendsReceived decimal.Decimal    `json:"totalDividendsReceived"`
	DividendHistory        []distributionWire `json:"dividendHistory"`
}

// DividendInfo returns the holder's claimable dividend summary.
func (c *Client) DividendInfo(ctx context.Context, address string) (*domain.DividendInfo, error) {
	var resp dividendInfoResponse
	if err := c.get(ctx, "/dividends/info/"+address, &resp); err != nil {
		return nil, err
	}

	info := &domain.DividendInfo{
		WalletAddress:  address,
		TotalUnclaimed: resp.AvailableDividends,
		Distributions:  make([]domain.Distribution, 0, len(resp.DividendHistory)),
	}
	for _, d := range resp.DividendHistory {
		info.Distributions = append(info.Distributions, domain.Distribution{
			ID:            d.ID,
			Amount:        d.Amount,
			DistributedAt: d.Date,
			Claimed:       d.Claimed,
		})
	}
	return info, nil
}

type claimRequest struct {
	WalletAddress   string   `json:"walletAddress"`
	DistributionIDs []string `json:"distributionIds"`
}

// ClaimResult is the backend's acknowledgement of a dividend claim. The
// payout transaction is issued by the backend, not this client.
type ClaimResult struct {
	TxHash string          `json:"txHash"`
	Amount decimal.Decimal `json:"amount"`
}

// ClaimDividends asks the backend to pay out the given distributions.
func (c *Client) ClaimDividends(ctx context.Context, address string, distributionIDs []string) (*ClaimResult, error) {
	var resp struct {
		Success bool            `json:"success"`
		TxHash  string          `json:"txHash"`
		Amount  decimal.Decimal `json:"amount"`
	}
	err := c.post(ctx, "/dividends/claim", claimRequest{
		WalletAddress:   address,
		DistributionIDs: distributionIDs,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &ClaimResult{TxHash: resp.TxHash, Amount: resp.Amount}, nil
}

type projectionRequest struct {
	WalletAddress string           `json:"walletAddress"`
	MonthlyProfit *decimal.Decimal `json:"monthlyProfit,omitempty"`
}

// DividendProjection estimates the holder's monthly dividend for a given
// casino profit figure. A nil profit lets the backend use its own estimate.
func (c *Client) DividendProjection(ctx context.Context, address string, monthlyProfit *decimal.Decimal) (decimal.Decimal, error) {
	var resp struct {
		Success           bool            `json:"success"`
		ProjectedDividend decimal.Decimal `json:"projectedDividend"`
	}
	err := c.post(ctx, "/dividends/projection", projectionRequest{
		WalletAddress: address,
		MonthlyProfit: monthlyProfit,
	}, &resp)
	if err != nil {
		return decimal.Zero, err
	}
	return resp.ProjectedDividend, nil
}
