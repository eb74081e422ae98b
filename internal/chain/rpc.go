// ==============================================================================
// JSON-RPC PROVIDER - internal/chain/rpc.go
// ==============================================================================
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"cfdclient/pkg/config"
	"cfdclient/pkg/errors"
	"cfdclient/pkg/logger"
)

// balanceOf(address) selector
var selectorBalanceOf = hexutil.MustDecode("0x70a08231")

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return e.Message
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// RPCProvider implements Provider over Ethereum JSON-RPC with a local keystore
// signer. It keeps a registry of known networks; switching to a chain that was
// never registered fails with ErrUnknownChain until AddChain supplies it.
type RPCProvider struct {
	mu            sync.RWMutex
	networks      map[int64]NetworkParams
	activeChainID int64
	httpClient    *http.Client
	signer        *Signer
	notifications chan Notification
	logger        logger.Logger
}

// NewRPCProvider builds a provider pre-registered with the configured chain.
func NewRPCProvider(cfg config.ChainConfig, signer *Signer, log logger.Logger) *RPCProvider {
	p := &RPCProvider{
		networks: map[int64]NetworkParams{
			cfg.ChainID: {
				ChainID:        cfg.ChainID,
				ChainName:      cfg.ChainName,
				RPCURL:         cfg.RPCURL,
				NativeSymbol:   cfg.NativeSymbol,
				NativeDecimals: 18,
				ExplorerURL:    cfg.ExplorerURL,
			},
		},
		activeChainID: cfg.ChainID,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		signer:        signer,
		notifications: make(chan Notification, 16),
		logger:        log,
	}
	return p
}

func (p *RPCProvider) activeURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.networks[p.activeChainID].RPCURL
}

func (p *RPCProvider) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	url := p.activeURL()
	if url == "" {
		return nil, errors.ErrNoProvider
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(errors.ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrNetwork, err.Error())
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, errors.Wrap(err, "unmarshal response")
	}
	if rpcResp.Error != nil {
		return nil, errors.Wrap(rpcResp.Error, method)
	}
	return rpcResp.Result, nil
}

// Available reports whether the provider has a signer and an active endpoint.
func (p *RPCProvider) Available() bool {
	return p != nil && p.signer != nil && p.activeURL() != ""
}

// RequestAccounts returns the keystore account.
func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	if !p.Available() {
		return nil, errors.ErrNoProvider
	}
	return []string{p.signer.Address()}, nil
}

// ChainID returns the currently selected chain.
func (p *RPCProvider) ChainID(ctx context.Context) (int64, error) {
	if !p.Available() {
		return 0, errors.ErrNoProvider
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.activeChainID, nil
}

// SwitchChain selects a registered chain, mirroring
// wallet_switchEthereumChain: an unregistered chain is rejected with
// ErrUnknownChain rather than added implicitly.
func (p *RPCProvider) SwitchChain(ctx context.Context, chainID int64) error {
	if !p.Available() {
		return errors.ErrNoProvider
	}

	p.mu.Lock()
	if p.activeChainID == chainID {
		p.mu.Unlock()
		return nil
	}
	if _, ok := p.networks[chainID]; !ok {
		p.mu.Unlock()
		return errors.ErrUnknownChain
	}
	p.activeChainID = chainID
	p.mu.Unlock()

	p.emit(Notification{Kind: NotificationChainChanged, ChainID: chainID})
	return nil
}

// AddChain registers network parameters, mirroring wallet_addEthereumChain.
func (p *RPCProvider) AddChain(ctx context.Context, params NetworkParams) error {
	if !p.Available() {
		return errors.ErrNoProvider
	}
	if params.ChainID <= 0 || params.RPCURL == "" {
		return errors.Validationf("chain registration needs a chain id and rpc url")
	}

	p.mu.Lock()
	p.networks[params.ChainID] = params
	p.mu.Unlock()

	p.logger.Info("Chain registered with provider", map[string]interface{}{
		"chain_id":   params.ChainID,
		"chain_name": params.ChainName,
	})
	return nil
}

// NativeBalance returns the address balance in wei.
func (p *RPCProvider) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	result, err := p.call(ctx, "eth_getBalance", []interface{}{address, "latest"})
	if err != nil {
		return nil, err
	}
	return decodeBigResult(result)
}

// TokenBalance calls balanceOf(address) on an ERC-20 contract.
func (p *RPCProvider) TokenBalance(ctx context.Context, tokenContract, address string) (*big.Int, error) {
	data := make([]byte, 0, 36)
	data = append(data, selectorBalanceOf...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)

	callObj := map[string]interface{}{
		"to":   tokenContract,
		"data": hexutil.Encode(data),
	}
	result, err := p.call(ctx, "eth_call", []interface{}{callObj, "latest"})
	if err != nil {
		return nil, err
	}
	return decodeWordResult(result)
}

// SignMessage produces an EIP-191 personal-sign signature.
func (p *RPCProvider) SignMessage(ctx context.Context, address, message string) (string, error) {
	if !p.Available() {
		return "", errors.ErrNoProvider
	}
	return p.signer.SignPersonal(address, message)
}

// SendTransaction fills in nonce, gas price and gas limit, signs with the
// active chain's replay protection and broadcasts the raw transaction.
func (p *RPCProvider) SendTransaction(ctx context.Context, tx TxRequest) (string, error) {
	if !p.Available() {
		return "", errors.ErrNoProvider
	}
	if !p.signer.Owns(tx.From) {
		return "", errors.Validationf("sender %s not held by signer", tx.From)
	}

	nonce, err := p.pendingNonce(ctx, tx.From)
	if err != nil {
		return "", errors.Wrap(err, "fetch nonce")
	}
	gasPrice, err := p.gasPrice(ctx)
	if err != nil {
		return "", errors.Wrap(err, "fetch gas price")
	}
	gasLimit, err := p.estimateGas(ctx, tx)
	if err != nil {
		return "", errors.Wrap(err, "estimate gas")
	}

	p.mu.RLock()
	chainID := p.activeChainID
	p.mu.RUnlock()

	to := common.HexToAddress(tx.To)
	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	unsigned := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, tx.Data)

	signed, err := p.signer.SignTx(unsigned, big.NewInt(chainID))
	if err != nil {
		return "", err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", errors.Wrap(err, "encode transaction")
	}

	result, err := p.call(ctx, "eth_sendRawTransaction", []interface{}{hexutil.Encode(raw)})
	if err != nil {
		return "", err
	}

	var txHash string
	if err := json.Unmarshal(result, &txHash); err != nil {
		return "", errors.Wrap(err, "decode transaction hash")
	}
	return txHash, nil
}

// TransactionReceipt fetches a mined receipt. A pending transaction yields
// (nil, nil).
func (p *RPCProvider) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	result, err := p.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var raw struct {
		TransactionHash string `json:"transactionHash"`
		BlockNumber     string `json:"blockNumber"`
		Status          string `json:"status"`
		GasUsed         string `json:"gasUsed"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, errors.Wrap(err, "decode receipt")
	}
	if raw.BlockNumber == "" {
		return nil, nil
	}

	blockNumber, err := hexutil.DecodeUint64(raw.BlockNumber)
	if err != nil {
		return nil, errors.Wrap(err, "decode block number")
	}
	status, err := hexutil.DecodeUint64(raw.Status)
	if err != nil {
		return nil, errors.Wrap(err, "decode status")
	}
	gasUsed, err := hexutil.DecodeUint64(raw.GasUsed)
	if err != nil {
		return nil, errors.Wrap(err, "decode gas used")
	}

	return &Receipt{
		TxHash:      raw.TransactionHash,
		BlockNumber: blockNumber,
		Status:      status,
		GasUsed:     gasUsed,
	}, nil
}

// Notifications returns the ordered event stream.
func (p *RPCProvider) Notifications() <-chan Notification {
	return p.notifications
}

// emit delivers a notification without blocking the caller; a full channel
// drops the event with a warning.
func (p *RPCProvider) emit(n Notification) {
	select {
	case p.notifications <- n:
	default:
		p.logger.Warn("Notification channel full, dropping event", map[string]interface{}{
			"kind": string(n.Kind),
		})
	}
}

func (p *RPCProvider) pendingNonce(ctx context.Context, address string) (uint64, error) {
	result, err := p.call(ctx, "eth_getTransactionCount", []interface{}{address, "pending"})
	if err != nil {
		return 0, err
	}
	return decodeUint64Result(result)
}

func (p *RPCProvider) gasPrice(ctx context.Context) (*big.Int, error) {
	result, err := p.call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return nil, err
	}
	return decodeBigResult(result)
}

func (p *RPCProvider) estimateGas(ctx context.Context, tx TxRequest) (uint64, error) {
	callObj := map[string]interface{}{
		"from": tx.From,
		"to":   tx.To,
	}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		callObj["value"] = hexutil.EncodeBig(tx.Value)
	}
	if len(tx.Data) > 0 {
		callObj["data"] = hexutil.Encode(tx.Data)
	}

	result, err := p.call(ctx, "eth_estimateGas", []interface{}{callObj})
	if err != nil {
		return 0, err
	}
	return decodeUint64Result(result)
}

func decodeBigResult(result json.RawMessage) (*big.Int, error) {
	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return nil, errors.Wrap(err, "decode result")
	}
	value, err := hexutil.DecodeBig(hexVal)
	if err != nil {
		return nil, errors.Wrap(err, "decode quantity")
	}
	return value, nil
}

// decodeWordResult decodes an ABI-encoded 32-byte return value, which unlike
// a quantity may carry leading zero digits.
func decodeWordResult(result json.RawMessage) (*big.Int, error) {
	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return nil, errors.Wrap(err, "decode result")
	}
	if hexVal == "0x" || hexVal == "" {
		return big.NewInt(0), nil
	}
	raw, err := hexutil.Decode(hexVal)
	if err != nil {
		return nil, errors.Wrap(err, "decode return data")
	}
	return new(big.Int).SetBytes(raw), nil
}

func decodeUint64Result(result json.RawMessage) (uint64, error) {
	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return 0, errors.Wrap(err, "decode result")
	}
	value, err := hexutil.DecodeUint64(hexVal)
	if err != nil {
		return 0, errors.Wrap(err, "decode quantity")
	}
	return value, nil
}

var _ Provider = (*RPCProvider)(nil)
