// Package solana implements domain.LedgerClient over the Solana JSON-RPC
// API. Only the subset the engine needs is covered: balance queries and
// system-program transfers with polling confirmation.
package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/polygens/wagerd/internal/domain"
)

// lamportsPerSol is the native token's smallest-unit scale.
const lamportsPerSol = 1_000_000_000

// confirmPollInterval is how often Transfer re-checks signature status while
// waiting for confirmation.
const confirmPollInterval = 500 * time.Millisecond

// Client talks to a Solana RPC node.
type Client struct {
	rpcURL         string
	commitment     string
	confirmTimeout time.Duration
	httpClient     *http.Client
	nextID         atomic.Uint64
}

// NewClient creates a ledger client for the given RPC endpoint. commitment
// is one of "processed", "confirmed" or "finalized" and applies to both
// reads and transfer confirmation.
func NewClient(rpcURL, commitment string, confirmTimeout, requestTimeout time.Duration) *Client {
	return &Client{
		rpcURL:         rpcURL,
		commitment:     commitment,
		confirmTimeout: confirmTimeout,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// LamportsToAmount converts lamports to the whole-token amount used by the
// rest of the engine.
func LamportsToAmount(lamports uint64) float64 {
	return float64(lamports) / lamportsPerSol
}

// AmountToLamports converts a whole-token amount to lamports, rounding to
// the nearest lamport.
func AmountToLamports(amount float64) uint64 {
	return uint64(math.Round(amount * lamportsPerSol))
}

// Balance returns the on-chain balance of the given address in whole tokens.
func (c *Client) Balance(ctx context.Context, address string) (float64, error) {
	params := []any{address, map[string]any{"commitment": c.commitment}}

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", params, &result); err != nil {
		return 0, fmt.Errorf("solana: get balance for %s: %w", address, err)
	}
	return LamportsToAmount(result.Value), nil
}

// Transfer moves amount whole tokens from the key behind 'from' to
// toAddress. It submits a signed system-program transfer and blocks until
// the transaction reaches the client's commitment level or the confirm
// timeout elapses.
func (c *Client) Transfer(ctx context.Context, from domain.KeyHandle, toAddress string, amount float64) (domain.TransferResult, error) {
	lamports := AmountToLamports(amount)
	if lamports == 0 {
		return domain.TransferResult{}, fmt.Errorf("solana: transfer amount %f rounds to zero lamports", amount)
	}

	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return domain.TransferResult{}, err
	}

	msg, err := buildTransferMessage(from.Address(), toAddress, blockhash, lamports)
	if err != nil {
		return domain.TransferResult{}, err
	}

	sig, err := from.Sign(msg)
	if err != nil {
		return domain.TransferResult{}, fmt.Errorf("solana: signing transfer: %w", err)
	}

	tx, err := assembleTransaction(sig, msg)
	if err != nil {
		return domain.TransferResult{}, err
	}

	params := []any{
		base64.StdEncoding.EncodeToString(tx),
		map[string]any{
			"encoding":            "base64",
			"preflightCommitment": c.commitment,
		},
	}

	var signature string
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return domain.TransferResult{}, fmt.Errorf("solana: send transaction: %w", err)
	}

	if err := c.confirm(ctx, signature); err != nil {
		return domain.TransferResult{}, err
	}

	return domain.TransferResult{Signature: signature}, nil
}

// latestBlockhash fetches a recent blockhash to anchor a new transaction.
func (c *Client) latestBlockhash(ctx context.Context) (string, error) {
	params := []any{map[string]any{"commitment": c.commitment}}

	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return "", fmt.Errorf("solana: get latest blockhash: %w", err)
	}
	if result.Value.Blockhash == "" {
		return "", fmt.Errorf("solana: node returned empty blockhash")
	}
	return result.Value.Blockhash, nil
}

// confirm polls signature status until the transaction reaches the client's
// commitment level. Statuses report "confirmed" for both the confirmed and
// processed levels once a block includes the transaction, so anything at or
// above the requested level counts.
func (c *Client) confirm(ctx context.Context, signature string) error {
	deadline := time.Now().Add(c.confirmTimeout)
	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		status, txErr, err := c.signatureStatus(ctx, signature)
		if err != nil {
			return err
		}
		if txErr != nil {
			return fmt.Errorf("solana: transaction %s failed on chain: %s", signature, string(txErr))
		}
		if statusReached(status, c.commitment) {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("solana: transaction %s not confirmed within %s", signature, c.confirmTimeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("solana: confirming %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

// signatureStatus returns the confirmation status of a signature, the
// on-chain error if the transaction failed, or empty values if the node has
// not seen the signature yet.
func (c *Client) signatureStatus(ctx context.Context, signature string) (string, json.RawMessage, error) {
	params := []any{
		[]string{signature},
		map[string]any{"searchTransactionHistory": false},
	}

	var result struct {
		Value []*struct {
			ConfirmationStatus string          `json:"confirmationStatus"`
			Err                json.RawMessage `json:"err"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return "", nil, fmt.Errorf("solana: get signature status: %w", err)
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return "", nil, nil
	}
	st := result.Value[0]
	if len(st.Err) > 0 && string(st.Err) != "null" {
		return st.ConfirmationStatus, st.Err, nil
	}
	return st.ConfirmationStatus, nil, nil
}

// statusReached reports whether an observed confirmation status satisfies
// the wanted commitment level.
func statusReached(status, want string) bool {
	rank := map[string]int{"processed": 1, "confirmed": 2, "finalized": 3}
	s, ok := rank[status]
	if !ok {
		return false
	}
	w, ok := rank[want]
	if !ok {
		w = rank["confirmed"]
	}
	return s >= w
}

// --------------------------------------------------------------------------
// JSON-RPC plumbing
// --------------------------------------------------------------------------

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call executes a JSON-RPC method and decodes the result field into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ domain.LedgerClient = (*Client)(nil)
