package solana

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/polygens/wagerd/internal/crypto"
)

func newTestHandle(t *testing.T) *crypto.Handle {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	h, err := crypto.NewHandle(crypto.Base58Encode(priv))
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	return h
}

// rpcHandler routes by JSON-RPC method name.
func rpcHandler(t *testing.T, methods map[string]func(params []json.RawMessage) any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding rpc request: %v", err)
			return
		}
		fn, ok := methods[req.Method]
		if !ok {
			t.Errorf("unexpected rpc method %q", req.Method)
			http.Error(w, "unknown method", http.StatusBadRequest)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": fn(req.Params)}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(rpcHandler(t, map[string]func([]json.RawMessage) any{
		"getBalance": func(params []json.RawMessage) any {
			var addr string
			if err := json.Unmarshal(params[0], &addr); err != nil {
				t.Fatalf("decoding address param: %v", err)
			}
			if addr != "target-address" {
				t.Errorf("queried address %q", addr)
			}
			return map[string]any{"value": uint64(2_500_000_000)}
		},
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "confirmed", time.Second, time.Second)
	got, err := c.Balance(context.Background(), "target-address")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if got != 2.5 {
		t.Errorf("Balance = %v, want 2.5", got)
	}
}

func TestBalanceRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]any{"code": -32602, "message": "invalid address"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "confirmed", time.Second, time.Second)
	if _, err := c.Balance(context.Background(), "nope"); err == nil {
		t.Error("expected error from rpc error response")
	}
}

func TestTransfer(t *testing.T) {
	from := newTestHandle(t)
	to := newTestHandle(t)
	blockhash := crypto.Base58Encode(make([]byte, 32))

	var sentTx []byte
	srv := httptest.NewServer(rpcHandler(t, map[string]func([]json.RawMessage) any{
		"getLatestBlockhash": func([]json.RawMessage) any {
			return map[string]any{"value": map[string]any{"blockhash": blockhash}}
		},
		"sendTransaction": func(params []json.RawMessage) any {
			var enc string
			if err := json.Unmarshal(params[0], &enc); err != nil {
				t.Fatalf("decoding tx param: %v", err)
			}
			raw, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				t.Fatalf("decoding tx base64: %v", err)
			}
			sentTx = raw
			return "test-signature"
		},
		"getSignatureStatuses": func([]json.RawMessage) any {
			return map[string]any{
				"value": []any{map[string]any{"confirmationStatus": "confirmed", "err": nil}},
			}
		},
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "confirmed", 5*time.Second, time.Second)
	res, err := c.Transfer(context.Background(), from, to.Address(), 1.5)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if res.Signature != "test-signature" {
		t.Errorf("signature = %q", res.Signature)
	}

	// The submitted blob is compact-u16(1) + 64-byte signature + message.
	if len(sentTx) < 1+ed25519.SignatureSize {
		t.Fatalf("transaction too short: %d bytes", len(sentTx))
	}
	if sentTx[0] != 1 {
		t.Errorf("signature count = %d, want 1", sentTx[0])
	}
	sig := sentTx[1 : 1+ed25519.SignatureSize]
	msg := sentTx[1+ed25519.SignatureSize:]

	fromPub, err := crypto.Base58Decode(from.Address())
	if err != nil {
		t.Fatalf("decoding from address: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(fromPub), msg, sig) {
		t.Error("transaction signature does not verify against sender key")
	}

	// Header, key count, then the fee payer key.
	if msg[0] != 1 || msg[1] != 0 || msg[2] != 1 {
		t.Errorf("message header = %v, want [1 0 1]", msg[:3])
	}
	if msg[3] != 3 {
		t.Errorf("account key count = %d, want 3", msg[3])
	}
	gotPayer := msg[4 : 4+ed25519.PublicKeySize]
	if string(gotPayer) != string(fromPub) {
		t.Error("fee payer key is not the sender")
	}

	// Instruction data sits at the tail: tag 2, then lamports.
	data := msg[len(msg)-12:]
	if tag := binary.LittleEndian.Uint32(data[0:4]); tag != 2 {
		t.Errorf("instruction tag = %d, want 2", tag)
	}
	if lamports := binary.LittleEndian.Uint64(data[4:12]); lamports != 1_500_000_000 {
		t.Errorf("lamports = %d, want 1500000000", lamports)
	}
}

func TestTransferRejectsSelf(t *testing.T) {
	from := newTestHandle(t)
	srv := httptest.NewServer(rpcHandler(t, map[string]func([]json.RawMessage) any{
		"getLatestBlockhash": func([]json.RawMessage) any {
			return map[string]any{"value": map[string]any{"blockhash": crypto.Base58Encode(make([]byte, 32))}}
		},
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "confirmed", time.Second, time.Second)
	if _, err := c.Transfer(context.Background(), from, from.Address(), 1); err == nil {
		t.Error("expected error transferring to self")
	}
}

func TestTransferRejectsDust(t *testing.T) {
	c := NewClient("http://unused", "confirmed", time.Second, time.Second)
	if _, err := c.Transfer(context.Background(), newTestHandle(t), "addr", 0.0000000001); err == nil {
		t.Error("expected error for amount below one lamport")
	}
}

func TestConfirmSurfacesOnChainError(t *testing.T) {
	from := newTestHandle(t)
	to := newTestHandle(t)

	srv := httptest.NewServer(rpcHandler(t, map[string]func([]json.RawMessage) any{
		"getLatestBlockhash": func([]json.RawMessage) any {
			return map[string]any{"value": map[string]any{"blockhash": crypto.Base58Encode(make([]byte, 32))}}
		},
		"sendTransaction": func([]json.RawMessage) any { return "failed-sig" },
		"getSignatureStatuses": func([]json.RawMessage) any {
			return map[string]any{
				"value": []any{map[string]any{
					"confirmationStatus": "processed",
					"err":                map[string]any{"InstructionError": []any{0, "Custom"}},
				}},
			}
		},
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "confirmed", 5*time.Second, time.Second)
	if _, err := c.Transfer(context.Background(), from, to.Address(), 1); err == nil {
		t.Error("expected on-chain failure to surface as an error")
	}
}

func TestLamportsConversion(t *testing.T) {
	if got := AmountToLamports(0.001); got != 1_000_000 {
		t.Errorf("AmountToLamports(0.001) = %d", got)
	}
	if got := LamportsToAmount(1_000_000); got != 0.001 {
		t.Errorf("LamportsToAmount(1000000) = %v", got)
	}
}

func TestStatusReached(t *testing.T) {
	if !statusReached("finalized", "confirmed") {
		t.Error("finalized should satisfy confirmed")
	}
	if statusReached("processed", "confirmed") {
		t.Error("processed should not satisfy confirmed")
	}
	if statusReached("", "confirmed") {
		t.Error("empty status should not satisfy anything")
	}
}

func TestAppendCompactU16(t *testing.T) {
	cases := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0}},
		{1, []byte{1}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}
	for _, c := range cases {
		got := appendCompactU16(nil, c.n)
		if len(got) != len(c.want) {
			t.Errorf("compactU16(%d) = %v, want %v", c.n, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("compactU16(%d) = %v, want %v", c.n, got, c.want)
				break
			}
		}
	}
}
