package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"guessrounds/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), config.ChainConfig{
		RPCEndpoint:   srv.URL,
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
		FallbackFee:   "0.000005",
	}, nil)
}

func rpcReply(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  result,
	})
}

func TestBalance(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcReply(w, map[string]any{"value": uint64(485_000_000)})
	})
	got, err := c.Balance(context.Background(), "some-address")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.485")) {
		t.Fatalf("balance = %s, want 0.485", got)
	}
}

func TestBalanceRetriesTransientFailure(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		rpcReply(w, map[string]any{"value": uint64(1_000_000_000)})
	})
	got, err := c.Balance(context.Background(), "some-address")
	if err != nil {
		t.Fatalf("balance after retries: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("balance = %s, want 1", got)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestTransferSubmitsSignedTransaction(t *testing.T) {
	from := testKeypair(t, 3)
	blockhash := base58.Encode(bytesOf(32, 9))

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case "getLatestBlockhash":
			rpcReply(w, map[string]any{"value": map[string]any{"blockhash": blockhash}})
		case "sendTransaction":
			wire, ok := req.Params[0].(string)
			if !ok || wire == "" {
				t.Errorf("sendTransaction missing wire payload")
			}
			if _, err := base64.StdEncoding.DecodeString(wire); err != nil {
				t.Errorf("wire payload is not base64: %v", err)
			}
			rpcReply(w, "node-signature")
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
	})

	to := testKeypair(t, 4)
	sig, err := c.Transfer(context.Background(), from, to.Address(), decimal.RequireFromString("0.485"))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if sig != "node-signature" {
		t.Fatalf("signature = %s, want the node echo", sig)
	}
}

func TestTransferSurfacesRPCError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Method == "getLatestBlockhash" {
			rpcReply(w, map[string]any{"value": map[string]any{"blockhash": base58.Encode(bytesOf(32, 1))}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32002, "message": "Blockhash not found"},
		})
	})

	from := testKeypair(t, 3)
	to := testKeypair(t, 4)
	if _, err := c.Transfer(context.Background(), from, to.Address(), decimal.NewFromInt(1)); err == nil {
		t.Fatalf("expected the node error to surface")
	}
}

func TestSignatureStatuses(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcReply(w, map[string]any{"value": []any{
			map[string]any{"confirmationStatus": "finalized", "err": nil},
			map[string]any{"confirmationStatus": "processed", "err": map[string]any{"InstructionError": []any{0, "Custom"}}},
			nil,
		}})
	})
	statuses, err := c.SignatureStatuses(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if !statuses[0].Known || !statuses[0].Confirmed || statuses[0].Failed {
		t.Fatalf("a = %+v, want known confirmed", statuses[0])
	}
	if !statuses[1].Known || statuses[1].Confirmed || !statuses[1].Failed {
		t.Fatalf("b = %+v, want known failed", statuses[1])
	}
	if statuses[2].Known {
		t.Fatalf("c = %+v, want unknown", statuses[2])
	}
}

func TestEstimateTransferFeeFallback(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("fee estimate must not hit the node")
	})
	fee, err := c.EstimateTransferFee(context.Background())
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	if !fee.Equal(decimal.RequireFromString("0.000005")) {
		t.Fatalf("fee = %s, want 0.000005", fee)
	}
}

func bytesOf(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}
