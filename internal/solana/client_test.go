package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type rpcCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func decodeCall(t *testing.T, r *http.Request) rpcCall {
	t.Helper()
	var call rpcCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		t.Fatalf("decode rpc call: %v", err)
	}
	return call
}

func TestCurrentSlot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeCall(t, r)
		if call.Method != "getSlot" {
			t.Errorf("method = %q, want getSlot", call.Method)
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","result":362000000,"id":1}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	slot, err := client.CurrentSlot(context.Background())
	if err != nil {
		t.Fatalf("CurrentSlot error: %v", err)
	}
	if slot != 362000000 {
		t.Errorf("slot = %d, want 362000000", slot)
	}
}

func TestBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeCall(t, r)
		if call.Method != "getBlock" {
			t.Errorf("method = %q, want getBlock", call.Method)
		}
		var slot uint64
		json.Unmarshal(call.Params[0], &slot)
		if slot != 1234 {
			t.Errorf("slot param = %d, want 1234", slot)
		}
		var cfg map[string]any
		json.Unmarshal(call.Params[1], &cfg)
		if cfg["transactionDetails"] != "signatures" {
			t.Errorf("transactionDetails = %v, want signatures", cfg["transactionDetails"])
		}
		if cfg["rewards"] != false {
			t.Errorf("rewards = %v, want false", cfg["rewards"])
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","result":{
			"blockhash":"abc123",
			"previousBlockhash":"prev456",
			"parentSlot":1233,
			"blockTime":1719000000,
			"signatures":["s1","s2","s3","s4","s5","s6","s7"]
		},"id":1}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	b, err := client.Block(context.Background(), 1234)
	if err != nil {
		t.Fatalf("Block error: %v", err)
	}
	if b.Slot != 1234 {
		t.Errorf("Slot = %d, want 1234", b.Slot)
	}
	if b.Blockhash != "abc123" {
		t.Errorf("Blockhash = %q, want abc123", b.Blockhash)
	}
	if b.PreviousBlockhash != "prev456" {
		t.Errorf("PreviousBlockhash = %q, want prev456", b.PreviousBlockhash)
	}
	if b.BlockTime == nil || *b.BlockTime != 1719000000 {
		t.Errorf("BlockTime = %v, want 1719000000", b.BlockTime)
	}
	if len(b.Signatures) != 5 {
		t.Errorf("signatures sampled to %d, want 5", len(b.Signatures))
	}
}

func TestBlock_SkippedSlot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","error":{"code":-32007,"message":"Slot 100 was skipped"},"id":1}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Block(context.Background(), 100)
	if err == nil {
		t.Fatal("expected error for skipped slot")
	}
}

func TestBlockNear_ProbesBackward(t *testing.T) {
	var requested []uint64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeCall(t, r)
		var slot uint64
		json.Unmarshal(call.Params[0], &slot)
		requested = append(requested, slot)
		if slot == 98 {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","result":{"blockhash":"h98","previousBlockhash":"h97","parentSlot":97},"id":1}`)
			return
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","error":{"code":-32007,"message":"skipped"},"id":1}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	b, err := client.BlockNear(context.Background(), 100, 6)
	if err != nil {
		t.Fatalf("BlockNear error: %v", err)
	}
	if b.Slot != 98 {
		t.Errorf("Slot = %d, want 98", b.Slot)
	}
	want := []uint64{100, 99, 98}
	if len(requested) != len(want) {
		t.Fatalf("requested %v, want %v", requested, want)
	}
	for i := range want {
		if requested[i] != want[i] {
			t.Errorf("request %d = slot %d, want %d", i, requested[i], want[i])
		}
	}
}

func TestBlockNear_Exhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","error":{"code":-32007,"message":"skipped"},"id":1}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.BlockNear(context.Background(), 100, 3)
	if err == nil {
		t.Fatal("expected error when all probes fail")
	}
}

func TestRecentBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeCall(t, r)
		switch call.Method {
		case "getSlot":
			fmt.Fprint(w, `{"jsonrpc":"2.0","result":1000,"id":1}`)
		case "getBlock":
			var slot uint64
			json.Unmarshal(call.Params[0], &slot)
			fmt.Fprintf(w, `{"jsonrpc":"2.0","result":{"blockhash":"hash-%d","previousBlockhash":"prev-%d","parentSlot":%d},"id":1}`,
				slot, slot, slot-1)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.fetchDelay = 0
	blocks, err := client.RecentBlocks(context.Background(), 3)
	if err != nil {
		t.Fatalf("RecentBlocks error: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}
	wantSlots := []uint64{968, 868, 768}
	for i, b := range blocks {
		if b.Slot != wantSlots[i] {
			t.Errorf("block %d slot = %d, want %d", i, b.Slot, wantSlots[i])
		}
	}
}

func TestRecentBlocks_SkipsUnresolvable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeCall(t, r)
		switch call.Method {
		case "getSlot":
			fmt.Fprint(w, `{"jsonrpc":"2.0","result":1000,"id":1}`)
		case "getBlock":
			var slot uint64
			json.Unmarshal(call.Params[0], &slot)
			// Second sample target and all its probes fail.
			if slot <= 868 && slot >= 863 {
				fmt.Fprint(w, `{"jsonrpc":"2.0","error":{"code":-32007,"message":"skipped"},"id":1}`)
				return
			}
			fmt.Fprintf(w, `{"jsonrpc":"2.0","result":{"blockhash":"hash-%d","previousBlockhash":"prev-%d","parentSlot":%d},"id":1}`,
				slot, slot, slot-1)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.fetchDelay = 0
	blocks, err := client.RecentBlocks(context.Background(), 3)
	if err != nil {
		t.Fatalf("RecentBlocks error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2 after skipping", len(blocks))
	}
	if blocks[0].Slot != 968 || blocks[1].Slot != 768 {
		t.Errorf("slots = %d, %d, want 968, 768", blocks[0].Slot, blocks[1].Slot)
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeCall(t, r)
		if call.Method != "getHealth" {
			t.Errorf("method = %q, want getHealth", call.Method)
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","result":"ok","id":1}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health error: %v", err)
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","error":{"code":-32005,"message":"Node is behind by 42 slots"},"id":1}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.Health(context.Background()); err == nil {
		t.Error("expected error for unhealthy node")
	}
}
