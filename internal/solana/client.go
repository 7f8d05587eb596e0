package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	// SlotsPerDay approximates how many slots Solana produces in 24h at
	// 400ms per slot. Backfill uses it to locate historical days.
	SlotsPerDay = 216_000

	// confirmationSlots is how far behind the tip we stay so that every
	// block we read is finalized.
	confirmationSlots = 32

	// sampleSignatures caps how many transaction signatures a block
	// contributes to derivation entropy.
	sampleSignatures = 5

	// recentBlockSpacing is the slot gap between consecutive samples in
	// RecentBlocks, roughly 40 seconds of chain time.
	recentBlockSpacing = 100

	// recentBlockProbes bounds the backward search when a sampled slot
	// was skipped by the cluster.
	recentBlockProbes = 6

	fetchDelay = 100 * time.Millisecond
)

// Block is the subset of a Solana block the pipeline consumes. Signatures
// holds at most sampleSignatures entries.
type Block struct {
	Slot              uint64
	Blockhash         string
	PreviousBlockhash string
	ParentSlot        uint64
	BlockTime         *int64
	Signatures        []string
}

// Client is a minimal Solana JSON-RPC client covering the handful of
// methods the pipeline needs.
type Client struct {
	url        string
	httpClient *http.Client
	fetchDelay time.Duration
}

// NewClient creates a client for the given RPC endpoint.
func NewClient(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		fetchDelay: fetchDelay,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("rpc status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// CurrentSlot returns the cluster's current slot.
func (c *Client) CurrentSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.call(ctx, "getSlot", nil, &slot); err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// Block fetches the block at the given slot with signature-level
// transaction detail. Returns an error if the slot was skipped.
func (c *Client) Block(ctx context.Context, slot uint64) (Block, error) {
	params := []any{slot, map[string]any{
		"encoding":                       "json",
		"transactionDetails":             "signatures",
		"rewards":                        false,
		"maxSupportedTransactionVersion": 0,
	}}
	var res struct {
		Blockhash         string   `json:"blockhash"`
		PreviousBlockhash string   `json:"previousBlockhash"`
		ParentSlot        uint64   `json:"parentSlot"`
		BlockTime         *int64   `json:"blockTime"`
		Signatures        []string `json:"signatures"`
	}
	if err := c.call(ctx, "getBlock", params, &res); err != nil {
		return Block{}, fmt.Errorf("get block %d: %w", slot, err)
	}
	sigs := res.Signatures
	if len(sigs) > sampleSignatures {
		sigs = sigs[:sampleSignatures]
	}
	return Block{
		Slot:              slot,
		Blockhash:         res.Blockhash,
		PreviousBlockhash: res.PreviousBlockhash,
		ParentSlot:        res.ParentSlot,
		BlockTime:         res.BlockTime,
		Signatures:        sigs,
	}, nil
}

// BlockNear fetches the block at slot, probing backward one slot at a
// time for up to probes attempts when slots were skipped.
func (c *Client) BlockNear(ctx context.Context, slot uint64, probes int) (Block, error) {
	var lastErr error
	for offset := 0; offset < probes; offset++ {
		if uint64(offset) > slot {
			break
		}
		b, err := c.Block(ctx, slot-uint64(offset))
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return Block{}, fmt.Errorf("no block within %d slots of %d: %w", probes, slot, lastErr)
}

// LatestBlock returns the most recent finalized block, confirmationSlots
// behind the tip.
func (c *Client) LatestBlock(ctx context.Context) (Block, error) {
	slot, err := c.CurrentSlot(ctx)
	if err != nil {
		return Block{}, err
	}
	return c.BlockNear(ctx, slot-confirmationSlots, recentBlockProbes)
}

// RecentBlocks samples count finalized blocks spaced recentBlockSpacing
// slots apart, newest first. Slots that cannot be resolved even after
// probing are skipped, so the result may be shorter than count. An error
// is returned only when the current slot cannot be read.
func (c *Client) RecentBlocks(ctx context.Context, count int) ([]Block, error) {
	current, err := c.CurrentSlot(ctx)
	if err != nil {
		return nil, err
	}

	blocks := make([]Block, 0, count)
	for i := 0; i < count; i++ {
		target := current - confirmationSlots - uint64(i*recentBlockSpacing)
		b, err := c.BlockNear(ctx, target, recentBlockProbes)
		if err != nil {
			log.Printf("[solana] skipping slot %d: %v", target, err)
			continue
		}
		blocks = append(blocks, b)
		if c.fetchDelay > 0 && i < count-1 {
			time.Sleep(c.fetchDelay)
		}
	}
	return blocks, nil
}

// Health reports whether the RPC node considers itself healthy. A nil
// return means healthy.
func (c *Client) Health(ctx context.Context) error {
	var status string
	if err := c.call(ctx, "getHealth", nil, &status); err != nil {
		return fmt.Errorf("get health: %w", err)
	}
	if status != "ok" {
		return fmt.Errorf("node health: %s", status)
	}
	return nil
}
