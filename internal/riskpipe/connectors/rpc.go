package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// RPCClient talks to a chain node's HTTP API. Every call carries its own
// short timeout; a failed call is transient and retried by the caller on
// the next cycle.
type RPCClient struct {
	base string
	hc   *http.Client
}

func NewRPCClient(base string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RPCClient{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

type ChainHeadResp struct {
	HeadNum       int64  `json:"head_num"`
	HeadHash      string `json:"head_hash"`
	HeadTimestamp int64  `json:"head_timestamp"`
	Empty         bool   `json:"empty"`
}

func (c *RPCClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("rpc %s status=%d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *RPCClient) ChainHead(ctx context.Context) (ChainHeadResp, error) {
	var out ChainHeadResp
	err := c.getJSON(ctx, "/chain/head", &out)
	return out, err
}

// BlockByNumber fetches a block with its full transactions, event logs
// included.
func (c *RPCClient) BlockByNumber(ctx context.Context, n int64) (model.Block, error) {
	var blk model.Block
	err := c.getJSON(ctx, "/block/by-number/"+strconv.FormatInt(n, 10), &blk)
	return blk, err
}
