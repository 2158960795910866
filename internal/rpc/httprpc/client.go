// Package httprpc implements the client side of the wire transport over
// plain net/http with JSON bodies, one POST endpoint per operation of the
// wire protocol. The matching handlers live in internal/node.
package httprpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ringd/internal/ringerr"
	"ringd/internal/ringnode"
	"ringd/internal/rpc"
)

// Client is an rpc.Caller backed by an *http.Client. Every call POSTs a
// JSON-encoded argument to http://host:port/rpc/<op> and reads a
// JSON-encoded reply.
type Client struct {
	hc *http.Client
}

// New builds a Client whose requests time out after timeout, the finite
// per-call transport timeout every remote call must impose.
func New(timeout time.Duration) *Client {
	return &Client{hc: &http.Client{Timeout: timeout}}
}

func (c *Client) Call(ctx context.Context, target ringnode.Node, op rpc.Op, args any) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshaling args for %s: %w", op, err)
	}

	url := fmt.Sprintf("http://%s/rpc/%s", target.Addr(), op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ringerr.ErrTimeout
		}
		return nil, ringerr.ErrUnreachable
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ringerr.ErrUnreachable
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ringerr.ErrStoreNotFound
	}
	if resp.StatusCode == http.StatusConflict {
		return nil, ringerr.ErrVersionRegressed
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: remote returned status %d: %s", ringerr.ErrUnreachable, resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}
