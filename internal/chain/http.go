package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
)

// HTTPClient talks JSON to one or more indexer/RPC endpoints. Each call tries
// the endpoints in order and returns the first success.
type HTTPClient struct {
	endpoints []string
	client    *http.Client
}

func NewHTTPClient(endpoints []string) (*HTTPClient, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: no endpoints configured", ErrChain)
	}
	eps := make([]string, len(endpoints))
	for i, ep := range endpoints {
		eps[i] = strings.TrimRight(ep, "/")
	}
	return &HTTPClient{
		endpoints: eps,
		client:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type submitRequest struct {
	Tx []byte `json:"tx"`
}

type submitResponse struct {
	TxHash TxHash `json:"txHash"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (c *HTTPClient) FetchTransferRecordsSince(ctx context.Context, since time.Time) ([]TransferRecord, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since.UnixMilli(), 10))

	var records []TransferRecord
	err := c.each(ctx, "fetch", func(ep string) error {
		records = nil
		return c.do(ctx, http.MethodGet, ep+"/transfers?"+q.Encode(), nil, &records)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (c *HTTPClient) SubmitSignedTransaction(ctx context.Context, tx []byte) (TxHash, error) {
	body, err := json.Marshal(submitRequest{Tx: tx})
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %v", err)
	}

	var resp submitResponse
	err = c.each(ctx, "broadcast", func(ep string) error {
		return c.do(ctx, http.MethodPost, ep+"/transactions", body, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.TxHash == "" {
		resp.TxHash = HashTransaction(tx)
	}
	logger.Info("Transaction broadcast successfully", "txHash", resp.TxHash)
	return resp.TxHash, nil
}

func (c *HTTPClient) Confirm(ctx context.Context, hash TxHash) error {
	var status statusResponse
	err := c.each(ctx, "confirm", func(ep string) error {
		return c.do(ctx, http.MethodGet, ep+"/transactions/"+url.PathEscape(string(hash)), nil, &status)
	})
	if err != nil {
		return err
	}
	switch status.Status {
	case "confirmed", "finalized":
		return nil
	case "failed":
		return fmt.Errorf("%w: %w: %s", ErrChain, ErrTxFailed, status.Error)
	default:
		return fmt.Errorf("%w: %w: status %q", ErrChain, ErrNotConfirmed, status.Status)
	}
}

// each runs call against every endpoint until one succeeds. A cancelled
// context stops the loop.
func (c *HTTPClient) each(ctx context.Context, op string, call func(ep string) error) error {
	var lastErr error
	for _, ep := range c.endpoints {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := call(ep)
		if err == nil {
			return nil
		}
		logger.Warn("Chain endpoint failed", "op", op, "endpoint", ep, "error", err)
		lastErr = err
	}
	return fmt.Errorf("%w: all endpoints failed (%s): %v", ErrChain, op, lastErr)
}

func (c *HTTPClient) do(ctx context.Context, method, u string, body []byte, out interface{}) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned non-200 status code: %d, Body: %s", resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}
