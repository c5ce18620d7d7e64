package privacy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Maphikza/sip-privacy-wallet/internal/chain"
)

// HTTPBackend is a JSON client for a delegated provider service:
//
//	GET  /health
//	POST /send  BackendSendRequest -> {"txHash": ...}
//	POST /swap  BackendSwapRequest -> BackendSwapResponse
type HTTPBackend struct {
	endpoint string
	client   *http.Client
}

func NewHTTPBackend(endpoint string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPBackend{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

type backendSendResponse struct {
	TxHash chain.TxHash `json:"txHash"`
}

func (b *HTTPBackend) Initialize(ctx context.Context) error {
	return b.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (b *HTTPBackend) Send(ctx context.Context, req BackendSendRequest) (chain.TxHash, error) {
	var resp backendSendResponse
	if err := b.do(ctx, http.MethodPost, "/send", req, &resp); err != nil {
		return "", err
	}
	if resp.TxHash == "" {
		return "", fmt.Errorf("%w: back-end returned no transaction hash", chain.ErrChain)
	}
	return resp.TxHash, nil
}

func (b *HTTPBackend) Swap(ctx context.Context, req BackendSwapRequest) (*BackendSwapResponse, error) {
	var resp BackendSwapResponse
	if err := b.do(ctx, http.MethodPost, "/swap", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.endpoint+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", chain.ErrChain, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d: %s", chain.ErrChain, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
