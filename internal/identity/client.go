package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client queries a name registry contract through a node's HTTP query
// endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}
}

type resolveAddressQuery struct {
	ResolveAddress struct {
		Address string `json:"address"`
	} `json:"resolve_address"`
}

type resolveAddressResponse struct {
	Names []string `json:"names"`
}

// Names returns the names address owns in registry. A null list decodes as
// empty.
func (c *Client) Names(ctx context.Context, registry, address string) ([]string, error) {
	var q resolveAddressQuery
	q.ResolveAddress.Address = address
	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}

	u := c.endpoint + "/contracts/" + url.PathEscape(registry) + "/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("registry query: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out resolveAddressResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}
	if out.Names == nil {
		out.Names = []string{}
	}
	return out.Names, nil
}
