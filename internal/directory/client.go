package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one directory request.
const DefaultTimeout = 10 * time.Second

// Client is the REST client for the borrower directory service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a directory client. baseURL is the API root; the
// borrower list is served at {baseURL}/all.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type allResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		UserAddress string `json:"userAddress"`
	} `json:"data"`
}

// FetchBorrowers returns every address the directory knows about.
func (c *Client) FetchBorrowers(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/all", nil)
	if err != nil {
		return nil, fmt.Errorf("directory: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("directory: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("directory: http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed allResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("directory: decode response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("directory: service reported failure")
	}

	out := make([]string, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		out = append(out, d.UserAddress)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
