package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Client mirrors a server's /api/analysis list into a local Set.
type Client struct {
	*Set

	baseURL    string
	httpClient *http.Client
	authToken  string
}

// NewClient creates a client for the server at baseURL. Call Refresh to
// populate it.
func NewClient(baseURL, authToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		Set:        NewSet(nil),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		authToken:  authToken,
	}
}

// Refresh fetches the current link list and replaces the local set.
func (c *Client) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/analysis", nil)
	if err != nil {
		return err
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch analysis links: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch analysis links: server returned %d", resp.StatusCode)
	}

	var links []Link
	if err := json.NewDecoder(resp.Body).Decode(&links); err != nil {
		return fmt.Errorf("decode analysis links: %w", err)
	}
	c.Replace(links)
	return nil
}

// Open resolves path to an absolute target. Relative targets are resolved
// against the server.
func (c *Client) Open(path string) (string, error) {
	t, err := c.Set.Open(path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(t, "/") {
		return c.baseURL + t, nil
	}
	return t, nil
}
