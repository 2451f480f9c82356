package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// ErrNotAuthenticated is returned by calls that need a token before Authenticate succeeded
var ErrNotAuthenticated = errors.New("client not authenticated - call Authenticate() first")

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("API error (%d): %s - %s", e.StatusCode, e.Status, e.Message)
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client provides HTTP client for the tagmesh API
type Client struct {
	config     Config
	httpClient *http.Client
	token      string
	baseURL    *url.URL
}

// NewClient creates a new tagmesh HTTP client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("ClientID is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// Authenticate authenticates with the tagmesh server and stores the token
func (c *Client) Authenticate(ctx context.Context) error {
	authReq := map[string]string{
		"clientId": c.config.ClientID,
	}

	var authResp AuthResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", authReq, &authResp, false)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	c.token = authResp.Token
	return nil
}

// Logout revokes the current token on the server and forgets it
func (c *Client) Logout(ctx context.Context) (*LogoutResponse, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}

	var resp LogoutResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/logout", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to logout: %w", err)
	}

	c.token = ""
	return &resp, nil
}

// ListAlternatives returns the routing table, or one row of it when tag is set
func (c *Client) ListAlternatives(ctx context.Context, tag string) (*AlternativesResponse, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}

	query := url.Values{}
	if tag != "" {
		query.Set("tag", tag)
	}

	var resp AlternativesResponse
	if err := c.doRequestWithQuery(ctx, http.MethodGet, "/api/v1/alternatives", query, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list alternatives: %w", err)
	}

	return &resp, nil
}

// ReadMessages reads journaled messages of a tag starting at a given offset
func (c *Client) ReadMessages(ctx context.Context, tag string, offset int64, limit int) (*ReadMessagesResponse, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	if tag == "" {
		return nil, fmt.Errorf("tag is required")
	}

	query := url.Values{}
	if offset >= 0 {
		query.Set("offset", strconv.FormatInt(offset, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp ReadMessagesResponse
	path := "/api/v1/tags/" + tag + "/messages"
	if err := c.doRequestWithQuery(ctx, http.MethodGet, path, query, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return &resp, nil
}

// ListPlugins returns the loaded plugins in load order
func (c *Client) ListPlugins(ctx context.Context) (*PluginsResponse, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}

	var resp PluginsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/plugins", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}

	return &resp, nil
}

// GetHealth returns the health status of the tagmesh server
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp, false)
	if err != nil {
		// An unhealthy server still reports its status with a 503
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && resp.Message != "" {
			return &resp, nil
		}
		return nil, fmt.Errorf("failed to get health status: %w", err)
	}

	return &resp, nil
}

// Admin Methods (require admin token)

// AdminUnloadPlugin unloads a plugin from the host (admin only)
func (c *Client) AdminUnloadPlugin(ctx context.Context, name string) (*UnloadResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}
	if name == "" {
		return nil, fmt.Errorf("plugin name is required")
	}

	var resp UnloadResponse
	path := "/api/v1/admin/plugins/" + name + "/unload"
	if err := c.doRequest(ctx, http.MethodPost, path, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to unload plugin: %w", err)
	}

	return &resp, nil
}

// AdminGetStats returns system statistics (admin only)
func (c *Client) AdminGetStats(ctx context.Context) (*AdminStatsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp AdminStatsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/stats", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return &resp, nil
}

// requireToken fails unless a token is held or the server runs without auth
func (c *Client) requireToken() error {
	if c.token == "" && !c.config.NoAuth {
		return ErrNotAuthenticated
	}
	return nil
}

// doRequestWithQuery performs an HTTP request with query parameters and optional authentication
func (c *Client) doRequestWithQuery(ctx context.Context, method, path string, queryParams url.Values, reqBody interface{}, respBody interface{}, requireAuth bool) error {
	u := &url.URL{Path: path}
	if len(queryParams) > 0 {
		u.RawQuery = queryParams.Encode()
	}
	fullURL := c.baseURL.ResolveReference(u)

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err == nil {
			apiErr.Message = errResp.Message
		} else {
			apiErr.Message = string(bodyBytes)
		}
		// Some endpoints describe their state alongside the error status
		if respBody != nil {
			_ = json.Unmarshal(bodyBytes, respBody)
		}
		return apiErr
	}

	if respBody != nil {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// doRequest performs an HTTP request with optional authentication
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody interface{}, respBody interface{}, requireAuth bool) error {
	return c.doRequestWithQuery(ctx, method, path, nil, reqBody, respBody, requireAuth)
}

// IsAuthenticated returns whether the client has a valid token
func (c *Client) IsAuthenticated() bool {
	return c.token != ""
}

// GetToken returns the current authentication token
func (c *Client) GetToken() string {
	return c.token
}

// SetToken sets the authentication token (useful for testing or token reuse)
func (c *Client) SetToken(token string) {
	c.token = token
}
