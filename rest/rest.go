// Package rest talks to adapt's HTTP API. It carries the raw account token
// on every request and decodes API errors into APIError values.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

const (
	// Outbound request budget.
	requestBurst = 10

	maxErrorBody = 4 << 10
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger

	mu    sync.RWMutex
	token string
}

type Arguments struct {
	// BaseURL of the HTTP API, e.g. https://api.adapt.chat.
	BaseURL string
	Token   string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func New(args Arguments) *Client {
	httpClient := args.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	log := args.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    args.BaseURL,
		token:      args.Token,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(requestBurst), requestBurst),
		log:        log,
	}
}

// SetToken swaps the token used on subsequent requests. Login uses it after
// trading credentials for a token; requests already in flight keep the
// token they started with.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// CloseIdleConnections releases pooled connections on shutdown.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
	Raw     []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("adapt api: %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("adapt api: %d", e.Status)
}

// do runs one request against the API: path joined onto the base URL, body
// marshaled as JSON when present, response decoded into out when given.
func (c *Client) do(ctx context.Context, method string, path string, query url.Values, body any, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		// The API takes the raw token, no scheme prefix.
		req.Header.Set("Authorization", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	c.log.Debug("api request", "method", method, "path", path)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func decodeAPIError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	apiErr := &APIError{Status: res.StatusCode, Raw: raw}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}
