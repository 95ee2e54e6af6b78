// Package graphql talks to the upstream GraphQL gateway that owns clinical
// data, submissions and the data dictionary.
package graphql

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/genomics-portal/platform/pkg/common/logger"
	"github.com/genomics-portal/platform/pkg/gateway/httpclient"
	"github.com/genomics-portal/platform/pkg/observability/metrics"
)

var ErrUpstream = errors.New("upstream gateway error")

// StatusError is a non-2xx response from the gateway.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUpstream }

type ErrorMessage struct {
	Message    string                 `json:"message"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Error carries the errors array of a GraphQL response.
type Error struct {
	Operation string
	Errors    []ErrorMessage
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, m := range e.Errors {
		msgs = append(msgs, m.Message)
	}
	return fmt.Sprintf("graphql %s: %s", e.Operation, strings.Join(msgs, "; "))
}

func (e *Error) Unwrap() error { return ErrUpstream }

// Code returns the first extensions.code reported by the gateway.
func (e *Error) Code() string {
	for _, m := range e.Errors {
		if code, ok := m.Extensions["code"].(string); ok {
			return code
		}
	}
	return ""
}

type Request struct {
	Operation string                 `json:"operationName,omitempty"`
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorMessage  `json:"errors"`
}

// Cache stores raw `data` payloads of cacheable operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Client struct {
	endpoint  string
	http      *http.Client
	attempts  int
	baseDelay time.Duration
	cache     Cache
	cacheTTL  time.Duration
}

type Option func(*Client)

func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.baseDelay = baseDelay
	}
}

func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

func NewClient(endpoint string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = httpclient.New(10 * time.Second)
	}
	c := &Client{
		endpoint:  endpoint,
		http:      httpClient,
		attempts:  3,
		baseDelay: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes req with the caller's token and decodes `data` into out.
func (c *Client) Do(ctx context.Context, token string, req Request, out interface{}) error {
	err := c.do(ctx, token, req, out, false)
	metrics.ObserveUpstream(req.Operation, err)
	return err
}

// DoCached is Do with the response data memoized by (query, variables).
// Authorization is checked by the caller before the cache is consulted.
func (c *Client) DoCached(ctx context.Context, token string, req Request, out interface{}) error {
	err := c.do(ctx, token, req, out, c.cache != nil && c.cacheTTL > 0)
	metrics.ObserveUpstream(req.Operation, err)
	return err
}

func (c *Client) do(ctx context.Context, token string, req Request, out interface{}, cached bool) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding graphql request: %w", err)
	}

	var key string
	if cached {
		key = cacheKey(body)
		data, hit, cacheErr := c.cache.Get(ctx, key)
		if cacheErr != nil {
			logger.Log.WithError(cacheErr).Warn("query cache lookup failed")
		}
		metrics.ObserveCache(hit)
		if hit {
			return decodeData(req.Operation, data, out)
		}
	}

	var data json.RawMessage
	reqErr := httpclient.Retry(ctx, c.attempts, c.baseDelay, func() error {
		var doErr error
		data, doErr = c.post(ctx, token, req.Operation, body)
		return doErr
	})
	if reqErr != nil {
		return reqErr
	}

	if cached {
		if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
			logger.Log.WithError(err).Warn("query cache store failed")
		}
	}
	return decodeData(req.Operation, data, out)
}

func (c *Client) post(ctx context.Context, token, operation string, body []byte) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, httpclient.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if id := httpclient.RequestID(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if httpclient.IsRetriable(err) {
			return nil, err
		}
		return nil, httpclient.Permanent(err)
	}
	defer resp.Body.Close()

	logger.Log.WithFields(map[string]interface{}{
		"operation":  operation,
		"status":     resp.StatusCode,
		"request_id": httpclient.RequestID(ctx),
		"duration":   time.Since(start).Milliseconds(),
	}).Debug("graphql request")

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, httpclient.Permanent(statusErr)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, httpclient.Permanent(fmt.Errorf("decoding graphql response: %w", err))
	}
	if len(decoded.Errors) > 0 {
		return nil, httpclient.Permanent(&Error{Operation: operation, Errors: decoded.Errors})
	}
	return decoded.Data, nil
}

func decodeData(operation string, data []byte, out interface{}) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s data: %w", operation, err)
	}
	return nil
}

func cacheKey(body []byte) string {
	sum := sha256.Sum256(body)
	return "gql:" + hex.EncodeToString(sum[:])
}
