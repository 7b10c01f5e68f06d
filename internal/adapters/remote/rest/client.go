// Package rest implements the remote record store over a PostgREST-style HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/tracing"
)

// BackendName is the registry name of the REST backend.
const BackendName = "rest"

const defaultTimeout = 15 * time.Second

// Ensure Client implements ports.RemoteServicePort.
var _ ports.RemoteServicePort = (*Client)(nil)

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client // Optional; overrides Timeout when set
}

// Client talks to a PostgREST-compatible endpoint:
//
//	POST   /rest/v1/{table}            insert
//	PATCH  /rest/v1/{table}?col=eq.v   update
//	DELETE /rest/v1/{table}?col=eq.v   delete
//	POST   /rest/v1/rpc/{procedure}    call
//
// Each call is a single attempt; the sync engine owns retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, domainErrors.NewError(domainErrors.CodeConfiguration, "rest backend requires a base URL", nil)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, domainErrors.NewError(domainErrors.CodeConfiguration, "invalid rest base URL", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// Name implements ports.RemoteServicePort.
func (c *Client) Name() string {
	return BackendName
}

// Insert implements ports.RemoteServicePort.
func (c *Client) Insert(ctx context.Context, table string, record json.RawMessage) error {
	return c.do(ctx, http.MethodPost, tablePath(table), nil, record)
}

// Update implements ports.RemoteServicePort.
func (c *Client) Update(ctx context.Context, table string, match ports.Match, patch json.RawMessage) error {
	if len(match) == 0 {
		return domainErrors.NewError(domainErrors.CodeValidation, "update requires a match filter", domainErrors.ErrInvalidAction)
	}
	return c.do(ctx, http.MethodPatch, tablePath(table), FilterQuery(match), patch)
}

// Delete implements ports.RemoteServicePort.
func (c *Client) Delete(ctx context.Context, table string, match ports.Match) error {
	if len(match) == 0 {
		return domainErrors.NewError(domainErrors.CodeValidation, "delete requires a match filter", domainErrors.ErrInvalidAction)
	}
	return c.do(ctx, http.MethodDelete, tablePath(table), FilterQuery(match), nil)
}

// Call implements ports.RemoteServicePort.
func (c *Client) Call(ctx context.Context, procedure string, payload json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+url.PathEscape(procedure), nil, payload)
}

// Ping reports whether the endpoint answers. Any response below 500 counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return err
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &HTTPError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, requestPath string, query url.Values, body json.RawMessage) error {
	target := c.baseURL + requestPath
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return err
	}
	c.setAuth(req)
	req.Header.Set("Prefer", "return=minimal")
	req.Header.Set("X-Correlation-Id", correlationID(ctx))
	tracing.InjectHTTP(ctx, req.Header)
	if key := ports.IdempotencyKey(ctx); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	if errPayload.Message == "" {
		errPayload.Message = http.StatusText(resp.StatusCode)
	}
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Code:       errPayload.Code,
		Message:    errPayload.Message,
	}
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func tablePath(table string) string {
	return "/rest/v1/" + url.PathEscape(table)
}

// FilterQuery encodes match as PostgREST equality filters (col=eq.value).
// A nil value becomes an is.null filter.
func FilterQuery(match ports.Match) url.Values {
	keys := make([]string, 0, len(match))
	for k := range match {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		switch v := match[k].(type) {
		case nil:
			values.Set(k, "is.null")
		case bool:
			values.Set(k, "is."+strconv.FormatBool(v))
		case string:
			values.Set(k, "eq."+v)
		default:
			values.Set(k, fmt.Sprintf("eq.%v", v))
		}
	}
	return values
}

func correlationID(ctx context.Context) string {
	if id := logging.CorrelationID(ctx); id != "" {
		return id
	}
	if id := logging.DrainID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
