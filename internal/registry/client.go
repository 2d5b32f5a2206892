package registry

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
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the grants registry API.
	DefaultBaseURL = "https://www.infosubvenciones.es/bdnstrans/api"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	// DefaultMaxRetries is the default retry budget for transient errors.
	DefaultMaxRetries = 3

	// DefaultRetryAfterMax caps the Retry-After wait honoured on 429.
	DefaultRetryAfterMax = 2 * time.Minute

	// DefaultPageSize is the default listing page size. The registry caps
	// page sizes at 100 server-side.
	DefaultPageSize = 50

	// MaxPageSize is the largest page size the registry accepts.
	MaxPageSize = 100

	// DefaultMaxPDFBytes is the largest document download accepted.
	DefaultMaxPDFBytes = 30 * 1024 * 1024
)

var _ interfaces.RegistryClient = (*Client)(nil)

// Client is a grants registry API client
type Client struct {
	baseURL       string
	httpClient    *http.Client
	logger        arbor.ILogger
	limiter       *rate.Limiter
	validate      *validator.Validate
	maxRetries    int
	retryAfterMax time.Duration
	maxPDFBytes   int64
	userAgent     string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithMaxRetries sets the retry budget for transient errors.
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithRetryAfterMax caps the wait honoured from a 429 Retry-After header.
func WithRetryAfterMax(max time.Duration) ClientOption {
	return func(c *Client) {
		c.retryAfterMax = max
	}
}

// WithMaxPDFBytes sets the largest accepted document download.
func WithMaxPDFBytes(maxBytes int64) ClientOption {
	return func(c *Client) {
		c.maxPDFBytes = maxBytes
	}
}

// WithUserAgent sets the User-Agent header sent to the registry.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient creates a new registry API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:       rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		validate:      validator.New(),
		maxRetries:    DefaultMaxRetries,
		retryAfterMax: DefaultRetryAfterMax,
		maxPDFBytes:   DefaultMaxPDFBytes,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do performs a GET request with retries. Transient failures (network errors,
// 5xx) retry with exponential backoff; a 429 waits for the server-advised
// Retry-After, capped at retryAfterMax. Client errors are returned as-is.
func (c *Client) do(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			var rateErr *RateLimitError
			if errors.As(lastErr, &rateErr) && rateErr.RetryAfter > backoff {
				backoff = rateErr.RetryAfter
			}
			if c.logger != nil {
				c.logger.Debug().Str("path", path).Int("attempt", attempt).
					Str("backoff", backoff.String()).Msg("Retrying registry request")
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to execute request: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = &RateLimitError{RetryAfter: c.parseRetryAfter(resp)}
			continue

		case resp.StatusCode >= 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = &APIError{
				StatusCode: resp.StatusCode,
				Message:    string(body),
				Endpoint:   path,
			}
			continue

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    string(body),
				Endpoint:   path,
			}
		}
	}

	return nil, fmt.Errorf("registry request failed after %d retries: %w", c.maxRetries, lastErr)
}

// getJSON performs a GET request and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, result interface{}) error {
	resp, err := c.do(ctx, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseRetryAfter reads the Retry-After header, accepting both delta-seconds
// and HTTP-date forms, capped at retryAfterMax
func (c *Client) parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := time.Second
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		} else if t, err := http.ParseTime(header); err == nil {
			if d := time.Until(t); d > 0 {
				retryAfter = d
			}
		}
	}
	if retryAfter > c.retryAfterMax {
		retryAfter = c.retryAfterMax
	}
	return retryAfter
}

// searchEnvelope mirrors the registry's paginated listing wire format,
// keeping each item raw so unknown fields survive
type searchEnvelope struct {
	Content       []json.RawMessage `json:"content" validate:"required"`
	TotalElements int               `json:"totalElements"`
	TotalPages    int               `json:"totalPages"`
	Number        int               `json:"number"`
}

// Search lists grants matching the controlled filter set
func (c *Client) Search(ctx context.Context, opts models.SearchOptions, page, size int) (*interfaces.RegistrySearchResponse, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	if opts.PurposeCode != "" {
		params.Set("finalidad", opts.PurposeCode)
	}
	for _, code := range opts.BeneficiaryCodes {
		params.Add("tiposBeneficiario", code)
	}
	if opts.OnlyOpen {
		params.Set("abierto", "true")
	}

	var envelope searchEnvelope
	if err := c.getJSON(ctx, "/convocatorias/busqueda", params, &envelope); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(&envelope); err != nil {
		return nil, fmt.Errorf("malformed listing response: %w", err)
	}

	response := &interfaces.RegistrySearchResponse{
		Content:       make([]interfaces.RegistryItem, 0, len(envelope.Content)),
		TotalElements: envelope.TotalElements,
		TotalPages:    envelope.TotalPages,
		Page:          envelope.Number,
	}
	for _, raw := range envelope.Content {
		var item interfaces.RegistryItem
		if err := json.Unmarshal(raw, &item); err != nil {
			if c.logger != nil {
				c.logger.Warn().Err(err).Msg("Skipping undecodable listing item")
			}
			continue
		}
		item.Extra = raw
		response.Content = append(response.Content, item)
	}

	return response, nil
}

// GetDetail fetches full metadata for one grant, including its documents
func (c *Client) GetDetail(ctx context.Context, externalID string) (*interfaces.GrantDetail, error) {
	params := url.Values{}
	params.Set("numConv", externalID)

	resp, err := c.do(ctx, "/convocatorias", params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read detail response: %w", err)
	}

	var detail interfaces.GrantDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode detail response: %w", err)
	}
	if err := c.validate.Struct(&detail); err != nil {
		return nil, fmt.Errorf("malformed detail response for %s: %w", externalID, err)
	}
	detail.Extra = raw

	return &detail, nil
}

// DownloadDocument fetches raw PDF bytes for a registry document. Responses
// that are not PDFs (HTML error pages are common) are rejected.
func (c *Client) DownloadDocument(ctx context.Context, documentID string) ([]byte, error) {
	params := url.Values{}
	params.Set("idDocumento", documentID)

	resp, err := c.do(ctx, "/convocatorias/documentos", params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" && !isPDFContentType(ct) {
		return nil, fmt.Errorf("document %s has content-type %q: %w", documentID, ct, ErrNotPDF)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxPDFBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", documentID, err)
	}
	if int64(len(data)) > c.maxPDFBytes {
		return nil, fmt.Errorf("document %s exceeds size limit of %d bytes", documentID, c.maxPDFBytes)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, fmt.Errorf("document %s does not start with PDF magic bytes: %w", documentID, ErrNotPDF)
	}

	return data, nil
}

func isPDFContentType(ct string) bool {
	// Content-Type may carry parameters, e.g. "application/pdf;charset=UTF-8"
	for i := 0; i < len(ct); i++ {
		if ct[i] == ';' {
			ct = ct[:i]
			break
		}
	}
	return ct == "application/pdf" || ct == "application/octet-stream"
}
