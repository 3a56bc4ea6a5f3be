package who

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
)

// APIError represents a non-200 response from the ICD-11 API.
type APIError struct {
	URI        string
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("who: %s: HTTP %d: %s", e.URI, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ClientConfig configures the entity client.
type ClientConfig struct {
	BaseURL       string // scheme and host every entity URI is resolved against
	ReleaseID     string
	Language      string
	Timeout       time.Duration
	MaxRetries    uint64
	RetryInterval time.Duration
}

// Client fetches ICD-11 foundation entities.
type Client struct {
	base          *url.URL
	releaseID     string
	language      string
	tokens        oauth2.TokenSource
	httpClient    *http.Client
	maxRetries    uint64
	retryInterval time.Duration
}

// NewClient creates an entity client authenticated by tokens.
func NewClient(cfg ClientConfig, tokens oauth2.TokenSource) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("who: parse base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	interval := cfg.RetryInterval
	if interval == 0 {
		interval = time.Second
	}
	return &Client{
		base:          base,
		releaseID:     cfg.ReleaseID,
		language:      lang,
		tokens:        tokens,
		httpClient:    &http.Client{Timeout: timeout},
		maxRetries:    cfg.MaxRetries,
		retryInterval: interval,
	}, nil
}

// EntityURL resolves an entity URI against the configured base and adds the release.
// The API hands out http:// identifiers; requests always go to the base scheme and host.
func (c *Client) EntityURL(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("who: parse entity uri %q: %w", uri, err)
	}
	if c.base.Host != "" {
		u.Scheme = c.base.Scheme
		u.Host = c.base.Host
	}
	if c.releaseID != "" {
		q := u.Query()
		q.Set("releaseId", c.releaseID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// FetchEntity downloads one entity. It returns the decoded entity and the raw body.
// 429 and 5xx responses are retried with exponential backoff; other failures are returned as is.
func (c *Client) FetchEntity(ctx context.Context, uri string) (*domain.RawEntity, []byte, error) {
	fullURL, err := c.EntityURL(uri)
	if err != nil {
		return nil, nil, err
	}

	var body []byte
	op := func() error {
		tok, err := c.tokens.Token()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("who: token: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("API-Version", "v2")
		req.Header.Set("Accept-Language", c.language)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusOK {
			body = data
			return nil
		}

		snippet := string(data)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		apiErr := &APIError{URI: uri, StatusCode: resp.StatusCode, Body: snippet}
		if apiErr.Retryable() {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if err := backoff.Retry(op, c.backOff(ctx)); err != nil {
		return nil, nil, err
	}

	var entity domain.RawEntity
	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, nil, fmt.Errorf("who: decode %s: %w", uri, err)
	}
	return &entity, body, nil
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryInterval
	return backoff.WithContext(backoff.WithMaxRetries(exp, c.maxRetries), ctx)
}
