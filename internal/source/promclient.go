package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// queryPath is the Prometheus-compatible instant query endpoint, relative
// to the configured metrics-query base URL.
const queryPath = "/api/v1/query"

// Client issues instant queries against a Prometheus-compatible
// metrics-query endpoint. Transient failures are retried with exponential
// backoff (2^attempt seconds) up to the configured attempt count.
type Client struct {
	logger        zerolog.Logger
	baseURL       string
	httpClient    *http.Client
	retryAttempts int
}

// NewClient creates a metrics-query client. retryAttempts is the total
// number of attempts per query, including the first.
func NewClient(logger zerolog.Logger, baseURL string, timeout time.Duration, retryAttempts int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &Client{
		logger:        logger.With().Str("component", "promclient").Logger(),
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: timeout},
		retryAttempts: retryAttempts,
	}
}

// promResponse is the JSON shape returned by the instant query endpoint.
type promResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  []any             `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// QueryScalar issues one instant query and returns the value of the first
// returned series. An empty result set is not an error: it returns
// ok=false so the caller simply produces no record for that query. Values
// equal to the query engine's NaN token are rejected the same way.
func (c *Client) QueryScalar(ctx context.Context, query string) (value float64, ok bool, err error) {
	op := func() error {
		v, found, qerr := c.queryOnce(ctx, query)
		if qerr != nil {
			if !retryable(qerr) {
				return backoff.Permanent(qerr)
			}
			return qerr
		}
		value, ok = v, found
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 5 * time.Minute
	bo.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Dur("wait", wait).Str("query", query).Msg("query failed, backing off")
	}

	retries := uint64(c.retryAttempts - 1)
	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx), notify); err != nil {
		return 0, false, err
	}
	return value, ok, nil
}

func (c *Client) queryOnce(ctx context.Context, query string) (float64, bool, error) {
	endpoint := c.baseURL + queryPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?query="+url.QueryEscape(query), nil)
	if err != nil {
		return 0, false, fmt.Errorf("build query request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("query %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return 0, false, &AuthError{Endpoint: endpoint, Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return 0, false, &StatusError{Endpoint: endpoint, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, false, fmt.Errorf("read query response: %w", err)
	}

	var pr promResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return 0, false, &StatusError{Endpoint: endpoint, Status: resp.StatusCode}
	}
	if pr.Status != "success" {
		return 0, false, fmt.Errorf("query engine returned status %q", pr.Status)
	}
	if len(pr.Data.Result) == 0 {
		// No series for this query. Absence of data is not a failure.
		return 0, false, nil
	}

	sample := pr.Data.Result[0].Value
	if len(sample) < 2 {
		return 0, false, fmt.Errorf("malformed sample in query response")
	}
	raw, isString := sample[1].(string)
	if !isString {
		return 0, false, fmt.Errorf("malformed sample value %v", sample[1])
	}
	if raw == "NaN" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse sample value %q: %w", raw, err)
	}
	return v, true, nil
}
