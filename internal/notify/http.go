package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPNotifier publishes completion events to a remote pub/sub broker
// over HTTP, so dashboards and downstream consumers in other pods can
// react to collection outcomes in real time.
type HTTPNotifier struct {
	logger     zerolog.Logger
	publishURL string
	client     *http.Client
}

// NewHTTPNotifier builds a notifier that POSTs events to the broker's
// publish endpoint, e.g. "http://pulse-events:8081/publish".
func NewHTTPNotifier(logger zerolog.Logger, publishURL string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotifier{
		logger:     logger.With().Str("component", "notifier").Logger(),
		publishURL: strings.TrimRight(publishURL, "/"),
		client:     &http.Client{Timeout: timeout},
	}
}

// Publish implements Notifier.
func (n *HTTPNotifier) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(&event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.publishURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("notify: publish unexpected status %d", resp.StatusCode)
	}

	n.logger.Debug().
		Str("event_type", string(event.EventType)).
		Str("customer_id", event.CustomerID).
		Str("provider", event.Provider).
		Msg("published completion event")
	return nil
}
