package board

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clinicdesk/navbat/internal/queue"
)

// Client reads the queue service's current-state endpoint. It is the
// Source a deployed surface (board, kiosk) polls with.
type Client struct {
	baseURL    string
	doctorID   string
	httpClient *http.Client
}

// NewClient creates a reader for the queue API. doctorID may be empty to
// watch the whole clinic.
func NewClient(baseURL, doctorID string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		doctorID: doctorID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type currentResponse struct {
	Entries []*queue.QueueEntry `json:"entries"`
}

// Current fetches the active queue snapshot.
func (c *Client) Current(ctx context.Context) ([]*queue.QueueEntry, error) {
	endpoint := c.baseURL + "/queue/current"
	if c.doctorID != "" {
		endpoint += "?doctor_id=" + url.QueryEscape(c.doctorID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("board: build poll request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("board: poll queue: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("board: poll queue: unexpected status %d", resp.StatusCode)
	}

	var payload currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("board: decode poll response: %w", err)
	}
	return payload.Entries, nil
}

var _ Source = (*Client)(nil)
