package commit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/bike-rental/internal/models"
)

// HTTPCommitter posts the finalized booking payload to the external
// booking commit service. That service re-checks lock ownership and owns
// the bike rental lifecycle; this client only delivers the payload.
type HTTPCommitter struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPCommitter(endpoint string) *HTTPCommitter {
	return &HTTPCommitter{Endpoint: endpoint, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (c *HTTPCommitter) Commit(ctx context.Context, payload models.BookingCommit) (string, error) {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 5 * time.Second}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("booking commit service returned %d", resp.StatusCode)
	}

	var out struct {
		BookingID string `json:"booking_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.BookingID, nil
}
