package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NotifyConfig configures where to send completion notifications.
type NotifyConfig struct {
	WebhookURL string // if empty, no notifications
	Timeout    time.Duration
}

// completionPayload is the JSON body posted to the webhook endpoint.
type completionPayload struct {
	Target         string  `json:"target"`
	Address        string  `json:"address"`
	ScanID         string  `json:"scan_id"`
	Status         string  `json:"status"`
	Requested      int     `json:"requested"`
	Finished       int     `json:"finished"`
	OpenPorts      []int   `json:"open_ports"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// SendCompletion posts a JSON summary of the scan to the webhook URL.
// Returns nil if WebhookURL is empty (no-op). Callers should treat errors as
// warnings.
func (n *NotifyConfig) SendCompletion(result *ScanResult) error {
	if n == nil || n.WebhookURL == "" || result == nil || result.Report == nil {
		return nil
	}

	r := result.Report
	payload := completionPayload{
		Target:         r.Host,
		Address:        r.Address,
		ScanID:         result.ScanID,
		Status:         string(result.Status),
		Requested:      r.Requested,
		Finished:       len(r.Outcomes),
		OpenPorts:      []int{},
		ElapsedSeconds: r.Elapsed.Seconds(),
	}
	for _, o := range r.Open() {
		payload.OpenPorts = append(payload.OpenPorts, o.Port)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshaling payload: %w", err)
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Post(n.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: posting to %s: %w", n.WebhookURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned non-2xx status %d", resp.StatusCode)
	}

	return nil
}
