// Package loki pushes telemetry events to Grafana Loki over its HTTP push API.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"project-canvas-hub/internal/telemetry"
)

// Job is the job label attached to every stream.
const Job = "canvas-hub"

// ErrNoBaseURL is returned by NewClient when the Loki URL is empty.
var ErrNoBaseURL = errors.New("loki: base URL is empty")

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // [timestamp_ns, log_line]
}

// Loki label values are free-form, but we keep them to a safe charset.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Client pushes log lines to one Loki instance.
type Client struct {
	pushURL string
	http    *http.Client
}

// NewClient returns a Client for baseURL (e.g. http://localhost:3100). httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		pushURL: strings.TrimSuffix(baseURL, "/") + "/loki/api/v1/push",
		http:    httpClient,
	}, nil
}

// PushEventJSON pushes a telemetry event as consumed from Kafka. Labels and the timestamp come from the
// decoded event; a payload that does not decode is pushed as-is with the current time.
func (c *Client) PushEventJSON(ctx context.Context, raw []byte) error {
	ts := time.Now().UTC()
	labels := map[string]string{}
	var ev telemetry.Event
	if err := json.Unmarshal(raw, &ev); err == nil {
		labels["event_type"] = ev.EventType
		labels["source"] = ev.Source
		labels["project_id"] = ev.ProjectID
		labels["result"] = ev.Result
		if !ev.CreatedAt.IsZero() {
			ts = ev.CreatedAt
		}
	}
	return c.Push(ctx, ts, string(raw), labels)
}

// Push sends one log line. Empty label values are dropped. Returns an error on transport failure or non-2xx.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	streamLabels := map[string]string{"job": Job}
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			streamLabels[k] = s
		}
	}
	payload, err := json.Marshal(PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{strconv.FormatInt(timestamp.UnixNano(), 10), line}},
		}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pushURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
