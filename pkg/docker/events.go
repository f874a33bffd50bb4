package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/docker/docker/api/types/events"
)

// waitForEvent blocks until the daemon pushes the next event matching the
// given event types for the given container, or until timeout elapses. The
// caller computes the timeout, so the HTTP call is bounded by it rather
// than by a fixed value.
//
// The event stream is open-ended; exactly one JSON object is decoded from
// the still-open response body and the rest of the stream is discarded.
func (c *apiClient) waitForEvent(ctx context.Context, containerID string, eventTypes []string, timeout time.Duration) (events.Message, error) {
	const op = "wait for event"

	// The filters parameter is a JSON object mapping filter keys to arrays
	// of accepted values.
	filters := map[string][]string{
		"event":     eventTypes,
		"container": {containerID},
	}

	encoded, err := json.Marshal(filters)
	if err != nil {
		return events.Message{}, fmt.Errorf("%s failed: could not encode event filters: %w", op, err)
	}

	query := url.Values{}
	query.Set("filters", string(encoded))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events?"+query.Encode(), nil)
	if err != nil {
		return events.Message{}, fmt.Errorf("%s failed: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return events.Message{}, fmt.Errorf("%s failed: %w", op, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return events.Message{}, c.errorFromResponse(op, containerID, resp)
	}

	var message events.Message
	if err := json.NewDecoder(resp.Body).Decode(&message); err != nil {
		return events.Message{}, fmt.Errorf("%s failed: could not decode event: %w", op, err)
	}

	return message, nil
}
