package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/supersquad/eventsweb/internal/domain/events"
	"github.com/supersquad/eventsweb/internal/metrics"
)

// ListEvents returns the events matching filters. Only non-empty filters are
// sent. A failed listing degrades to an empty slice; the failure is logged at
// warn level and counted, never returned.
func (c *Client) ListEvents(ctx context.Context, filters events.Filters) []events.Event {
	query := url.Values{}
	if filters.Search != "" {
		query.Set("search", filters.Search)
	}
	if filters.Date != "" {
		query.Set("date", filters.Date)
	}

	resp, err := c.do(ctx, request{operation: "list", method: http.MethodGet, path: "/events", query: query})
	if err != nil {
		record("list", err)
		metrics.ListDegradedTotal.WithLabelValues("network").Inc()
		c.logger.Warn().Err(err).Msg("failed to fetch events; showing empty list")
		return []events.Event{}
	}
	if !resp.ok() {
		record("list", fmt.Errorf("status %d", resp.status))
		metrics.ListDegradedTotal.WithLabelValues("status").Inc()
		c.logger.Warn().Int("status", resp.status).Msg("events listing rejected; showing empty list")
		return []events.Event{}
	}

	var items []events.Event
	if err := json.Unmarshal(resp.body, &items); err != nil {
		// Anything but a JSON array is treated as no events.
		record("list", err)
		metrics.ListDegradedTotal.WithLabelValues("decode").Inc()
		c.logger.Warn().Err(err).Msg("events listing is not an array; showing empty list")
		return []events.Event{}
	}
	record("list", nil)
	if items == nil {
		items = []events.Event{}
	}
	return items
}

// GetEvent fetches one event. Any non-2xx answer is ErrNotFound; transport
// failures are ErrNetwork.
func (c *Client) GetEvent(ctx context.Context, id int64) (events.Event, error) {
	resp, err := c.do(ctx, request{operation: "get", method: http.MethodGet, path: eventPath(id)})
	if err != nil {
		record("get", err)
		return events.Event{}, err
	}
	if !resp.ok() {
		apiErr := &Error{Kind: ErrNotFound, Status: resp.status, Message: "Event not found"}
		record("get", apiErr)
		return events.Event{}, apiErr
	}

	var event events.Event
	if err := json.Unmarshal(resp.body, &event); err != nil {
		record("get", err)
		return events.Event{}, fmt.Errorf("decode event: %w", err)
	}
	record("get", nil)
	return event, nil
}

// CreateEvent posts a new event. The request is sent even without a token so
// the API decides; a 401 comes back as ErrAuthentication.
func (c *Client) CreateEvent(ctx context.Context, token string, payload events.Payload) (events.Event, error) {
	return c.writeEvent(ctx, "create", http.MethodPost, "/events", token, payload, "Failed to create event")
}

// UpdateEvent replaces an existing event with the same contract as CreateEvent.
func (c *Client) UpdateEvent(ctx context.Context, token string, id int64, payload events.Payload) (events.Event, error) {
	return c.writeEvent(ctx, "update", http.MethodPut, eventPath(id), token, payload, "Failed to update event")
}

func (c *Client) writeEvent(ctx context.Context, operation, method, path, token string, payload events.Payload, fallbackMsg string) (events.Event, error) {
	resp, err := c.do(ctx, request{operation: operation, method: method, path: path, token: token, body: payload})
	if err != nil {
		record(operation, err)
		return events.Event{}, err
	}
	if !resp.ok() {
		apiErr := statusError(resp.status, resp.body, ErrValidation, fallbackMsg)
		record(operation, apiErr)
		return events.Event{}, apiErr
	}

	var event events.Event
	if err := json.Unmarshal(resp.body, &event); err != nil {
		record(operation, err)
		return events.Event{}, fmt.Errorf("decode %sd event: %w", operation, err)
	}
	record(operation, nil)
	return event, nil
}

// DeleteEvent removes an event. 401 is ErrAuthentication, 404 ErrNotFound,
// any other failure ErrAuthorization.
func (c *Client) DeleteEvent(ctx context.Context, token string, id int64) error {
	resp, err := c.do(ctx, request{operation: "delete", method: http.MethodDelete, path: eventPath(id), token: token})
	if err != nil {
		record("delete", err)
		return err
	}
	if !resp.ok() {
		apiErr := statusError(resp.status, resp.body, ErrAuthorization, "Failed to delete event")
		record("delete", apiErr)
		return apiErr
	}
	record("delete", nil)
	return nil
}

func eventPath(id int64) string {
	return "/events/" + strconv.FormatInt(id, 10)
}
