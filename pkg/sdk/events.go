package sdk

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
)

// Event names on the stream.
const (
	EventAlert = "alert"
	EventCheck = "check"
)

// Event is one message read from the event stream.
type Event struct {
	ID   string
	Type string
	Data json.RawMessage
}

// Notification decodes an alert event.
func (e Event) Notification() (browser.Notification, error) {
	var n browser.Notification
	if e.Type != EventAlert {
		return n, fmt.Errorf("event %s is not an alert", e.Type)
	}
	err := json.Unmarshal(e.Data, &n)
	return n, err
}

// Check decodes a check event.
func (e Event) Check() (protocol.CheckCredibilityResponse, error) {
	var r protocol.CheckCredibilityResponse
	if e.Type != EventCheck {
		return r, fmt.Errorf("event %s is not a check", e.Type)
	}
	err := json.Unmarshal(e.Data, &r)
	return r, err
}

// Subscribe opens the event stream, limited to types when any are given.
// The channel is closed when ctx is done or the server ends the stream.
func (c *Client) Subscribe(ctx context.Context, types ...string) (<-chan Event, error) {
	endpoint := c.base + "/api/events"
	if len(types) > 0 {
		endpoint += "?types=" + url.QueryEscape(strings.Join(types, ","))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", "truthguard-sdk/"+Version)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Message: "event stream unavailable"}
	}

	ch := make(chan Event)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var cur Event
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if cur.Type == "" && cur.Data == nil {
					continue
				}
				select {
				case ch <- cur:
				case <-ctx.Done():
					return
				}
				cur = Event{}
			case strings.HasPrefix(line, "id: "):
				cur.ID = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "event: "):
				cur.Type = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				cur.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
			}
		}
	}()
	return ch, nil
}
