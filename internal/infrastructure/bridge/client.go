package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
	"github.com/felixgeelhaar/truthguard/pkg/messaging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client sends protocol messages to a running background.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan reply
	done    chan struct{}
	readErr error
}

// Dial connects to the bridge at url, e.g. ws://127.0.0.1:7420/ws.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrUnavailable, url, err)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan reply),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		var r reply
		if err := c.conn.ReadJSON(&r); err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			close(c.done)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[r.ID]
		delete(c.pending, r.ID)
		c.mu.Unlock()
		if ok {
			ch <- r
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, to messaging.ContextID, req protocol.Request, post bool) (reply, error) {
	raw, err := protocol.EncodeRequest(req)
	if err != nil {
		return reply{}, err
	}
	f := frame{ID: uuid.NewString(), To: string(to), Post: post, Request: raw}

	ch := make(chan reply, 1)
	c.mu.Lock()
	c.pending[f.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(f)
	c.writeMu.Unlock()
	if err != nil {
		return reply{}, fmt.Errorf("write frame: %w", err)
	}

	select {
	case r := <-ch:
		return r, r.err()
	case <-c.done:
		c.mu.Lock()
		readErr := c.readErr
		c.mu.Unlock()
		return reply{}, fmt.Errorf("%w: %v", ErrDisconnected, readErr)
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

// Send delivers req to the context to and returns its response.
func (c *Client) Send(ctx context.Context, to messaging.ContextID, req protocol.Request) (protocol.Response, error) {
	r, err := c.roundTrip(ctx, to, req, false)
	if err != nil {
		return nil, err
	}
	if len(r.Response) == 0 {
		return nil, nil
	}
	return protocol.DecodeResponse(req.Action(), r.Response)
}

// Post delivers req without waiting for the receiver's handler. It returns
// once the background accepted the message.
func (c *Client) Post(ctx context.Context, to messaging.ContextID, req protocol.Request) error {
	_, err := c.roundTrip(ctx, to, req, true)
	return err
}

// Check asks the background to score text. Text is validated locally first
// so length errors keep their type.
func (c *Client) Check(ctx context.Context, text string) (credibility.CheckResult, error) {
	trimmed, err := credibility.ValidateText(text)
	if err != nil {
		return credibility.CheckResult{}, err
	}
	resp, err := c.Send(ctx, messaging.Background, protocol.CheckCredibility{Text: trimmed})
	if err != nil {
		return credibility.CheckResult{}, err
	}
	r, ok := resp.(protocol.CheckCredibilityResponse)
	switch {
	case !ok:
		return credibility.CheckResult{}, fmt.Errorf("unexpected response %T", resp)
	case !r.Success:
		return credibility.CheckResult{}, &credibility.TransportError{Message: r.Error}
	case r.Result == nil:
		return credibility.CheckResult{}, &credibility.TransportError{Message: credibility.ErrGenericFailure}
	}
	return *r.Result, nil
}

// Settings reads the resolved settings from the background.
func (c *Client) Settings(ctx context.Context) (settings.Settings, error) {
	resp, err := c.Send(ctx, messaging.Background, protocol.GetSettings{})
	if err != nil {
		return settings.Settings{}, err
	}
	switch r := resp.(type) {
	case protocol.SettingsResponse:
		return r.Settings, nil
	case protocol.ErrorResponse:
		return settings.Settings{}, errors.New(r.Error)
	default:
		return settings.Settings{}, fmt.Errorf("unexpected response %T", resp)
	}
}

// SaveSettings merges update into the background's settings.
func (c *Client) SaveSettings(ctx context.Context, update settings.Partial) error {
	resp, err := c.Send(ctx, messaging.Background, protocol.SaveSettings{Settings: update})
	if err != nil {
		return err
	}
	switch r := resp.(type) {
	case protocol.SaveSettingsResponse:
		return nil
	case protocol.ErrorResponse:
		return errors.New(r.Error)
	default:
		return fmt.Errorf("unexpected response %T", resp)
	}
}

// Close closes the connection. Pending requests fail with ErrDisconnected.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}
